package service

import (
	"context"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// FusionEngine searches the master index of a collection and attributes each
// hit to its source document.
type FusionEngine struct {
	collection *Collection
}

// NewFusionEngine returns a FusionEngine over collection.
func NewFusionEngine(collection *Collection) *FusionEngine {
	return &FusionEngine{collection: collection}
}

// SearchAcross returns up to kTotal chunks from the whole collection, best
// first. When documentIDs is non-empty only chunks from those documents are
// returned. Twice kTotal candidates are fetched before filtering, so a
// filtered search can return fewer than kTotal results.
func (f *FusionEngine) SearchAcross(ctx context.Context, query string, kTotal int, documentIDs []string) ([]domain.SearchResult, error) {
	st := f.collection.state.Load()
	if st.master == nil || kTotal <= 0 {
		return []domain.SearchResult{}, nil
	}

	vec, err := embedQuery(ctx, f.collection.embedder, query)
	if err != nil {
		return nil, err
	}

	fetch := 2 * kTotal
	if total := st.master.index.Len(); fetch > total {
		fetch = total
	}
	hits, err := st.master.index.Search(vec, fetch)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	}

	var allowed map[string]struct{}
	if len(documentIDs) > 0 {
		allowed = make(map[string]struct{}, len(documentIDs))
		for _, id := range documentIDs {
			allowed[id] = struct{}{}
		}
	}

	results := make([]domain.SearchResult, 0, kTotal)
	for _, hit := range hits {
		ref := st.master.attribution[hit.Position]
		if allowed != nil {
			if _, ok := allowed[ref.DocumentID]; !ok {
				continue
			}
		}

		view := st.views[ref.DocumentID]
		results = append(results, domain.SearchResult{
			ChunkText:    view.chunks[ref.LocalIndex].Text,
			Score:        hit.Score,
			DocumentID:   ref.DocumentID,
			LocalIndex:   ref.LocalIndex,
			DocumentName: view.meta.Name,
		})
		if len(results) == kTotal {
			break
		}
	}

	return results, nil
}
