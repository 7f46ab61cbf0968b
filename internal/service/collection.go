package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

// ErrCollectionClosed is returned by mutations after Teardown.
var ErrCollectionClosed = domain.NewDomainError(domain.ErrCodeInternalError, "collection has been torn down")

// Collection owns the set of document indices and the master index built
// over all of them. Mutations serialize on mu and publish a new immutable
// state; readers load the current state without locking.
type Collection struct {
	embedder Embedder
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	state  atomic.Pointer[collectionState]
}

type collectionState struct {
	docs  map[string]*DocumentIndex
	order []string
	// views pins the contents each document had when the master was built,
	// so master positions stay valid if an index is rebuilt in place.
	views  map[string]*documentIndexState
	master *masterIndex
}

// masterIndex concatenates every document's vectors in ascending document id
// order. attribution[i] names the chunk stored at position i.
type masterIndex struct {
	index       *vectorindex.FlatIndex
	attribution []chunkRef
}

type chunkRef struct {
	DocumentID string
	LocalIndex int
}

// NewCollection returns an empty collection.
func NewCollection(embedder Embedder, logger *slog.Logger) *Collection {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collection{embedder: embedder, logger: logger}
	c.state.Store(&collectionState{docs: map[string]*DocumentIndex{}})
	return c
}

// Embedder returns the embedder used for documents and queries.
func (c *Collection) Embedder() Embedder { return c.embedder }

// AddDocument builds an index for chunks and inserts it under documentID,
// replacing any existing document with that id. Embedding runs before the
// collection is touched, so a failure leaves it unchanged.
func (c *Collection) AddDocument(ctx context.Context, documentID string, chunks []string, meta domain.DocumentMetadata) error {
	idx, err := BuildDocumentIndex(ctx, c.embedder, documentID, chunks, meta)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCollectionClosed
	}

	cur := c.state.Load()
	docs := cloneDocs(cur.docs)
	docs[documentID] = idx
	next, err := newCollectionState(docs)
	if err != nil {
		return err
	}
	c.state.Store(next)

	c.logger.Info("document added",
		slog.String("document_id", documentID),
		slog.Int("chunks", idx.Len()),
		slog.Int("total_documents", len(next.order)))
	return nil
}

// Restore inserts already built indices with a single master rebuild and
// returns how many were inserted. Unbuilt indices are skipped. The vector
// dimension is fixed by the documents already present, otherwise by the
// lowest restored id; indices of any other dimension are logged and dropped.
func (c *Collection) Restore(indices ...*DocumentIndex) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrCollectionClosed
	}

	candidates := make([]*DocumentIndex, 0, len(indices))
	for _, idx := range indices {
		if idx != nil && idx.Built() {
			candidates = append(candidates, idx)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].ID() < candidates[b].ID() })

	cur := c.state.Load()
	dim := 0
	if cur.master != nil {
		dim = cur.master.index.Dimension()
	}

	docs := cloneDocs(cur.docs)
	restored := 0
	for _, idx := range candidates {
		if dim == 0 {
			dim = idx.Dimension()
		}
		if idx.Dimension() != dim {
			c.logger.Warn("skipping document with a conflicting dimension",
				slog.String("document_id", idx.ID()),
				slog.Int("dimension", idx.Dimension()),
				slog.Int("collection_dimension", dim))
			continue
		}
		docs[idx.ID()] = idx
		restored++
	}
	if restored == 0 {
		return 0, nil
	}

	next, err := newCollectionState(docs)
	if err != nil {
		return 0, err
	}
	c.state.Store(next)
	c.logger.Info("documents restored", slog.Int("restored", restored), slog.Int("total_documents", len(next.order)))
	return restored, nil
}

// RemoveDocument deletes documentID and reports whether it was present.
func (c *Collection) RemoveDocument(documentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Load()
	if _, ok := cur.docs[documentID]; !ok {
		return false
	}

	docs := cloneDocs(cur.docs)
	delete(docs, documentID)
	next, err := newCollectionState(docs)
	if err != nil {
		// Removing a document cannot introduce a dimension conflict.
		c.logger.Error("master rebuild failed after removal", slog.String("document_id", documentID), slog.Any("error", err))
		return false
	}
	c.state.Store(next)

	c.logger.Info("document removed", slog.String("document_id", documentID), slog.Int("total_documents", len(next.order)))
	return true
}

// Clear removes every document.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Store(&collectionState{docs: map[string]*DocumentIndex{}})
	c.logger.Info("collection cleared")
}

// Teardown clears the collection and rejects further additions.
func (c *Collection) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state.Store(&collectionState{docs: map[string]*DocumentIndex{}})
}

// Get returns the index for documentID. Rebuilding the returned index in
// place does not reach cross-document search until the next mutation; use
// AddDocument to replace a document.
func (c *Collection) Get(documentID string) (*DocumentIndex, bool) {
	idx, ok := c.state.Load().docs[documentID]
	return idx, ok
}

// Len returns the number of documents.
func (c *Collection) Len() int { return len(c.state.Load().order) }

// TotalChunks returns the number of chunks in the master index.
func (c *Collection) TotalChunks() int {
	if m := c.state.Load().master; m != nil {
		return m.index.Len()
	}
	return 0
}

// Documents lists every document in ascending id order.
func (c *Collection) Documents() []domain.DocumentSummary {
	st := c.state.Load()
	out := make([]domain.DocumentSummary, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.docs[id].Summary())
	}
	return out
}

// Summary describes the whole collection.
func (c *Collection) Summary() domain.CollectionSummary {
	docs := c.Documents()
	total := 0
	for _, d := range docs {
		total += d.ChunkCount
	}
	return domain.CollectionSummary{
		TotalDocuments: len(docs),
		TotalChunks:    total,
		Documents:      docs,
	}
}

// DocumentSimilarity ranks the other documents by cosine similarity between
// their centroid and the centroid of documentID, returning at most k.
func (c *Collection) DocumentSimilarity(documentID string, k int) ([]domain.DocumentSimilarity, error) {
	st := c.state.Load()
	target, ok := st.docs[documentID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}

	centroid := target.Centroid()
	out := make([]domain.DocumentSimilarity, 0, len(st.order))
	for _, id := range st.order {
		if id == documentID {
			continue
		}
		other := st.docs[id]
		out = append(out, domain.DocumentSimilarity{
			DocumentID:   id,
			DocumentName: other.Metadata().Name,
			Score:        vectorindex.Cosine(centroid, other.Centroid()),
			ChunkCount:   other.Len(),
		})
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if k < 0 {
		k = 0
	}
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func cloneDocs(docs map[string]*DocumentIndex) map[string]*DocumentIndex {
	out := make(map[string]*DocumentIndex, len(docs)+1)
	for id, idx := range docs {
		out[id] = idx
	}
	return out
}

// newCollectionState rebuilds the master index from scratch over docs.
func newCollectionState(docs map[string]*DocumentIndex) (*collectionState, error) {
	order := make([]string, 0, len(docs))
	for id := range docs {
		order = append(order, id)
	}
	sort.Strings(order)

	st := &collectionState{docs: docs, order: order, views: make(map[string]*documentIndexState, len(order))}
	if len(order) == 0 {
		return st, nil
	}

	index := vectorindex.NewFlatIndex(0)
	var attribution []chunkRef
	for _, id := range order {
		view := docs[id].state.Load()
		if view == nil {
			return nil, domain.ErrIndexNotBuilt
		}
		st.views[id] = view
		if err := index.Add(view.vectors); err != nil {
			if errors.Is(err, vectorindex.ErrDimensionMismatch) {
				return nil, domain.Wrap(domain.ErrEmbeddingUnavailable, err)
			}
			return nil, err
		}
		for _, chunk := range view.chunks {
			attribution = append(attribution, chunkRef{DocumentID: id, LocalIndex: chunk.LocalIndex})
		}
	}

	st.master = &masterIndex{index: index, attribution: attribution}
	return st, nil
}
