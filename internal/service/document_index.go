package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

// Artifact suffixes written by DocumentIndex.Save.
const (
	IndexSuffix  = ".index"
	ChunksSuffix = ".chunks"
	MetaSuffix   = ".meta"
)

// ArtifactStore is the blob storage used for index snapshots.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns domain.ErrArtifactNotFound when key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// DocumentIndex is the searchable form of one document: its chunks, their
// normalized vectors and a nearest-neighbour index over them. The three are
// replaced together so searches never observe a partial build.
type DocumentIndex struct {
	id       string
	embedder Embedder
	state    atomic.Pointer[documentIndexState]
}

type documentIndexState struct {
	chunks   []domain.Chunk
	vectors  [][]float32
	meta     domain.DocumentMetadata
	model    string
	index    *vectorindex.FlatIndex
	centroid []float32
}

// indexMeta is the advisory .meta artifact.
type indexMeta struct {
	ModelName  string    `json:"model_name"`
	Dimension  int       `json:"dimension"`
	ChunkCount int       `json:"chunk_count"`
	IndexSize  int       `json:"index_size"`
	DocumentID string    `json:"document_id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDocumentIndex returns an unbuilt index for documentID. The embedder is
// used for building and for query embedding.
func NewDocumentIndex(documentID string, embedder Embedder) *DocumentIndex {
	return &DocumentIndex{id: documentID, embedder: embedder}
}

// BuildDocumentIndex creates and builds an index in one step.
func BuildDocumentIndex(ctx context.Context, embedder Embedder, documentID string, chunks []string, meta domain.DocumentMetadata) (*DocumentIndex, error) {
	idx := NewDocumentIndex(documentID, embedder)
	if err := idx.Build(ctx, chunks, meta); err != nil {
		return nil, err
	}
	return idx, nil
}

// Build embeds chunks in a single batch and replaces the index contents.
// On failure the previous contents are kept.
func (d *DocumentIndex) Build(ctx context.Context, chunks []string, meta domain.DocumentMetadata) error {
	if len(chunks) == 0 {
		return domain.ErrEmptyDocument
	}

	vectors, err := embedNormalized(ctx, d.embedder, chunks)
	if err != nil {
		return err
	}

	return d.install(chunks, vectors, meta, d.embedderModel())
}

// BuildFromVectors installs precomputed vectors without calling the embedder.
func (d *DocumentIndex) BuildFromVectors(chunks []string, vectors [][]float32, meta domain.DocumentMetadata) error {
	if len(chunks) == 0 {
		return domain.ErrEmptyDocument
	}
	if len(chunks) != len(vectors) {
		return domain.Wrap(domain.ErrCorruptIndex, fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors)))
	}
	return d.install(chunks, vectorindex.NormalizeAll(vectors), meta, d.embedderModel())
}

func (d *DocumentIndex) install(texts []string, vectors [][]float32, meta domain.DocumentMetadata, model string) error {
	index, err := vectorindex.Build(vectors)
	if err != nil {
		return domain.Wrap(domain.ErrCorruptIndex, err)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	d.state.Store(&documentIndexState{
		chunks:   domain.NewChunks(d.id, texts),
		vectors:  vectors,
		meta:     meta,
		model:    model,
		index:    index,
		centroid: vectorindex.Mean(vectors),
	})
	return nil
}

func (d *DocumentIndex) embedderModel() string {
	if d.embedder == nil {
		return ""
	}
	return d.embedder.Model()
}

// Search returns the k chunks closest to query, best first. k is clamped to
// the number of chunks.
func (d *DocumentIndex) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	st := d.state.Load()
	if st == nil {
		return nil, domain.ErrIndexNotBuilt
	}
	if k <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	vec, err := embedQuery(ctx, d.embedder, query)
	if err != nil {
		return nil, err
	}
	return st.search(vec, k)
}

func (st *documentIndexState) search(vec []float32, k int) ([]domain.ScoredChunk, error) {
	if k > len(st.chunks) {
		k = len(st.chunks)
	}
	hits, err := st.index.Search(vec, k)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	}
	out := make([]domain.ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = domain.ScoredChunk{Chunk: st.chunks[h.Position], Score: h.Score}
	}
	return out, nil
}

// ID returns the document id.
func (d *DocumentIndex) ID() string { return d.id }

// Built reports whether the index has contents.
func (d *DocumentIndex) Built() bool { return d.state.Load() != nil }

// Len returns the number of chunks, zero before build.
func (d *DocumentIndex) Len() int {
	if st := d.state.Load(); st != nil {
		return len(st.chunks)
	}
	return 0
}

// Chunks returns the chunks in document order.
func (d *DocumentIndex) Chunks() []domain.Chunk {
	if st := d.state.Load(); st != nil {
		return st.chunks
	}
	return nil
}

// Vectors returns the normalized chunk vectors in document order.
func (d *DocumentIndex) Vectors() [][]float32 {
	if st := d.state.Load(); st != nil {
		return st.vectors
	}
	return nil
}

// Centroid returns the mean of the chunk vectors.
func (d *DocumentIndex) Centroid() []float32 {
	if st := d.state.Load(); st != nil {
		return st.centroid
	}
	return nil
}

// Model returns the embedding model the vectors came from.
func (d *DocumentIndex) Model() string {
	if st := d.state.Load(); st != nil {
		return st.model
	}
	return ""
}

// Dimension returns the vector dimension, zero before build.
func (d *DocumentIndex) Dimension() int {
	if st := d.state.Load(); st != nil {
		return st.index.Dimension()
	}
	return 0
}

// Metadata returns the document metadata.
func (d *DocumentIndex) Metadata() domain.DocumentMetadata {
	if st := d.state.Load(); st != nil {
		return st.meta
	}
	return domain.DocumentMetadata{}
}

// Summary describes the document for listings.
func (d *DocumentIndex) Summary() domain.DocumentSummary {
	meta := d.Metadata()
	return domain.DocumentSummary{
		ID:         d.id,
		Name:       meta.Name,
		Size:       meta.Size,
		ChunkCount: d.Len(),
		CreatedAt:  meta.CreatedAt,
	}
}

// Save writes <base>.index, <base>.chunks and <base>.meta.
func (d *DocumentIndex) Save(ctx context.Context, store ArtifactStore, base string) error {
	st := d.state.Load()
	if st == nil {
		return domain.ErrIndexNotBuilt
	}

	indexData, err := st.index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	chunksData, err := json.Marshal(domain.ChunkTexts(st.chunks))
	if err != nil {
		return fmt.Errorf("failed to encode chunks: %w", err)
	}
	metaData, err := json.Marshal(indexMeta{
		ModelName:  st.model,
		Dimension:  st.index.Dimension(),
		ChunkCount: len(st.chunks),
		IndexSize:  st.index.Len(),
		DocumentID: d.id,
		Name:       st.meta.Name,
		Size:       st.meta.Size,
		CreatedAt:  st.meta.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	for _, artifact := range []struct {
		key  string
		data []byte
	}{
		{base + IndexSuffix, indexData},
		{base + ChunksSuffix, chunksData},
		{base + MetaSuffix, metaData},
	} {
		if err := store.Put(ctx, artifact.key, artifact.data); err != nil {
			return domain.Wrap(domain.ErrStorageOperationFail, fmt.Errorf("put %s: %w", artifact.key, err))
		}
	}
	return nil
}

// Load replaces the index contents with the artifacts under base. The .meta
// artifact is optional. On failure the current contents are kept.
func (d *DocumentIndex) Load(ctx context.Context, store ArtifactStore, base string) error {
	indexData, err := getArtifact(ctx, store, base+IndexSuffix)
	if err != nil {
		return err
	}
	chunksData, err := getArtifact(ctx, store, base+ChunksSuffix)
	if err != nil {
		return err
	}

	index := vectorindex.NewFlatIndex(0)
	if err := index.UnmarshalBinary(indexData); err != nil {
		return domain.Wrap(domain.ErrCorruptIndex, err)
	}
	var texts []string
	if err := json.Unmarshal(chunksData, &texts); err != nil {
		return domain.Wrap(domain.ErrCorruptIndex, fmt.Errorf("decode chunks: %w", err))
	}
	if len(texts) == 0 || len(texts) != index.Len() {
		return domain.Wrap(domain.ErrCorruptIndex, fmt.Errorf("%d chunks but %d vectors", len(texts), index.Len()))
	}

	var meta indexMeta
	if metaData, err := store.Get(ctx, base+MetaSuffix); err == nil {
		if err := json.Unmarshal(metaData, &meta); err != nil {
			slog.Warn("ignoring unreadable index metadata",
				slog.String("document_id", d.id),
				slog.String("key", base+MetaSuffix),
				slog.Any("error", err))
			meta = indexMeta{}
		}
	}
	model := meta.ModelName
	if model == "" {
		model = d.embedderModel()
	}

	vectors := make([][]float32, index.Len())
	for i := range vectors {
		vectors[i] = index.Vector(i)
	}

	d.state.Store(&documentIndexState{
		chunks:  domain.NewChunks(d.id, texts),
		vectors: vectors,
		meta: domain.DocumentMetadata{
			Name:      meta.Name,
			Size:      meta.Size,
			CreatedAt: meta.CreatedAt,
		},
		model:    model,
		index:    index,
		centroid: vectorindex.Mean(vectors),
	})
	return nil
}

func getArtifact(ctx context.Context, store ArtifactStore, key string) ([]byte, error) {
	data, err := store.Get(ctx, key)
	if errors.Is(err, domain.ErrArtifactNotFound) {
		return nil, domain.Wrap(domain.ErrCorruptIndex, fmt.Errorf("missing artifact %s", key))
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrStorageOperationFail, fmt.Errorf("get %s: %w", key, err))
	}
	return data, nil
}
