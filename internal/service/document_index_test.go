package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleChunks = []string{
	"The solar panel converts sunlight into electricity using photovoltaic cells.",
	"Wind turbines generate power when the blades rotate in moving air.",
	"Hydroelectric dams store water and release it through turbines.",
}

func TestDocumentIndex_SearchBeforeBuild(t *testing.T) {
	idx := NewDocumentIndex("doc", testutil.NewFakeEmbedder())

	results, err := idx.Search(context.Background(), "anything", 3)

	assert.Nil(t, results)
	assert.True(t, errors.Is(err, domain.ErrIndexNotBuilt))
	assert.False(t, idx.Built())
	assert.Equal(t, 0, idx.Len())
}

func TestDocumentIndex_BuildEmpty(t *testing.T) {
	idx := NewDocumentIndex("doc", testutil.NewFakeEmbedder())

	err := idx.Build(context.Background(), nil, domain.DocumentMetadata{})

	assert.True(t, errors.Is(err, domain.ErrEmptyDocument))
	assert.False(t, idx.Built())
}

func TestDocumentIndex_BuildEmbeddingFailureKeepsState(t *testing.T) {
	embedder := testutil.NewFakeEmbedder()
	ctx := context.Background()
	idx, err := BuildDocumentIndex(ctx, embedder, "doc", sampleChunks, domain.DocumentMetadata{Name: "energy.txt"})
	require.NoError(t, err)

	embedder.Fail(errors.New("provider down"))
	err = idx.Build(ctx, []string{"replacement"}, domain.DocumentMetadata{Name: "other.txt"})

	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, "energy.txt", idx.Metadata().Name)
}

func TestDocumentIndex_SearchReturnsBestFirst(t *testing.T) {
	idx, err := BuildDocumentIndex(context.Background(), testutil.NewFakeEmbedder(), "doc", sampleChunks, domain.DocumentMetadata{Name: "energy.txt"})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "wind turbines blades", 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].LocalIndex)
	assert.Equal(t, "doc", results[0].DocumentID)
	assert.Equal(t, sampleChunks[1], results[0].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestDocumentIndex_SearchClampsK(t *testing.T) {
	idx, err := BuildDocumentIndex(context.Background(), testutil.NewFakeEmbedder(), "doc", sampleChunks, domain.DocumentMetadata{})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "power", 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = idx.Search(context.Background(), "power", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDocumentIndex_VectorsAreNormalized(t *testing.T) {
	idx, err := BuildDocumentIndex(context.Background(), testutil.NewFakeEmbedder(), "doc", sampleChunks, domain.DocumentMetadata{})
	require.NoError(t, err)

	for _, v := range idx.Vectors() {
		assert.InDelta(t, 1.0, vectorindex.Norm(v), 1e-5)
	}
}

func TestDocumentIndex_BuildFromVectors(t *testing.T) {
	embedder := testutil.NewFakeEmbedder()
	idx := NewDocumentIndex("doc", embedder)

	err := idx.BuildFromVectors([]string{"a", "b"}, [][]float32{{3, 4}, {0, 2}}, domain.DocumentMetadata{Name: "n"})

	require.NoError(t, err)
	assert.Equal(t, 0, embedder.Calls())
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, idx.Vectors()[0], 1e-6)

	err = idx.BuildFromVectors([]string{"a"}, [][]float32{{1}, {2}}, domain.DocumentMetadata{})
	assert.True(t, errors.Is(err, domain.ErrCorruptIndex))
}

func TestDocumentIndex_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewFakeEmbedder()
	store := storage.NewMemoryStore()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	original, err := BuildDocumentIndex(ctx, embedder, "doc", sampleChunks, domain.DocumentMetadata{Name: "energy.txt", Size: 1234, CreatedAt: created})
	require.NoError(t, err)
	require.NoError(t, original.Save(ctx, store, "indices/doc"))

	loaded := NewDocumentIndex("doc", embedder)
	require.NoError(t, loaded.Load(ctx, store, "indices/doc"))

	assert.Equal(t, original.Chunks(), loaded.Chunks())
	assert.Equal(t, original.Metadata(), loaded.Metadata())
	for i := range original.Vectors() {
		assert.InDeltaSlice(t, original.Vectors()[i], loaded.Vectors()[i], 1e-6)
	}

	query := "hydroelectric water turbines"
	want, err := original.Search(ctx, query, 3)
	require.NoError(t, err)
	got, err := loaded.Search(ctx, query, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A second save/load cycle is idempotent.
	require.NoError(t, loaded.Save(ctx, store, "indices/copy"))
	again := NewDocumentIndex("doc", embedder)
	require.NoError(t, again.Load(ctx, store, "indices/copy"))
	assert.Equal(t, loaded.Vectors(), again.Vectors())
}

func TestDocumentIndex_LoadWithoutMeta(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	original, err := BuildDocumentIndex(ctx, testutil.NewFakeEmbedder(), "doc", sampleChunks, domain.DocumentMetadata{Name: "energy.txt"})
	require.NoError(t, err)
	require.NoError(t, original.Save(ctx, store, "indices/doc"))
	require.NoError(t, store.Delete(ctx, "indices/doc.meta"))

	loaded := NewDocumentIndex("doc", testutil.NewFakeEmbedder())
	require.NoError(t, loaded.Load(ctx, store, "indices/doc"))

	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, "", loaded.Metadata().Name)
}

func TestDocumentIndex_LoadIgnoresUnreadableMeta(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	original, err := BuildDocumentIndex(ctx, testutil.NewFakeEmbedder(), "doc", sampleChunks, domain.DocumentMetadata{Name: "energy.txt"})
	require.NoError(t, err)
	require.NoError(t, original.Save(ctx, store, "indices/doc"))
	require.NoError(t, store.Put(ctx, "indices/doc.meta", []byte(`{"name": 42`)))

	loaded := NewDocumentIndex("doc", testutil.NewFakeEmbedder())
	require.NoError(t, loaded.Load(ctx, store, "indices/doc"))

	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, "", loaded.Metadata().Name)
	assert.Equal(t, "fake-embedding", loaded.Model())
	assert.Equal(t, 64, loaded.Dimension())
}

func TestDocumentIndex_LoadCorruptLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewFakeEmbedder()

	tests := []struct {
		name  string
		setup func(store *storage.MemoryStore)
	}{
		{"missing index", func(store *storage.MemoryStore) {
			_ = store.Delete(ctx, "indices/src.index")
		}},
		{"missing chunks", func(store *storage.MemoryStore) {
			_ = store.Delete(ctx, "indices/src.chunks")
		}},
		{"garbage index", func(store *storage.MemoryStore) {
			_ = store.Put(ctx, "indices/src.index", []byte("not an index"))
		}},
		{"garbage chunks", func(store *storage.MemoryStore) {
			_ = store.Put(ctx, "indices/src.chunks", []byte("{"))
		}},
		{"zero dimension header", func(store *storage.MemoryStore) {
			_ = store.Put(ctx, "indices/src.index", []byte("DQFI\x01\x00\x00\x00\x00\x00\x00\x00\x03\x00\x00\x00"))
		}},
		{"count mismatch", func(store *storage.MemoryStore) {
			_ = store.Put(ctx, "indices/src.chunks", []byte(`["only one"]`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			src, err := BuildDocumentIndex(ctx, embedder, "src", sampleChunks, domain.DocumentMetadata{})
			require.NoError(t, err)
			require.NoError(t, src.Save(ctx, store, "indices/src"))
			tt.setup(store)

			target, err := BuildDocumentIndex(ctx, embedder, "target", []string{"existing chunk"}, domain.DocumentMetadata{Name: "keep.txt"})
			require.NoError(t, err)

			err = target.Load(ctx, store, "indices/src")

			assert.True(t, errors.Is(err, domain.ErrCorruptIndex), "got %v", err)
			assert.Equal(t, 1, target.Len())
			assert.Equal(t, "keep.txt", target.Metadata().Name)
		})
	}
}

func TestDocumentIndex_SaveBeforeBuild(t *testing.T) {
	err := NewDocumentIndex("doc", testutil.NewFakeEmbedder()).Save(context.Background(), storage.NewMemoryStore(), "indices/doc")
	assert.True(t, errors.Is(err, domain.ErrIndexNotBuilt))
}
