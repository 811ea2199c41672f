package index

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(chunkID, docID string, vec []float32) Entry {
	return Entry{
		ChunkID:    chunkID,
		DocumentID: docID,
		Text:       "text of " + chunkID,
		ModelID:    "test-model",
		Metric:     MetricCosine,
		Vector:     vec,
	}
}

func TestMemoryStore_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricCosine, 3)

	e := entry("c1", "d1", []float32{1, 0, 0})
	require.NoError(t, store.Upsert(ctx, e))
	require.NoError(t, store.Upsert(ctx, e))
	assert.Equal(t, 1, store.Count())

	// Re-upsert replaces, never duplicates.
	e.Vector = []float32{0, 1, 0}
	require.NoError(t, store.Upsert(ctx, e))
	assert.Equal(t, 1, store.Count())

	got, ok, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)
}

func TestMemoryStore_ConcurrentSameChunkUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricCosine, 3)

	// Many writers race on the same chunk. The store must end with exactly
	// one record whose vector is one of the written values, intact.
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{1, 1, 0},
	}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := entry("c1", "d1", vectors[i%len(vectors)])
			assert.NoError(t, store.Upsert(ctx, e))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Count())
	got, ok, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, vectors, got.Vector, "a torn write must never surface")
}

func TestMemoryStore_ReEmbeddingKeepsBothModels(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricCosine, 2)

	a := entry("c1", "d1", []float32{1, 0})
	require.NoError(t, store.Upsert(ctx, a))

	b := a
	b.ModelID = "other-model"
	b.Vector = []float32{0, 1}
	require.NoError(t, store.Upsert(ctx, b))

	// Two records, but the chunk counts and ranks once in queries.
	assert.Equal(t, 1, store.Count())
	hits, err := store.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0, hits[0].Distance, 1e-9)
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricCosine, 3)

	err := store.Upsert(ctx, entry("c1", "d1", []float32{1, 0}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, store.Upsert(ctx, entry("c1", "d1", []float32{1, 0, 0})))
	_, err = store.Query(ctx, []float32{1, 0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_MetricMismatch(t *testing.T) {
	store := NewMemoryStore(MetricEuclidean, 2)
	e := entry("c1", "d1", []float32{1, 0})
	err := store.Upsert(context.Background(), e)
	assert.ErrorIs(t, err, ErrMetricMismatch)
}

func TestMemoryStore_QueryOrderAndTieBreak(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricCosine, 2)

	// c2 and c3 are equidistant from the query: ties break by chunk_id.
	require.NoError(t, store.Upsert(ctx, entry("c3", "d1", []float32{0, 1})))
	require.NoError(t, store.Upsert(ctx, entry("c2", "d1", []float32{0, 1})))
	require.NoError(t, store.Upsert(ctx, entry("c1", "d1", []float32{1, 0})))

	hits, err := store.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, "c2", hits[1].ChunkID)
	assert.Equal(t, "c3", hits[2].ChunkID)

	again, err := store.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, hits, again)
}

func TestMemoryStore_QueryLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricCosine, 2)
	require.NoError(t, store.Upsert(ctx, entry("c1", "d1", []float32{1, 0})))
	require.NoError(t, store.Upsert(ctx, entry("c2", "d1", []float32{0, 1})))

	hits, err := store.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = store.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStore_DeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MetricCosine, 2)
	require.NoError(t, store.Upsert(ctx, entry("c1", "d1", []float32{1, 0})))
	require.NoError(t, store.Upsert(ctx, entry("c2", "d1", []float32{0, 1})))
	require.NoError(t, store.Upsert(ctx, entry("c3", "d2", []float32{0, 1})))

	require.NoError(t, store.DeleteDocument(ctx, "d1"))
	assert.Equal(t, 1, store.Count())

	_, ok, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDistance_Euclidean(t *testing.T) {
	d, err := Distance(MetricEuclidean, []float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-9)
}

func TestDistance_CosineRange(t *testing.T) {
	d, err := Distance(MetricCosine, []float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)

	d, err = Distance(MetricCosine, []float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-9)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	_, err = ParseMetric("manhattan")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}
