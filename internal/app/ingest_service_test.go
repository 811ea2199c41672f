package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hachimB/student-assistant/internal/chunker"
	"github.com/hachimB/student-assistant/internal/index"
	"github.com/hachimB/student-assistant/internal/loader"
	"github.com/hachimB/student-assistant/internal/model"
)

type memDocStore struct {
	docs map[string]model.Document
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: make(map[string]model.Document)}
}

func (m *memDocStore) Upsert(doc *model.Document) error {
	m.docs[doc.ID] = *doc
	return nil
}

func (m *memDocStore) List() ([]model.Document, error) {
	var out []model.Document
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memDocStore) GetByID(id string) (*model.Document, error) {
	if d, ok := m.docs[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *memDocStore) DeleteByID(id string) error {
	delete(m.docs, id)
	return nil
}

// hashEmbedder derives a deterministic 3-dim vector from the text, so
// re-embedding identical chunks yields identical vectors.
type hashEmbedder struct {
	batches int
}

func (h *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	h.batches++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var sum int
		for _, r := range t {
			sum += int(r)
		}
		out[i] = []float32{float32(sum % 97), float32(sum % 89), float32(len(t) % 83)}
	}
	return out, nil
}

func (h *hashEmbedder) EmbeddingModel() string { return "hash-embedder" }

func newIngestFixture(embedBatch int) (*IngestService, *memDocStore, *index.MemoryStore, *hashEmbedder) {
	docs := newMemDocStore()
	store := index.NewMemoryStore(index.MetricCosine, 3)
	embedder := &hashEmbedder{}
	svc := NewIngestService(docs, store, embedder,
		chunker.Params{ChunkSize: 200, Overlap: 40}, embedBatch, 2, nil)
	return svc, docs, store, embedder
}

func TestIngestLoaded_IndexesAllChunks(t *testing.T) {
	svc, docs, store, _ := newIngestFixture(8)
	loaded := loader.FromText("/docs/rules.txt", "rules", strings.Repeat("Attendance is mandatory. ", 60))

	result, err := svc.IngestLoaded(context.Background(), loaded)
	require.NoError(t, err)

	assert.Greater(t, result.ChunkCount, 1)
	assert.Equal(t, result.ChunkCount, store.Count())
	stored, err := docs.GetByID(loaded.Document.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, result.ChunkCount, stored.ChunkCount)
}

func TestIngestLoaded_Idempotent(t *testing.T) {
	svc, docs, store, _ := newIngestFixture(8)
	loaded := loader.FromText("/docs/rules.txt", "rules", strings.Repeat("Attendance is mandatory. ", 60))

	first, err := svc.IngestLoaded(context.Background(), loaded)
	require.NoError(t, err)
	second, err := svc.IngestLoaded(context.Background(), loaded)
	require.NoError(t, err)

	// Same content, same IDs: the second run replaces, never duplicates.
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.Equal(t, first.ChunkCount, store.Count())
	assert.Len(t, docs.docs, 1)
}

func TestIngestLoaded_EmptyDocument(t *testing.T) {
	svc, _, store, _ := newIngestFixture(8)
	loaded := loader.FromText("/docs/blank.txt", "blank", "   \n  ")

	_, err := svc.IngestLoaded(context.Background(), loaded)
	assert.ErrorIs(t, err, chunker.ErrEmptyDocument)
	assert.Equal(t, 0, store.Count())
}

func TestIngestLoaded_EmbedsInBatches(t *testing.T) {
	svc, _, _, embedder := newIngestFixture(2)
	loaded := loader.FromText("/docs/long.txt", "long", strings.Repeat("Schedules change every term. ", 80))

	result, err := svc.IngestLoaded(context.Background(), loaded)
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 2)

	wantBatches := (result.ChunkCount + 1) / 2
	assert.Equal(t, wantBatches, embedder.batches)
}

func TestIngestPaths_SkipsBadDocumentsAndContinues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "calendar.txt")
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(good, []byte(strings.Repeat("Exams begin in June. ", 40)), 0o644))
	require.NoError(t, os.WriteFile(empty, []byte("   "), 0o644))

	svc, _, store, _ := newIngestFixture(8)
	report := svc.IngestPaths(context.Background(), []string{good, empty})

	require.Len(t, report.Ingested, 1)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, empty, report.Skipped[0].Path)
	assert.Greater(t, store.Count(), 0)
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(_ context.Context) error {
	c.calls++
	return nil
}

func TestIngest_InvalidatesMemoizedAnswers(t *testing.T) {
	svc, _, _, _ := newIngestFixture(8)
	invalidator := &countingInvalidator{}
	svc.invalidations = invalidator
	loaded := loader.FromText("/docs/rules.txt", "rules", strings.Repeat("Attendance is mandatory. ", 60))

	_, err := svc.IngestLoaded(context.Background(), loaded)
	require.NoError(t, err)
	assert.Equal(t, 1, invalidator.calls, "new content must drop memoized answers")

	require.NoError(t, svc.DeleteDocument(context.Background(), loaded.Document.ID))
	assert.Equal(t, 2, invalidator.calls, "removed content must drop memoized answers")
}

func TestIngestContent_CarriesCategoryToIndex(t *testing.T) {
	svc, docs, store, _ := newIngestFixture(8)

	result, err := svc.IngestContent(context.Background(), "/docs/reglements/interieur.txt", "interieur",
		"reglements", strings.Repeat("Absences must be justified within 48 hours. ", 30))
	require.NoError(t, err)

	assert.Equal(t, "reglements", result.Document.Category)
	stored, err := docs.GetByID(result.Document.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "reglements", stored.Category)

	hits, err := store.Query(context.Background(), []float32{1, 1, 1}, store.Count())
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		entry, ok, err := store.Get(context.Background(), h.ChunkID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "reglements", entry.Category)
	}
}

func TestDeleteDocument_Cascades(t *testing.T) {
	svc, docs, store, _ := newIngestFixture(8)
	loaded := loader.FromText("/docs/rules.txt", "rules", strings.Repeat("Attendance is mandatory. ", 60))

	_, err := svc.IngestLoaded(context.Background(), loaded)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDocument(context.Background(), loaded.Document.ID))
	assert.Equal(t, 0, store.Count())
	assert.Empty(t, docs.docs)

	err = svc.DeleteDocument(context.Background(), loaded.Document.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}
