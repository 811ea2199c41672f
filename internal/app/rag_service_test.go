package app

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hachimB/student-assistant/internal/index"
	"github.com/hachimB/student-assistant/internal/prompt"
	"github.com/hachimB/student-assistant/internal/retriever"
)

type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, nil
}

type fakeGenerator struct {
	answer string
	calls  int
}

func (g *fakeGenerator) Complete(_ context.Context, _, _ string) (string, error) {
	g.calls++
	return g.answer, nil
}

func newAskFixture(t *testing.T, queryVec []float32, entries ...index.Entry) (*RAGService, *fakeGenerator) {
	t.Helper()
	store := index.NewMemoryStore(index.MetricCosine, 3)
	for _, e := range entries {
		require.NoError(t, store.Upsert(context.Background(), e))
	}
	ret := retriever.New(&fixedEmbedder{vector: queryVec}, store, retriever.Config{TopK: 3, MinScore: 0.5})
	gen := &fakeGenerator{answer: "Resit exams are in February 2025 (Exam Calendar, page 12)."}
	svc := NewRAGService(ret, prompt.NewAssembler(0), gen, nil, nil)
	return svc, gen
}

func indexedChunk(chunkID, title, text string, page int, vec []float32) index.Entry {
	return index.Entry{
		ChunkID:       chunkID,
		DocumentID:    "doc-" + chunkID,
		DocumentTitle: title,
		Text:          text,
		PageNumber:    page,
		SequenceIndex: 0,
		ModelID:       "test-model",
		Metric:        index.MetricCosine,
		Vector:        vec,
	}
}

func TestAsk_GroundedAnswerWithCitations(t *testing.T) {
	svc, gen := newAskFixture(t, []float32{1, 0, 0},
		indexedChunk("c1", "Exam Calendar", "resit exams for S1 take place in February 2025", 12, []float32{1, 0, 0}),
	)

	result, err := svc.Ask(context.Background(), AskInput{
		UserID:   1,
		Question: "When are the S1 resit exams in 2025?",
	})
	require.NoError(t, err)

	assert.True(t, result.Grounded)
	assert.Equal(t, 1, gen.calls)
	assert.NotEmpty(t, result.AnswerID)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "Exam Calendar", result.Citations[0].DocumentTitle)
	assert.Equal(t, 12, result.Citations[0].PageNumber)
}

func TestAsk_NoRelevantContextSkipsGenerator(t *testing.T) {
	// The only stored chunk is orthogonal to every question: the fallback
	// answer must come back and the generator must never run.
	svc, gen := newAskFixture(t, []float32{1, 0, 0},
		indexedChunk("c1", "Handbook", "irrelevant content", 1, []float32{0, 1, 0}),
	)

	result, err := svc.Ask(context.Background(), AskInput{
		UserID:   1,
		Question: "Is there a swimming pool on campus?",
	})
	require.NoError(t, err)

	assert.False(t, result.Grounded)
	assert.Equal(t, prompt.FallbackAnswer, result.Answer)
	assert.Empty(t, result.Citations)
	assert.Equal(t, 0, gen.calls, "generator must not be invoked without context")
}

// fakeAnswerCache keeps one entry per key in memory, mirroring the Redis
// cache's serialize/deserialize round trip.
type fakeAnswerCache struct {
	entries map[string][]byte
	sets    int
	gets    int
}

func newFakeAnswerCache() *fakeAnswerCache {
	return &fakeAnswerCache{entries: map[string][]byte{}}
}

func (c *fakeAnswerCache) cacheKey(question string, topK int, category string) string {
	return fmt.Sprintf("%d:%s:%s", topK, category, question)
}

func (c *fakeAnswerCache) Get(_ context.Context, question string, topK int, category string, out interface{}) (bool, error) {
	c.gets++
	raw, ok := c.entries[c.cacheKey(question, topK, category)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (c *fakeAnswerCache) Set(_ context.Context, question string, topK int, category string, payload interface{}) error {
	c.sets++
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.entries[c.cacheKey(question, topK, category)] = raw
	return nil
}

func TestAsk_SecondAskIsServedFromCache(t *testing.T) {
	svc, gen := newAskFixture(t, []float32{1, 0, 0},
		indexedChunk("c1", "Exam Calendar", "resit exams for S1 take place in February 2025", 12, []float32{1, 0, 0}),
	)
	cache := newFakeAnswerCache()
	svc.answerCache = cache

	input := AskInput{UserID: 1, Question: "When are the S1 resit exams in 2025?"}

	first, err := svc.Ask(context.Background(), input)
	require.NoError(t, err)
	require.True(t, first.Grounded)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.sets)

	second, err := svc.Ask(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, 1, gen.calls, "cache hit must not reach the generator")
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Citations, second.Citations)
	assert.NotEqual(t, first.AnswerID, second.AnswerID, "each delivery gets its own answer ID")
}

func TestAsk_CategoryScopesTheCacheKey(t *testing.T) {
	svc, gen := newAskFixture(t, []float32{1, 0, 0},
		indexedChunk("c1", "Exam Calendar", "resit exams for S1 take place in February 2025", 12, []float32{1, 0, 0}),
	)
	cache := newFakeAnswerCache()
	svc.answerCache = cache

	question := "When are the S1 resit exams in 2025?"
	_, err := svc.Ask(context.Background(), AskInput{UserID: 1, Question: question})
	require.NoError(t, err)

	// Same question restricted to a category the chunk is not in: the
	// unfiltered cache entry must not be replayed.
	result, err := svc.Ask(context.Background(), AskInput{UserID: 1, Question: question, Category: "notes"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 1, gen.calls, "filtered ask found no chunk, fallback skips the generator")
}

func TestAsk_FallbackAnswerIsNotCached(t *testing.T) {
	svc, gen := newAskFixture(t, []float32{1, 0, 0},
		indexedChunk("c1", "Handbook", "irrelevant content", 1, []float32{0, 1, 0}),
	)
	cache := newFakeAnswerCache()
	svc.answerCache = cache

	input := AskInput{UserID: 1, Question: "Is there a swimming pool on campus?"}

	first, err := svc.Ask(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, prompt.FallbackAnswer, first.Answer)
	assert.Equal(t, 0, cache.sets, "ungrounded answers must not be cached")

	second, err := svc.Ask(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, 0, gen.calls)
}

func TestAsk_EmptyGenerationIsNotCached(t *testing.T) {
	svc, gen := newAskFixture(t, []float32{1, 0, 0},
		indexedChunk("c1", "Exam Calendar", "resit exams for S1 take place in February 2025", 12, []float32{1, 0, 0}),
	)
	gen.answer = "   "
	cache := newFakeAnswerCache()
	svc.answerCache = cache

	result, err := svc.Ask(context.Background(), AskInput{UserID: 1, Question: "When are the resit exams?"})
	require.NoError(t, err)
	assert.Equal(t, prompt.FallbackAnswer, result.Answer)
	assert.False(t, result.Grounded)
	assert.Equal(t, 0, cache.sets)
}

func TestAsk_InvalidInput(t *testing.T) {
	svc, _ := newAskFixture(t, []float32{1, 0, 0})

	_, err := svc.Ask(context.Background(), AskInput{UserID: 0, Question: "q"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Ask(context.Background(), AskInput{UserID: 1, Question: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
