package index

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch means a vector's dimension disagrees with the
	// store's configured dimension: embedding model drift, fatal for that
	// operation and never retried silently.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrMetricMismatch means an embedding was computed under a different
	// similarity metric than the store is configured for.
	ErrMetricMismatch = errors.New("similarity metric mismatch")

	ErrUnknownMetric = errors.New("unknown similarity metric")
)

// Metric identifies the similarity metric a store's distances are
// computed under.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricEuclidean:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

// Entry is one indexed chunk with its embedding and citation metadata.
type Entry struct {
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	Category      string
	Text          string
	StartOffset   int
	EndOffset     int
	PageNumber    int
	SequenceIndex int
	ModelID       string
	Metric        Metric
	Vector        []float32
}

// Hit is one nearest-neighbor match, smaller distance meaning a better
// match.
type Hit struct {
	ChunkID  string
	Distance float64
}

// Store persists (chunk, vector, metadata) records and answers
// nearest-neighbor queries.
//
// Upsert is idempotent on (chunk_id, model_id) and replaces the existing
// record. Query returns at most k hits ordered by ascending distance,
// ties broken by chunk_id ascending so identical queries against an
// unchanged store return identical results.
type Store interface {
	Upsert(ctx context.Context, entry Entry) error
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Get(ctx context.Context, chunkID string) (Entry, bool, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count() int
	Metric() Metric
}

// Distance computes the configured metric's distance between two vectors
// of equal dimension. Cosine distance is 1 - cosine similarity, so both
// metrics order best-match-first ascending.
func Distance(metric Metric, a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	switch metric {
	case MetricCosine:
		return cosineDistance(a, b), nil
	case MetricEuclidean:
		return euclideanDistance(a, b), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
}

func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
