package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps all entries in process memory behind a single lock.
// It is the query working set of the MySQL-backed store and stands alone
// in tests. The lock serializes concurrent upserts to the same chunk:
// last writer wins.
type MemoryStore struct {
	mu        sync.RWMutex
	metric    Metric
	dimension int
	entries   map[string]Entry // keyed by chunk_id + "\x00" + model_id
}

func NewMemoryStore(metric Metric, dimension int) *MemoryStore {
	return &MemoryStore{
		metric:    metric,
		dimension: dimension,
		entries:   make(map[string]Entry),
	}
}

func (s *MemoryStore) Metric() Metric { return s.metric }

func (s *MemoryStore) Upsert(_ context.Context, entry Entry) error {
	if entry.Metric != s.metric {
		return fmt.Errorf("%w: store is %q, embedding is %q", ErrMetricMismatch, s.metric, entry.Metric)
	}
	if len(entry.Vector) != s.dimension {
		return fmt.Errorf("%w: store dimension %d, vector dimension %d",
			ErrDimensionMismatch, s.dimension, len(entry.Vector))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey(entry.ChunkID, entry.ModelID)] = entry
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: store dimension %d, query dimension %d",
			ErrDimensionMismatch, s.dimension, len(vector))
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// A chunk embedded under several models must still appear once; keep
	// its best distance.
	best := make(map[string]float64, len(s.entries))
	for _, e := range s.entries {
		d, err := Distance(s.metric, vector, e.Vector)
		if err != nil {
			return nil, err
		}
		if cur, ok := best[e.ChunkID]; !ok || d < cur {
			best[e.ChunkID] = d
		}
	}

	hits := make([]Hit, 0, len(best))
	for id, d := range best {
		hits = append(hits, Hit{ChunkID: id, Distance: d})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) Get(_ context.Context, chunkID string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ChunkID == chunkID {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if e.DocumentID == documentID {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.entries))
	for _, e := range s.entries {
		seen[e.ChunkID] = struct{}{}
	}
	return len(seen)
}

func entryKey(chunkID, modelID string) string {
	return chunkID + "\x00" + modelID
}
