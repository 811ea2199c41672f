package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hachimB/student-assistant/internal/index"
)

// Embedder is the query-time collaborator boundary: text in, fixed
// dimension vector out.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	DefaultTopK     = 4
	DefaultMinScore = 0.25
)

// Config sets the retrieval defaults; per-request values can override
// TopK and MinScore.
type Config struct {
	TopK          int
	MinScore      float64
	MergeAdjacent bool
}

// Result is one retrieved context block, ephemeral to the query that
// produced it. Score is normalized to 0..1, higher meaning more relevant,
// regardless of the store's distance metric.
type Result struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Category      string  `json:"category,omitempty"`
	Text          string  `json:"text"`
	PageNumber    int     `json:"page_number"`
	SequenceIndex int     `json:"sequence_index"`
	StartOffset   int     `json:"-"`
	EndOffset     int     `json:"-"`
	Score         float64 `json:"score"`
	Rank          int     `json:"rank"`
}

type Retriever struct {
	embedder Embedder
	store    index.Store
	cfg      Config
}

func New(embedder Embedder, store index.Store, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore < 0 {
		cfg.MinScore = 0
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg}
}

// Retrieve embeds the question, queries the store for the topK nearest
// chunks and drops results under minScore. A non-empty category restricts
// results to chunks of documents in that category. An emptied result set
// is returned as an empty slice, never padded with low-relevance chunks;
// the caller must handle it explicitly instead of generating
// unconstrained. Pass topK <= 0 or minScore < 0 to use the configured
// defaults.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, minScore float64, category string) ([]Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if minScore < 0 {
		minScore = r.cfg.MinScore
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	// With a category filter the store is scanned in full and narrowed
	// afterwards, so the filter cannot starve topK.
	queryK := topK
	if category != "" {
		queryK = r.store.Count()
	}
	hits, err := r.store.Query(ctx, vector, queryK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if len(results) == topK {
			break
		}
		score := scoreFromDistance(r.store.Metric(), hit.Distance)
		if score < minScore {
			continue
		}
		entry, ok, err := r.store.Get(ctx, hit.ChunkID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if category != "" && entry.Category != category {
			continue
		}
		results = append(results, Result{
			ChunkID:       entry.ChunkID,
			DocumentID:    entry.DocumentID,
			DocumentTitle: entry.DocumentTitle,
			Category:      entry.Category,
			Text:          entry.Text,
			PageNumber:    entry.PageNumber,
			SequenceIndex: entry.SequenceIndex,
			StartOffset:   entry.StartOffset,
			EndOffset:     entry.EndOffset,
			Score:         score,
			Rank:          len(results) + 1,
		})
	}

	if r.cfg.MergeAdjacent {
		results = mergeAdjacent(results)
	}
	return results, nil
}

// scoreFromDistance converts a metric distance into a 0..1 relevance
// score: 1-d for cosine, 1/(1+d) for euclidean.
func scoreFromDistance(metric index.Metric, distance float64) float64 {
	switch metric {
	case index.MetricEuclidean:
		return 1 / (1 + distance)
	default:
		score := 1 - distance
		if score < 0 {
			return 0
		}
		return score
	}
}

// mergeAdjacent combines retrieved chunks that sit next to each other in
// the same document into one context block, dropping the duplicated
// overlap so the prompt does not carry the same text twice. The merged
// block keeps the best rank and score of its parts.
func mergeAdjacent(results []Result) []Result {
	if len(results) < 2 {
		return results
	}

	ordered := make([]Result, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].DocumentID != ordered[j].DocumentID {
			return ordered[i].DocumentID < ordered[j].DocumentID
		}
		return ordered[i].SequenceIndex < ordered[j].SequenceIndex
	})

	merged := []Result{ordered[0]}
	for _, cur := range ordered[1:] {
		last := &merged[len(merged)-1]
		if cur.DocumentID == last.DocumentID && cur.SequenceIndex == last.SequenceIndex+1 {
			overlap := last.EndOffset - cur.StartOffset
			tail := []rune(cur.Text)
			if overlap > 0 && overlap <= len(tail) {
				tail = tail[overlap:]
			}
			last.Text += string(tail)
			last.EndOffset = cur.EndOffset
			last.SequenceIndex = cur.SequenceIndex
			if cur.Score > last.Score {
				last.Score = cur.Score
			}
			if cur.Rank < last.Rank {
				last.Rank = cur.Rank
			}
			continue
		}
		merged = append(merged, cur)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Rank < merged[j].Rank })
	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged
}
