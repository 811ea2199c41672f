package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// AnswerCache memoizes generated answers per normalized question. The
// index changes only at ingestion time, so a short TTL keeps repeated
// questions from re-running retrieval and generation without serving
// stale answers for long after a re-ingest.
type AnswerCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redisv9.Client, ttl time.Duration) *AnswerCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AnswerCache{client: client, ttl: ttl}
}

// Get returns the cached payload for a question, unmarshalled into out.
func (c *AnswerCache) Get(ctx context.Context, question string, topK int, category string, out interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, c.key(question, topK, category)).Result()
	if err == redisv9.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get answer failed: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("unmarshal cached answer failed: %w", err)
	}
	return true, nil
}

func (c *AnswerCache) Set(ctx context.Context, question string, topK int, category string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal answer failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(question, topK, category), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer failed: %w", err)
	}
	return nil
}

// Invalidate drops all cached answers, called after ingestion changes the
// index.
func (c *AnswerCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "assistant:answer:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete answer failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan answers failed: %w", err)
	}
	return nil
}

// key hashes the normalized question; topK and category are part of the
// key because both change what the same question retrieves.
func (c *AnswerCache) key(question string, topK int, category string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("assistant:answer:%d:%s:%s", topK, category, hex.EncodeToString(sum[:]))
}
