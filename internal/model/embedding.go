package model

import (
	"encoding/json"
	"time"
)

// Embedding stores the vector computed for a chunk under a specific
// embedding model. One row per (chunk_id, model_id): re-embedding with a
// different model creates a new record instead of overwriting. The vector
// is stored as a JSON array of float32 for portability.
type Embedding struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChunkID   string    `gorm:"size:64;not null;uniqueIndex:idx_chunk_model" json:"chunk_id"`
	ModelID   string    `gorm:"size:128;not null;uniqueIndex:idx_chunk_model" json:"model_id"`
	Metric    string    `gorm:"size:16;not null" json:"metric"`
	Dimension int       `gorm:"not null" json:"dimension"`
	Vector    string    `gorm:"type:mediumtext;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// VectorSlice returns the parsed vector; nil on parse error.
func (e *Embedding) VectorSlice() []float32 {
	if e.Vector == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(e.Vector), &v)
	return v
}

// SetVector stores the vector as JSON and records its dimension.
func (e *Embedding) SetVector(vec []float32) {
	e.Dimension = len(vec)
	if len(vec) == 0 {
		e.Vector = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	e.Vector = string(b)
}
