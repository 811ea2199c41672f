package model

import "time"

// Chunk is one overlapping text segment of a document, the unit of
// retrieval. ChunkID is a hash of (document id, sequence index), so
// re-chunking the same document yields the same IDs. Offsets are rune
// offsets into the normalized document text.
type Chunk struct {
	ChunkID       string    `gorm:"primaryKey;size:64" json:"chunk_id"`
	DocumentID    string    `gorm:"size:64;not null;index" json:"document_id"`
	Category      string    `gorm:"size:32;index" json:"category,omitempty"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	StartOffset   int       `gorm:"not null" json:"start_offset"`
	EndOffset     int       `gorm:"not null" json:"end_offset"`
	PageNumber    int       `gorm:"not null" json:"page_number"`
	SequenceIndex int       `gorm:"not null" json:"sequence_index"`
	CreatedAt     time.Time `json:"created_at"`
}
