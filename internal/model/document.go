package model

import "time"

// Document is one ingested university document. The ID is a content hash,
// so re-ingesting the same file resolves to the same record. Category is
// the taxonomy directory the file came from, empty when uncategorized.
type Document struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	SourcePath string    `gorm:"size:512;not null" json:"source_path"`
	Title      string    `gorm:"size:256;not null" json:"title"`
	Category   string    `gorm:"size:32;index" json:"category,omitempty"`
	PageCount  int       `gorm:"not null" json:"page_count"`
	ChunkCount int       `gorm:"not null" json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}
