package model

import "time"

// Message is one turn of a conversation. Assistant messages carry the
// answer correlation ID and the citations backing the answer, stored as a
// JSON array.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Role      string    `gorm:"size:16;not null;index" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	AnswerID  string    `gorm:"size:36" json:"answer_id,omitempty"`
	Citations string    `gorm:"type:text" json:"citations,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
