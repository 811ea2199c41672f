package model

import "time"

// Feedback is a student's rating of one generated answer, keyed by the
// answer's correlation ID.
type Feedback struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AnswerID  string    `gorm:"size:36;not null;index" json:"answer_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Rating    int       `gorm:"not null" json:"rating"` // 1-5
	Comment   string    `gorm:"size:1024" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
