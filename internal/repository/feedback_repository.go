package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/hachimB/student-assistant/internal/model"
)

type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(feedback *model.Feedback) error {
	if err := r.db.Create(feedback).Error; err != nil {
		return fmt.Errorf("create feedback failed: %w", err)
	}
	return nil
}

func (r *FeedbackRepository) ListByAnswerID(answerID string) ([]model.Feedback, error) {
	var list []model.Feedback
	if err := r.db.Where("answer_id = ?", answerID).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list feedback by answer failed: %w", err)
	}
	return list, nil
}
