package app

import (
	"strings"

	"github.com/hachimB/student-assistant/internal/model"
)

// FeedbackStore is the feedback persistence boundary, satisfied by
// repository.FeedbackRepository.
type FeedbackStore interface {
	Create(feedback *model.Feedback) error
	ListByAnswerID(answerID string) ([]model.Feedback, error)
}

type FeedbackService struct {
	feedbackRepo FeedbackStore
}

func NewFeedbackService(feedbackRepo FeedbackStore) *FeedbackService {
	return &FeedbackService{feedbackRepo: feedbackRepo}
}

type FeedbackInput struct {
	UserID   uint
	AnswerID string
	Rating   int
	Comment  string
}

func (s *FeedbackService) Submit(input FeedbackInput) (*model.Feedback, error) {
	answerID := strings.TrimSpace(input.AnswerID)
	if input.UserID == 0 || answerID == "" || input.Rating < 1 || input.Rating > 5 {
		return nil, ErrInvalidInput
	}
	feedback := &model.Feedback{
		AnswerID: answerID,
		UserID:   input.UserID,
		Rating:   input.Rating,
		Comment:  strings.TrimSpace(input.Comment),
	}
	if err := s.feedbackRepo.Create(feedback); err != nil {
		return nil, err
	}
	return feedback, nil
}

// ListByAnswer returns all feedback left on one answer.
func (s *FeedbackService) ListByAnswer(answerID string) ([]model.Feedback, error) {
	answerID = strings.TrimSpace(answerID)
	if answerID == "" {
		return nil, ErrInvalidInput
	}
	return s.feedbackRepo.ListByAnswerID(answerID)
}
