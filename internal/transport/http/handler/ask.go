package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hachimB/student-assistant/internal/ai"
	"github.com/hachimB/student-assistant/internal/app"
	"github.com/hachimB/student-assistant/internal/loader"
	"github.com/hachimB/student-assistant/internal/transport/http/response"
)

type AskHandler struct {
	ragService      *app.RAGService
	feedbackService *app.FeedbackService
}

type AskRequest struct {
	Question  string  `json:"question" binding:"required"`
	SessionID uint    `json:"session_id"`
	TopK      int     `json:"top_k"`
	MinScore  float64 `json:"min_score"`
	Category  string  `json:"category"`
}

type FeedbackRequest struct {
	AnswerID string `json:"answer_id" binding:"required"`
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Comment  string `json:"comment" binding:"max=2000"`
}

func NewAskHandler(ragService *app.RAGService, feedbackService *app.FeedbackService) *AskHandler {
	return &AskHandler{ragService: ragService, feedbackService: feedbackService}
}

func (h *AskHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if req.Category != "" && !loader.ValidCategory(req.Category) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unknown category")
		return
	}

	result, err := h.ragService.Ask(c.Request.Context(), app.AskInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Question:  req.Question,
		TopK:      req.TopK,
		MinScore:  req.MinScore,
		Category:  req.Category,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		case errors.Is(err, ai.ErrEmbeddingService), errors.Is(err, ai.ErrGenerationService):
			response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *AskHandler) SubmitFeedback(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	feedback, err := h.feedbackService.Submit(app.FeedbackInput{
		UserID:   userID,
		AnswerID: req.AnswerID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "submit feedback failed")
		}
		return
	}

	response.OK(c, feedback)
}

// ListFeedback returns all feedback left on one answer.
func (h *AskHandler) ListFeedback(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	list, err := h.feedbackService.ListByAnswer(c.Param("answer_id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list feedback failed")
		}
		return
	}

	response.OK(c, list)
}
