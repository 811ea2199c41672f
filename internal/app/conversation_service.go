package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hachimB/student-assistant/internal/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEnqueue  = errors.New("message enqueue failed")
)

// AsyncMessagePublisher hands messages to the persistence queue; a worker
// writes them to MySQL off the request path.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

// SessionStore is the session persistence boundary, satisfied by
// repository.SessionRepository.
type SessionStore interface {
	Create(session *model.Session) error
	ListByUserID(userID uint) ([]model.Session, error)
	GetByIDAndUserID(sessionID, userID uint) (*model.Session, error)
	DeleteByIDAndUserID(sessionID, userID uint) error
}

// MessageStore is the message persistence boundary, satisfied by
// repository.MessageRepository.
type MessageStore interface {
	ListBySessionID(sessionID uint, limit int) ([]model.Message, error)
	DeleteBySessionID(sessionID uint) error
}

// HistoryCache fronts the message table for history reads.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// ConversationService manages question/answer sessions and their history.
type ConversationService struct {
	sessionRepo  SessionStore
	messageRepo  MessageStore
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
}

func NewConversationService(
	sessionRepo SessionStore,
	messageRepo MessageStore,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
) *ConversationService {
	return &ConversationService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
		historyCache: historyCache,
	}
}

type CreateSessionInput struct {
	UserID uint
	Title  string
}

func (s *ConversationService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New conversation"
	}
	session := &model.Session{UserID: input.UserID, Title: title}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ConversationService) ListSessions(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ConversationService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

// Exchange is one question/answer pair appended to a session.
type Exchange struct {
	UserID    uint
	SessionID uint
	Question  string
	Answer    model.Message
}

// AppendExchange queues both turns for asynchronous persistence and
// invalidates the cached history.
func (s *ConversationService) AppendExchange(ctx context.Context, exchange Exchange) error {
	if exchange.UserID == 0 || exchange.SessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(exchange.SessionID, exchange.UserID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if s.publisher == nil {
		return ErrMessageEnqueue
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, exchange.SessionID)
		_ = s.historyCache.DeleteHistory(ctx, exchange.SessionID)
	}

	question := model.Message{
		SessionID: exchange.SessionID,
		UserID:    exchange.UserID,
		Role:      "user",
		Content:   exchange.Question,
		CreatedAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, question); err != nil {
		return ErrMessageEnqueue
	}
	if err := s.publisher.Publish(ctx, exchange.Answer); err != nil {
		return ErrMessageEnqueue
	}
	return nil
}

// GetHistory serves session history through the cache. While the async
// writer may still be flushing (dirty marker set), history is read from
// MySQL and not re-cached.
func (s *ConversationService) GetHistory(ctx context.Context, userID, sessionID uint, limit int) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	cacheable := true
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, err := s.historyCache.GetHistory(ctx, sessionID); err == nil && hit {
				return cached, nil
			}
		}
		cacheable = err == nil && !dirty
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil && cacheable {
		_ = s.historyCache.SetHistory(ctx, sessionID, messages)
	}
	return messages, nil
}
