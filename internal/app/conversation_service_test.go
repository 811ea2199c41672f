package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hachimB/student-assistant/internal/model"
)

type memSessionStore struct {
	sessions map[uint]model.Session
	nextID   uint
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[uint]model.Session{}, nextID: 1}
}

func (m *memSessionStore) Create(session *model.Session) error {
	session.ID = m.nextID
	m.nextID++
	m.sessions[session.ID] = *session
	return nil
}

func (m *memSessionStore) ListByUserID(userID uint) ([]model.Session, error) {
	var out []model.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessionStore) GetByIDAndUserID(sessionID, userID uint) (*model.Session, error) {
	if s, ok := m.sessions[sessionID]; ok && s.UserID == userID {
		return &s, nil
	}
	return nil, nil
}

func (m *memSessionStore) DeleteByIDAndUserID(sessionID, userID uint) error {
	if s, ok := m.sessions[sessionID]; ok && s.UserID == userID {
		delete(m.sessions, s.ID)
	}
	return nil
}

type memMessageStore struct {
	messages map[uint][]model.Message
	reads    int
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{messages: map[uint][]model.Message{}}
}

func (m *memMessageStore) ListBySessionID(sessionID uint, limit int) ([]model.Message, error) {
	m.reads++
	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *memMessageStore) DeleteBySessionID(sessionID uint) error {
	delete(m.messages, sessionID)
	return nil
}

// recordingHistoryCache stores history in memory and remembers the last
// context each call received.
type recordingHistoryCache struct {
	history map[uint][]model.Message
	dirty   map[uint]bool
	lastCtx context.Context
}

func newRecordingHistoryCache() *recordingHistoryCache {
	return &recordingHistoryCache{
		history: map[uint][]model.Message{},
		dirty:   map[uint]bool{},
	}
}

func (c *recordingHistoryCache) GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error) {
	c.lastCtx = ctx
	msgs, ok := c.history[sessionID]
	return msgs, ok, nil
}

func (c *recordingHistoryCache) SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error {
	c.lastCtx = ctx
	c.history[sessionID] = messages
	return nil
}

func (c *recordingHistoryCache) DeleteHistory(ctx context.Context, sessionID uint) error {
	c.lastCtx = ctx
	delete(c.history, sessionID)
	return nil
}

func (c *recordingHistoryCache) MarkDirty(ctx context.Context, sessionID uint) error {
	c.lastCtx = ctx
	c.dirty[sessionID] = true
	return nil
}

func (c *recordingHistoryCache) IsDirty(ctx context.Context, sessionID uint) (bool, error) {
	c.lastCtx = ctx
	return c.dirty[sessionID], nil
}

type ctxMarkerKey struct{}

func newConversationFixture(t *testing.T) (*ConversationService, *memSessionStore, *memMessageStore, *recordingHistoryCache) {
	t.Helper()
	sessions := newMemSessionStore()
	messages := newMemMessageStore()
	cache := newRecordingHistoryCache()
	svc := NewConversationService(sessions, messages, nil, cache)
	return svc, sessions, messages, cache
}

func TestCreateSession_DefaultsTitle(t *testing.T) {
	svc, _, _, _ := newConversationFixture(t)

	session, err := svc.CreateSession(CreateSessionInput{UserID: 7, Title: "   "})
	require.NoError(t, err)
	assert.Equal(t, "New conversation", session.Title)
	assert.NotZero(t, session.ID)

	_, err = svc.CreateSession(CreateSessionInput{UserID: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetHistory_ServesFromCacheUnlessDirty(t *testing.T) {
	svc, _, messages, cache := newConversationFixture(t)
	session, err := svc.CreateSession(CreateSessionInput{UserID: 7, Title: "exams"})
	require.NoError(t, err)
	messages.messages[session.ID] = []model.Message{
		{SessionID: session.ID, UserID: 7, Role: "user", Content: "when are resits?"},
	}

	first, err := svc.GetHistory(context.Background(), 7, session.ID, 50)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, messages.reads, "miss goes to the store and fills the cache")

	second, err := svc.GetHistory(context.Background(), 7, session.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, messages.reads, "hit must not touch the store")

	// While the async writer still owes messages, the store is the source
	// of truth and the stale snapshot must not be re-cached.
	cache.dirty[session.ID] = true
	delete(cache.history, session.ID)
	_, err = svc.GetHistory(context.Background(), 7, session.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, messages.reads)
	_, cached := cache.history[session.ID]
	assert.False(t, cached, "dirty history must not be re-cached")
}

func TestGetHistory_UnknownSession(t *testing.T) {
	svc, _, _, _ := newConversationFixture(t)
	_, err := svc.GetHistory(context.Background(), 7, 99, 50)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession_RemovesMessagesAndCachedHistory(t *testing.T) {
	svc, sessions, messages, cache := newConversationFixture(t)
	session, err := svc.CreateSession(CreateSessionInput{UserID: 7, Title: "exams"})
	require.NoError(t, err)
	messages.messages[session.ID] = []model.Message{{SessionID: session.ID, UserID: 7}}
	cache.history[session.ID] = messages.messages[session.ID]

	require.NoError(t, svc.DeleteSession(context.Background(), 7, session.ID))

	assert.Empty(t, sessions.sessions)
	assert.Empty(t, messages.messages)
	assert.Empty(t, cache.history)

	err = svc.DeleteSession(context.Background(), 7, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession_OtherUsersSessionIsInvisible(t *testing.T) {
	svc, _, _, _ := newConversationFixture(t)
	session, err := svc.CreateSession(CreateSessionInput{UserID: 7, Title: "exams"})
	require.NoError(t, err)

	err = svc.DeleteSession(context.Background(), 8, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConversation_CallerContextReachesCache(t *testing.T) {
	svc, _, messages, cache := newConversationFixture(t)
	session, err := svc.CreateSession(CreateSessionInput{UserID: 7, Title: "exams"})
	require.NoError(t, err)
	messages.messages[session.ID] = []model.Message{{SessionID: session.ID, UserID: 7}}

	ctx := context.WithValue(context.Background(), ctxMarkerKey{}, "request")

	_, err = svc.GetHistory(ctx, 7, session.ID, 50)
	require.NoError(t, err)
	require.NotNil(t, cache.lastCtx)
	assert.Equal(t, "request", cache.lastCtx.Value(ctxMarkerKey{}))

	cache.lastCtx = nil
	require.NoError(t, svc.DeleteSession(ctx, 7, session.ID))
	require.NotNil(t, cache.lastCtx)
	assert.Equal(t, "request", cache.lastCtx.Value(ctxMarkerKey{}))
}
