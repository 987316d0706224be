package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/analysis"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
)

type fakeConn struct {
	mu        sync.Mutex
	in        chan []byte
	out       []map[string]interface{}
	closed    bool
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 32), closeCode: -1}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	b, ok := <-c.in
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, b, nil
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	c.out = append(c.out, m)
	return nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		c.mu.Lock()
		c.closeCode = int(binary.BigEndian.Uint16(data[:2]))
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) send(t *testing.T, msg map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	c.in <- raw
}

func (c *fakeConn) messageTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, 0, len(c.out))
	for _, m := range c.out {
		if s, ok := m["type"].(string); ok {
			types = append(types, s)
		}
	}
	return types
}

func (c *fakeConn) lastOfType(msgType string) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.out) - 1; i >= 0; i-- {
		if c.out[i]["type"] == msgType {
			return c.out[i]
		}
	}
	return nil
}

type fakeStore struct {
	mu          sync.Mutex
	sess        *models.Session
	users       map[string]*models.User
	statusLog   []models.SessionStatus
	responses   []*models.Response
	report      *models.FeedbackReport
	markStarted bool
	minutes     float64
	failAppend  bool
}

func newFakeStore(sess *models.Session, users ...*models.User) *fakeStore {
	s := &fakeStore{sess: sess, users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.Email] = u
	}
	return s
}

func (s *fakeStore) LoadSession(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil || s.sess.ID != id {
		return nil, fmt.Errorf("session %s not found", id)
	}
	copied := *s.sess
	copied.Questions = append([]models.Question(nil), s.sess.Questions...)
	return &copied, nil
}

func (s *fakeStore) GetUserByEmail(email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, fmt.Errorf("user %s not found", email)
	}
	return user, nil
}

func (s *fakeStore) MarkStarted(sessionID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markStarted = true
	s.statusLog = append(s.statusLog, models.StatusInProgress)
	return nil
}

func (s *fakeStore) AppendResponse(sessionID string, response *models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return errors.New("disk full")
	}
	s.responses = append(s.responses, response)
	return nil
}

func (s *fakeStore) SetStatus(sessionID string, status models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusLog = append(s.statusLog, status)
	return nil
}

func (s *fakeStore) SaveReport(sessionID string, report *models.FeedbackReport, durationMinutes float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
	s.statusLog = append(s.statusLog, models.StatusCompleted)
	return nil
}

func (s *fakeStore) IncrementOwnerStat(userID string, minutes float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minutes += minutes
	return nil
}

func (s *fakeStore) statuses() []models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SessionStatus(nil), s.statusLog...)
}

type fakeCoach struct{}

func (fakeCoach) EvaluateAnswer(_ context.Context, question, answer, questionType string) *models.Evaluation {
	return &models.Evaluation{
		RelevanceScore: 80,
		ClarityScore:   80,
		OverallScore:   80,
		Feedback:       "Solid answer.",
	}
}

func (fakeCoach) GenerateFollowUp(_ context.Context, prevQuestion, answer, jobContext string) models.Question {
	return models.Question{Question: "Could you expand on the outcome?", Type: "follow_up", Difficulty: "medium"}
}

type fakeReporter struct{}

func (fakeReporter) Generate(_ context.Context, responses []models.Response, userName string) *models.FeedbackReport {
	return &models.FeedbackReport{
		OverallScore:     75,
		DetailedFeedback: "Good session overall.",
	}
}

type fakeTokens map[string]string

func (f fakeTokens) ValidateToken(token string) (string, error) {
	email, ok := f[token]
	if !ok {
		return "", errors.New("invalid token")
	}
	return email, nil
}

func testUser() *models.User {
	return &models.User{ID: "u1", Email: "alex@example.com", FullName: "Alex Doe"}
}

func testSession(questions ...string) *models.Session {
	qs := make([]models.Question, 0, len(questions))
	for _, q := range questions {
		qs = append(qs, models.Question{Question: q, Type: "behavioral", Difficulty: "medium"})
	}
	return &models.Session{
		ID:        "s1",
		UserID:    "u1",
		Status:    models.StatusPending,
		Questions: qs,
	}
}

func runProtocol(t *testing.T, conn *fakeConn, store *fakeStore) (*Registry, chan struct{}) {
	t.Helper()
	return runProtocolWith(t, conn, store, NewRegistry(), time.Hour)
}

func runProtocolWith(t *testing.T, conn *fakeConn, store *fakeStore, registry *Registry, heartbeat time.Duration) (*Registry, chan struct{}) {
	t.Helper()
	proto := NewProtocol(conn, Options{
		Store:             store,
		Coach:             fakeCoach{},
		Reporter:          fakeReporter{},
		Tokens:            fakeTokens{"good-token": "alex@example.com", "other-token": "sam@example.com"},
		Registry:          registry,
		Pool:              analysis.NewPool(1),
		HeartbeatInterval: heartbeat,
		Cooldown:          15 * time.Second,
	})

	done := make(chan struct{})
	go func() {
		proto.Run(context.Background(), "s1")
		close(done)
	}()
	return registry, done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("protocol did not finish")
	}
}

func TestCompletedSessionFlow(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1", "Q2"), testUser())
	registry, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})
	conn.send(t, map[string]interface{}{"type": "answer", "question": "Q1", "answer": "An answer.", "duration": 30.0})
	conn.send(t, map[string]interface{}{"type": "answer", "question": "Q2", "answer": "Another answer.", "duration": 25.0})
	conn.send(t, map[string]interface{}{"type": "end_session"})

	waitDone(t, done)

	types := conn.messageTypes()
	assert.Equal(t, []string{
		"auth_success",
		"session_started",
		"next_question",
		"answer_feedback",
		"next_question",
		"answer_feedback",
		"all_questions_complete",
		"session_complete",
	}, types)

	assert.Equal(t, []models.SessionStatus{models.StatusInProgress, models.StatusCompleted}, store.statuses())
	assert.Equal(t, websocket.CloseNormalClosure, conn.closeCode)
	assert.Len(t, store.responses, 2)
	require.NotNil(t, store.report)
	assert.Zero(t, registry.Len(), "completed session must be released")

	complete := conn.lastOfType("session_complete")
	require.NotNil(t, complete)
	assert.Equal(t, "s1", complete["session_id"])
}

func TestDisconnectMidSessionAborts(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	registry, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})
	close(conn.in)

	waitDone(t, done)

	assert.Equal(t, []models.SessionStatus{models.StatusInProgress, models.StatusAborted}, store.statuses())
	assert.Zero(t, registry.Len())
}

func TestPreAuthMessagesIgnored(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	_, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "answer", "question": "Q1", "answer": "sneaky"})
	conn.send(t, map[string]interface{}{"type": "video_frame", "data": "abcd"})
	conn.send(t, map[string]interface{}{"type": "ping"})
	close(conn.in)

	waitDone(t, done)

	assert.Equal(t, []string{"pong"}, conn.messageTypes())
	assert.False(t, store.markStarted)
	assert.Empty(t, store.statuses())
	assert.Empty(t, store.responses)
}

func TestWrongOwnerClosedUnauthorized(t *testing.T) {
	conn := newFakeConn()
	other := &models.User{ID: "u2", Email: "sam@example.com", FullName: "Sam Lee"}
	store := newFakeStore(testSession("Q1"), testUser(), other)
	_, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "other-token"})

	waitDone(t, done)

	assert.Equal(t, websocket.ClosePolicyViolation, conn.closeCode)
	assert.False(t, store.markStarted)
}

func TestInvalidTokenClosedUnauthorized(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	_, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "forged"})

	waitDone(t, done)

	assert.Equal(t, websocket.ClosePolicyViolation, conn.closeCode)
	assert.False(t, store.markStarted)
}

func TestUnknownSessionClosed(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(nil)
	_, done := runProtocol(t, conn, store)

	waitDone(t, done)

	assert.Equal(t, websocket.CloseUnsupportedData, conn.closeCode)
}

func TestFollowUpSubstitutesNextQuestion(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1", "Q2"), testUser())
	_, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})
	conn.send(t, map[string]interface{}{
		"type":             "answer",
		"question":         "Q1",
		"answer":           "An answer.",
		"duration":         30.0,
		"request_followup": true,
	})
	close(conn.in)

	waitDone(t, done)

	next := conn.lastOfType("next_question")
	require.NotNil(t, next)
	question := next["question"].(map[string]interface{})
	assert.Equal(t, "Could you expand on the outcome?", question["question"])
	assert.Equal(t, float64(2), next["question_number"])
}

func TestVideoFrameProducesAnalytics(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	_, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})
	conn.send(t, map[string]interface{}{"type": "video_frame", "data": "not a real frame"})
	close(conn.in)

	waitDone(t, done)

	analytics := conn.lastOfType("analytics")
	require.NotNil(t, analytics)
	video := analytics["video"].(map[string]interface{})
	issues := video["issues"].([]interface{})
	assert.Contains(t, issues, "analysis_failed")
}

func TestPersistenceFailureClosesWithServerError(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	store.failAppend = true
	_, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})
	conn.send(t, map[string]interface{}{"type": "answer", "question": "Q1", "answer": "An answer."})

	waitDone(t, done)

	assert.Equal(t, websocket.CloseInternalServerErr, conn.closeCode)
	assert.Contains(t, store.statuses(), models.StatusAborted)
}

func TestAnswerAfterExhaustionIgnored(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	_, done := runProtocol(t, conn, store)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})
	conn.send(t, map[string]interface{}{"type": "answer", "question": "Q1", "answer": "An answer.", "duration": 30.0})
	conn.send(t, map[string]interface{}{"type": "answer", "question": "Q1", "answer": "A second try.", "duration": 10.0})
	conn.send(t, map[string]interface{}{"type": "end_session"})

	waitDone(t, done)

	assert.Len(t, store.responses, 1, "answers past the question list must not be recorded")
	assert.Equal(t, websocket.CloseNormalClosure, conn.closeCode)
}

func (c *fakeConn) countOfType(msgType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.out {
		if m["type"] == msgType {
			n++
		}
	}
	return n
}

func TestDuplicateConnectionDoesNotEvictWinner(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	registry := NewRegistry()

	winner := &Entry{SessionID: "s1", UserID: "u1"}
	require.True(t, registry.Register("s1", winner))

	_, done := runProtocolWith(t, conn, store, registry, time.Hour)
	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})

	waitDone(t, done)

	assert.Equal(t, websocket.CloseInternalServerErr, conn.closeCode)
	assert.Same(t, winner, registry.Get("s1"), "losing connection must not release the live entry")
}

func TestHeartbeatStopsAfterClose(t *testing.T) {
	conn := newFakeConn()
	store := newFakeStore(testSession("Q1"), testUser())
	_, done := runProtocolWith(t, conn, store, NewRegistry(), 5*time.Millisecond)

	conn.send(t, map[string]interface{}{"type": "auth", "token": "good-token"})
	time.Sleep(30 * time.Millisecond)
	close(conn.in)

	waitDone(t, done)

	count := conn.countOfType("heartbeat")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, conn.countOfType("heartbeat"), "no heartbeats may arrive once the connection is closed")
}
