package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/session"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/sqlite"
)

type fakeQuestionSource struct {
	calls int
}

func (f *fakeQuestionSource) GenerateQuestions(_ context.Context, _, _, _ string, numQuestions int) []models.Question {
	f.calls++
	questions := make([]models.Question, numQuestions)
	for i := range questions {
		questions[i] = models.Question{Question: "Generated question", Type: "behavioral", Difficulty: "medium"}
	}
	return questions
}

type fakeQuestionCache struct {
	entries map[string][]models.Question
	sets    int
}

func newFakeQuestionCache() *fakeQuestionCache {
	return &fakeQuestionCache{entries: map[string][]models.Question{}}
}

func (f *fakeQuestionCache) GetQuestions(_ context.Context, jobHash string) ([]models.Question, bool, error) {
	questions, ok := f.entries[jobHash]
	return questions, ok, nil
}

func (f *fakeQuestionCache) SetQuestions(_ context.Context, jobHash string, questions []models.Question, _ time.Duration) error {
	f.sets++
	f.entries[jobHash] = questions
	return nil
}

type handlerFixture struct {
	app      *fiber.App
	store    *sqlite.Client
	source   *fakeQuestionSource
	cache    *fakeQuestionCache
	registry *session.Registry
	user     *models.User
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())

	user := &models.User{
		ID:             "u1",
		Email:          "alex@example.com",
		FullName:       "Alex Doe",
		HashedPassword: "hashed",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.CreateUser(user))

	source := &fakeQuestionSource{}
	cache := newFakeQuestionCache()
	registry := session.NewRegistry()
	handler := NewSessionHandler(store, source, cache, registry, 5, time.Hour)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	})
	app.Post("/sessions", handler.CreateSession)
	app.Get("/sessions", handler.ListSessions)
	app.Get("/sessions/:id", handler.GetSession)
	app.Get("/sessions/:id/status", handler.GetLiveStatus)

	return &handlerFixture{app: app, store: store, source: source, cache: cache, registry: registry, user: user}
}

func createSessionRequest(t *testing.T, body map[string]interface{}) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestCreateSessionGeneratesQuestions(t *testing.T) {
	fx := newHandlerFixture(t)

	resp, err := fx.app.Test(createSessionRequest(t, map[string]interface{}{
		"job_description": "Backend engineer role",
		"position":        "Backend Engineer",
		"num_questions":   3,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var sess models.Session
	decodeBody(t, resp, &sess)
	assert.Len(t, sess.Questions, 3)
	assert.Equal(t, models.StatusPending, sess.Status)
	assert.Equal(t, 1, fx.source.calls)
	assert.Equal(t, 1, fx.cache.sets)

	stored, err := fx.store.LoadSession(sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Questions, 3)
}

func TestCreateSessionCacheHitSkipsGenerator(t *testing.T) {
	fx := newHandlerFixture(t)

	body := map[string]interface{}{
		"job_description": "Backend engineer role",
		"position":        "Backend Engineer",
		"num_questions":   3,
	}

	resp, err := fx.app.Test(createSessionRequest(t, body))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, 1, fx.source.calls)

	resp, err = fx.app.Test(createSessionRequest(t, body))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, fx.source.calls, "second identical posting should be served from cache")
}

func TestCreateSessionResumeBypassesCache(t *testing.T) {
	fx := newHandlerFixture(t)

	body := map[string]interface{}{
		"job_description": "Backend engineer role",
		"position":        "Backend Engineer",
		"resume_text":     "Ten years of Go.",
		"num_questions":   3,
	}

	for i := 0; i < 2; i++ {
		resp, err := fx.app.Test(createSessionRequest(t, body))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	assert.Equal(t, 2, fx.source.calls, "resume-tailored questions must not be cached or served from cache")
	assert.Equal(t, 0, fx.cache.sets)
}

func TestCreateSessionValidatesBody(t *testing.T) {
	fx := newHandlerFixture(t)

	resp, err := fx.app.Test(createSessionRequest(t, map[string]interface{}{
		"position": "Backend Engineer",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, fx.source.calls)
}

func TestCreateSessionClampsQuestionCount(t *testing.T) {
	fx := newHandlerFixture(t)

	resp, err := fx.app.Test(createSessionRequest(t, map[string]interface{}{
		"job_description": "Backend engineer role",
		"position":        "Backend Engineer",
		"num_questions":   500,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var sess models.Session
	decodeBody(t, resp, &sess)
	assert.Len(t, sess.Questions, 5, "out-of-range count falls back to the default")
}

func TestGetSessionEnforcesOwnership(t *testing.T) {
	fx := newHandlerFixture(t)

	other := &models.User{
		ID:             "u2",
		Email:          "sam@example.com",
		FullName:       "Sam Lee",
		HashedPassword: "hashed",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, fx.store.CreateUser(other))
	require.NoError(t, fx.store.CreateSession(&models.Session{
		ID:             "s-other",
		UserID:         other.ID,
		JobDescription: "Role",
		Position:       "Engineer",
		Status:         models.StatusPending,
		SessionDate:    time.Now().UTC(),
	}))

	resp, err := fx.app.Test(httptest.NewRequest(http.MethodGet, "/sessions/s-other", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = fx.app.Test(httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetLiveStatusReportsRegistryState(t *testing.T) {
	fx := newHandlerFixture(t)

	require.NoError(t, fx.store.CreateSession(&models.Session{
		ID:             "s1",
		UserID:         fx.user.ID,
		JobDescription: "Role",
		Position:       "Engineer",
		Status:         models.StatusInProgress,
		SessionDate:    time.Now().UTC(),
	}))

	resp, err := fx.app.Test(httptest.NewRequest(http.MethodGet, "/sessions/s1/status", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	decodeBody(t, resp, &status)
	assert.Equal(t, false, status["connected"])

	require.True(t, fx.registry.Register("s1", &session.Entry{SessionID: "s1", UserID: fx.user.ID}))

	resp, err = fx.app.Test(httptest.NewRequest(http.MethodGet, "/sessions/s1/status", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	decodeBody(t, resp, &status)
	assert.Equal(t, true, status["connected"])
}
