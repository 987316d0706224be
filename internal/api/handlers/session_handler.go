package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/session"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/sqlite"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/utils"
)

// QuestionSource generates the interview question set for a new session.
type QuestionSource interface {
	GenerateQuestions(ctx context.Context, jobDescription, resumeText, position string, numQuestions int) []models.Question
}

// QuestionCache stores generated question sets keyed by job-context hash.
// Satisfied by the redis client.
type QuestionCache interface {
	GetQuestions(ctx context.Context, jobHash string) ([]models.Question, bool, error)
	SetQuestions(ctx context.Context, jobHash string, questions []models.Question, ttl time.Duration) error
}

type SessionHandler struct {
	store     *sqlite.Client
	questions QuestionSource
	cache     QuestionCache // nil when the cache is disabled
	registry  *session.Registry

	defaultQuestionCount int
	questionCacheTTL     time.Duration
}

func NewSessionHandler(store *sqlite.Client, questions QuestionSource, cacheClient QuestionCache, registry *session.Registry, defaultQuestionCount int, questionCacheTTL time.Duration) *SessionHandler {
	return &SessionHandler{
		store:                store,
		questions:            questions,
		cache:                cacheClient,
		registry:             registry,
		defaultQuestionCount: defaultQuestionCount,
		questionCacheTTL:     questionCacheTTL,
	}
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req struct {
		JobDescription string `json:"job_description"`
		CompanyName    string `json:"company_name"`
		Position       string `json:"position"`
		ResumeText     string `json:"resume_text"`
		NumQuestions   int    `json:"num_questions"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.JobDescription == "" || req.Position == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "job_description and position are required",
		})
	}

	numQuestions := req.NumQuestions
	if numQuestions <= 0 || numQuestions > 30 {
		numQuestions = h.defaultQuestionCount
	}

	questions := h.generateQuestions(c.Context(), req.JobDescription, req.ResumeText, req.Position, numQuestions)

	sess := &models.Session{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		JobDescription: req.JobDescription,
		CompanyName:    req.CompanyName,
		Position:       req.Position,
		Status:         models.StatusPending,
		SessionDate:    time.Now().UTC(),
		Questions:      questions,
		Responses:      []models.Response{},
	}

	if err := h.store.CreateSession(sess); err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	logger.Info("Interview session created",
		zap.String("session_id", sess.ID),
		zap.String("user_id", user.ID),
		zap.Int("questions", len(questions)))

	return c.Status(fiber.StatusCreated).JSON(sess)
}

// generateQuestions serves identical job postings from the cache so
// repeated practice against one job does not re-bill the language model.
func (h *SessionHandler) generateQuestions(ctx context.Context, jobDescription, resumeText, position string, numQuestions int) []models.Question {
	jobHash := utils.HashString(jobDescription + "|" + position)

	if h.cache != nil && resumeText == "" {
		if cached, ok, err := h.cache.GetQuestions(ctx, jobHash); err == nil && ok && len(cached) >= numQuestions {
			logger.Debug("Question cache hit", zap.String("job_hash", jobHash))
			return cached[:numQuestions]
		}
	}

	questions := h.questions.GenerateQuestions(ctx, jobDescription, resumeText, position, numQuestions)

	if h.cache != nil && resumeText == "" {
		if err := h.cache.SetQuestions(ctx, jobHash, questions, h.questionCacheTTL); err != nil {
			logger.Debug("Failed to cache questions", zap.Error(err))
		}
	}

	return questions
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	sessions, err := h.store.ListSessionsByUser(user.ID, limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.String("user_id", user.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sess, err := h.store.LoadSession(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	if sess.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not your session",
		})
	}

	return c.JSON(sess)
}

// GetLiveStatus reports whether a session currently has a websocket
// connection attached.
func (h *SessionHandler) GetLiveStatus(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	sessionID := c.Params("id")

	sess, err := h.store.LoadSession(sessionID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if sess.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not your session",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"status":     sess.Status,
		"connected":  h.registry.Get(sessionID) != nil,
	})
}
