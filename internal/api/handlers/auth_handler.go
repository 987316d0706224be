package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/auth"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/models"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/storage/sqlite"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

type AuthHandler struct {
	store   *sqlite.Client
	manager *auth.Manager
}

func NewAuthHandler(store *sqlite.Client, manager *auth.Manager) *AuthHandler {
	return &AuthHandler{
		store:   store,
		manager: manager,
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A valid email is required",
		})
	}
	if len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Password must be at least 8 characters",
		})
	}

	if _, err := h.store.GetUserByEmail(req.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Email already registered",
		})
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("Failed to hash password", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	user := &models.User{
		ID:             uuid.New().String(),
		Email:          req.Email,
		FullName:       strings.TrimSpace(req.FullName),
		HashedPassword: hashed,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := h.store.CreateUser(user); err != nil {
		logger.Error("Failed to create user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	token, err := h.manager.IssueToken(user.Email)
	if err != nil {
		logger.Error("Failed to issue token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	logger.Info("User registered", zap.String("user_id", user.ID))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.store.GetUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	if err := auth.CheckPassword(user.HashedPassword, req.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	token, err := h.manager.IssueToken(user.Email)
	if err != nil {
		logger.Error("Failed to issue token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to log in",
		})
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(user)
}

// RequireAuth resolves the bearer token and stows the user in locals for
// downstream handlers.
func (h *AuthHandler) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		email, err := h.manager.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		user, err := h.store.GetUserByEmail(email)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user", user)
		return c.Next()
	}
}
