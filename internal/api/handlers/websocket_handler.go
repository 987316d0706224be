package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/internal/session"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/logger"
)

type WebSocketHandler struct {
	opts session.Options
}

func NewWebSocketHandler(opts session.Options) *WebSocketHandler {
	return &WebSocketHandler{opts: opts}
}

// Upgrade gates the route so plain HTTP requests get a 426 instead of a
// hung connection.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleConnection runs the interview protocol for one websocket
// connection. Authentication happens in-band as the first message.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	sessionID := c.Params("id")
	logger.Info("WebSocket connection established", zap.String("session_id", sessionID))

	proto := session.NewProtocol(c, h.opts)
	proto.Run(context.Background(), sessionID)

	logger.Info("WebSocket connection closed", zap.String("session_id", sessionID))
}
