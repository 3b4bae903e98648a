package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	ws "github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/websocket"
)

// WebSocketUpgrade checks if the request should be upgraded to WebSocket
func (h *Handler) WebSocketUpgrade(c *fiber.Ctx) error {
	// Check if this is a WebSocket upgrade request
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"success": false,
		"error":   "WebSocket upgrade required",
	})
}

// WebSocketHandler handles WebSocket connections. The credential was
// validated by the auth middleware before the upgrade.
func (h *Handler) WebSocketHandler(c *websocket.Conn) {
	identity, ok := c.Locals("identity").(models.Identity)
	if !ok {
		c.Close()
		return
	}

	conn, err := h.manager.Attach(context.Background(), identity)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", identity.UserID).Msg("failed to attach connection")
		c.WriteJSON(ws.WSMessage{
			Type:      ws.EventError,
			Payload:   ws.ErrorPayload{Code: "INTERNAL", Message: "could not resolve conversations"},
			Timestamp: time.Now().UTC(),
		})
		c.Close()
		return
	}

	// Blocks until the connection closes
	ws.NewClient(conn, c, h.manager, h.dispatcher, h.history, h.log).Serve()
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.manager.Hub().Stats(),
	})
}
