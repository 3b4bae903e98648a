package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/chat"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/middleware"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/store"
	ws "github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/websocket"
)

// Handler serves the HTTP and websocket endpoints of the messaging core
type Handler struct {
	manager    *ws.Manager
	scopes     ws.ScopeResolver
	dispatcher *chat.Dispatcher
	history    *chat.History
	store      store.ConversationStore
	log        zerolog.Logger
}

func New(manager *ws.Manager, scopes ws.ScopeResolver, dispatcher *chat.Dispatcher, history *chat.History, st store.ConversationStore, log zerolog.Logger) *Handler {
	return &Handler{
		manager:    manager,
		scopes:     scopes,
		dispatcher: dispatcher,
		history:    history,
		store:      st,
		log:        log.With().Str("component", "http").Logger(),
	}
}

// membership resolves the caller's scopes for one REST request
func (h *Handler) membership(c *fiber.Ctx) (*relations.Membership, error) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return nil, chat.ErrUnauthorizedScope
	}
	return h.scopes.ResolveScopes(c.UserContext(), identity.UserID, identity.Role)
}

// statusFor maps a chat error to an HTTP status
func statusFor(err error) int {
	switch chat.Code(err) {
	case chat.CodeEmptyMessage, chat.CodeMalformedScope, chat.CodeInvalidMessage:
		return fiber.StatusBadRequest
	case chat.CodeUnauthorizedScope:
		return fiber.StatusForbidden
	case chat.CodePersistenceTimeout:
		return fiber.StatusRequestTimeout
	case chat.CodeRateLimited:
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"data":    nil,
		"error":   chat.PublicError(err),
		"code":    chat.Code(err),
	})
}

// Health reports whether the conversation store answers
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		status := "degraded"
		if errors.Is(err, store.ErrClosed) {
			status = "down"
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  status,
			"message": "Conversation store unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Messaging API is running",
	})
}
