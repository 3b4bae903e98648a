package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/chat"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/middleware"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// SendMessageRequest represents send message request body
type SendMessageRequest struct {
	ScopeType   string   `json:"scopeType"`
	ReceiverID  string   `json:"receiverId"` // Direct messages
	ScopeID     string   `json:"scopeId"`    // Section or grade-level id
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
	ClientID    string   `json:"clientId"`
}

// MarkSeenRequest represents mark as seen request body
type MarkSeenRequest struct {
	ScopeType   string `json:"scopeType"`
	OtherUserID string `json:"otherUserId"`
	ScopeID     string `json:"scopeId"`
}

// scopeFor builds a scope from a wire scope type and id as seen by userID.
// For a direct scope the id is the other user.
func scopeFor(userID, rawType, id string) (models.Scope, error) {
	scopeType, err := models.ParseScopeType(rawType)
	if err != nil {
		return models.Scope{}, err
	}
	switch scopeType {
	case models.ScopeSection:
		return models.Section(id), nil
	case models.ScopeGradeLevel:
		return models.GradeLevel(id), nil
	}
	return models.Direct(userID, id), nil
}

func (h *Handler) fetch(c *fiber.Ctx, scope models.Scope) error {
	member, err := h.membership(c)
	if err != nil {
		return h.fail(c, err)
	}

	messages, err := h.history.Fetch(c.UserContext(), member, scope)
	if err != nil {
		return h.fail(c, err)
	}

	resp := fiber.Map{
		"success": true,
		"data":    messages,
		"error":   nil,
	}
	switch scope.Type {
	case models.ScopeSection:
		resp["sectionId"] = scope.ID
	case models.ScopeGradeLevel:
		resp["gradeLevelId"] = scope.ID
	}
	return c.JSON(resp)
}

// GetDirectMessages returns the history between the caller and another user
func (h *Handler) GetDirectMessages(c *fiber.Ctx) error {
	return h.fetch(c, models.Direct(middleware.GetUserID(c), c.Params("userId")))
}

// GetSectionMessages returns a section's history
func (h *Handler) GetSectionMessages(c *fiber.Ctx) error {
	return h.fetch(c, models.Section(c.Params("sectionId")))
}

// GetGradeLevelMessages returns a grade level's history
func (h *Handler) GetGradeLevelMessages(c *fiber.Ctx) error {
	return h.fetch(c, models.GradeLevel(c.Params("gradeLevelId")))
}

// SendMessage sends a message to any scope. Live members receive it over
// their websockets exactly as if it had been sent over one.
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
			"code":    chat.CodeInvalidMessage,
		})
	}

	id := req.ScopeID
	if id == "" {
		id = req.ReceiverID
	}
	scope, err := scopeFor(middleware.GetUserID(c), req.ScopeType, id)
	if err != nil {
		return h.fail(c, err)
	}

	member, err := h.membership(c)
	if err != nil {
		return h.fail(c, err)
	}

	res, err := h.dispatcher.Send(c.UserContext(), member, chat.SendRequest{
		Scope:       scope,
		Content:     req.Content,
		Attachments: req.Attachments,
		ClientID:    req.ClientID,
	})
	if err != nil {
		return h.fail(c, err)
	}

	status := fiber.StatusCreated
	if res.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"success":   true,
		"data":      res.Message,
		"error":     nil,
		"duplicate": res.Duplicate,
	})
}

// MarkSeen marks a conversation as seen by the caller
func (h *Handler) MarkSeen(c *fiber.Ctx) error {
	var req MarkSeenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
			"code":    chat.CodeInvalidMessage,
		})
	}

	id := req.ScopeID
	if id == "" {
		id = req.OtherUserID
	}
	scope, err := scopeFor(middleware.GetUserID(c), req.ScopeType, id)
	if err != nil {
		return h.fail(c, err)
	}

	member, err := h.membership(c)
	if err != nil {
		return h.fail(c, err)
	}

	count, err := h.dispatcher.MarkSeen(c.UserContext(), member, scope)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"scopeKey": scope.Key(),
			"count":    count,
		},
	})
}

// DeleteMessage removes one of the caller's messages
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	scope, err := scopeFor(middleware.GetUserID(c), c.Params("scopeType"), c.Params("scopeId"))
	if err != nil {
		return h.fail(c, err)
	}

	member, err := h.membership(c)
	if err != nil {
		return h.fail(c, err)
	}

	messageID := c.Params("messageId")
	deleted, err := h.dispatcher.Delete(c.UserContext(), member, scope, messageID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"scopeKey":  scope.Key(),
			"messageId": messageID,
			"deleted":   deleted,
		},
	})
}
