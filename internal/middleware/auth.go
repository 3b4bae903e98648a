package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
)

// IdentityResolver maps a bearer credential to a user id and role
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (models.Identity, error)
}

// Credential extracts the bearer credential from the Authorization header,
// the token query parameter (browsers cannot set headers on a websocket
// handshake) or the token cookie, in that order.
func Credential(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	return c.Cookies("token")
}

// Auth validates the caller's credential and stores the identity in the
// request context. Requests without a valid credential get 401.
func Auth(identities IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := Credential(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - No token provided",
			})
		}

		identity, err := identities.Resolve(c.UserContext(), tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - Invalid token",
			})
		}

		// Store user info in context
		c.Locals("userID", identity.UserID)
		c.Locals("role", string(identity.Role))
		c.Locals("identity", identity)

		return c.Next()
	}
}

// GetUserID gets user ID from context
func GetUserID(c *fiber.Ctx) string {
	userID, ok := c.Locals("userID").(string)
	if !ok {
		return ""
	}
	return userID
}

// GetIdentity gets the authenticated identity from context
func GetIdentity(c *fiber.Ctx) (models.Identity, bool) {
	identity, ok := c.Locals("identity").(models.Identity)
	return identity, ok
}
