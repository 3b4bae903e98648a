package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimiter creates a rate limiting middleware
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Use user ID if authenticated, otherwise use IP
			if userID := GetUserID(c); userID != "" {
				return userID
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests, please try again later",
				"code":    "RATE_LIMITED",
			})
		},
	})
}

// ConnectRateLimiter for websocket handshakes, so a reconnect loop cannot
// flood the relation graph
func ConnectRateLimiter() fiber.Handler {
	return RateLimiter(20, 1*time.Minute) // 20 handshakes per minute
}

// ModerateRateLimiter for regular API calls
func ModerateRateLimiter() fiber.Handler {
	return RateLimiter(30, 1*time.Minute) // 30 requests per minute
}

// RelaxedRateLimiter for read-only endpoints
func RelaxedRateLimiter() fiber.Handler {
	return RateLimiter(100, 1*time.Minute) // 100 requests per minute
}
