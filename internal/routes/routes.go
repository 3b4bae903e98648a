package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/handlers"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/middleware"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h *handlers.Handler, identities middleware.IdentityResolver) {
	auth := middleware.Auth(identities)

	// Prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 group
	api := app.Group("/api/v1")

	// Health check (public)
	api.Get("/health", h.Health)

	// Message routes (protected)
	messages := api.Group("/messages", auth)
	messages.Get("/direct/:userId", middleware.RelaxedRateLimiter(), h.GetDirectMessages)
	messages.Get("/sections/:sectionId", middleware.RelaxedRateLimiter(), h.GetSectionMessages)
	messages.Get("/grade-levels/:gradeLevelId", middleware.RelaxedRateLimiter(), h.GetGradeLevelMessages)
	messages.Post("/", middleware.ModerateRateLimiter(), h.SendMessage)
	messages.Put("/seen", middleware.ModerateRateLimiter(), h.MarkSeen)
	messages.Delete("/:scopeType/:scopeId/:messageId", middleware.ModerateRateLimiter(), h.DeleteMessage)

	// WebSocket route (protected). The credential is checked before the
	// upgrade so a rejected handshake never subscribes to anything.
	api.Get("/ws", middleware.ConnectRateLimiter(), auth, h.WebSocketUpgrade, websocket.New(h.WebSocketHandler))

	// WebSocket stats (protected, for debugging)
	api.Get("/ws/stats", auth, h.GetWebSocketStats)
}
