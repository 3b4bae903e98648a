package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/chat"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/config"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/database"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/handlers"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/middleware"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/relations"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/routes"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/store"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/utils"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Conversation store and relation graph: Postgres when configured,
	// otherwise Badger plus a JSON snapshot
	var (
		conversations store.ConversationStore
		graph         relations.Graph
	)
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		logger.Info().Msg("running database migrations...")
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		conversations = store.NewPostgresStore(pool, logger)
		graph = relations.NewPostgresGraph(pool)
	} else {
		badgerStore, err := store.OpenBadger(cfg.BadgerPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open message store")
		}
		conversations = badgerStore
		logger.Info().Str("path", cfg.BadgerPath).Msg("using embedded message store")
	}
	defer conversations.Close()

	if cfg.RelationsFile != "" && graph == nil {
		static, err := relations.LoadStaticGraph(cfg.RelationsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load relations file")
		}
		graph = static
		logger.Info().Str("file", cfg.RelationsFile).Msg("using static relation graph")
	}

	// Optional shared send limiter
	var limiter chat.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer client.Close()
		limiter = chat.NewRedisLimiter(client, cfg.SendRateLimit, cfg.SendRateWindow)
		logger.Info().Msg("connected to Redis")
	}

	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	resolver := relations.NewResolver(graph, logger)
	hub := websocket.NewHub(logger)
	manager := websocket.NewManager(tokens, resolver, hub, cfg.SendBuffer, logger)
	dispatcher := chat.NewDispatcher(conversations, hub, limiter, cfg.PersistTimeout, logger)
	history := chat.NewHistory(conversations, logger)
	h := handlers.New(manager, resolver, dispatcher, history, conversations, logger)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "School Messaging API v1.0",
		DisableStartupMessage: !cfg.IsDevelopment(),
	})

	// Middleware
	app.Use(middleware.Logger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowCredentials: true,
	}))

	// Setup routes
	routes.SetupRoutes(app, h, tokens)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
