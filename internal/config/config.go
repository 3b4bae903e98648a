package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingSecret   = errors.New("JWT_SECRET is required")
	ErrNoRelationGraph = errors.New("either DATABASE_URL or RELATIONS_FILE is required")
)

// Config holds the server configuration, read from the environment
type Config struct {
	Port         string `envconfig:"PORT" default:"8080"`
	Env          string `envconfig:"ENV" default:"development"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" default:"http://localhost:3000"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// DATABASE_URL selects the Postgres store and relation graph. Without it
	// messages go to Badger and relations come from RELATIONS_FILE.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	BadgerPath    string `envconfig:"BADGER_PATH" default:"data/messages"`
	RelationsFile string `envconfig:"RELATIONS_FILE"`
	RedisURL      string `envconfig:"REDIS_URL"`

	PersistTimeout time.Duration `envconfig:"PERSIST_TIMEOUT" default:"5s"`
	SendBuffer     int           `envconfig:"SEND_BUFFER" default:"256"`
	SendRateLimit  int           `envconfig:"SEND_RATE_LIMIT" default:"30"`
	SendRateWindow time.Duration `envconfig:"SEND_RATE_WINDOW" default:"1m"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load(files...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingSecret
	}
	if c.DatabaseURL == "" && c.RelationsFile == "" {
		return ErrNoRelationGraph
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must be positive, got %s", c.PersistTimeout)
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("SEND_BUFFER must be at least 1, got %d", c.SendBuffer)
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}
