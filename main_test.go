package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want zerolog.Level
	}{
		{name: "configured level", cfg: config.Config{Env: "production", LogLevel: "debug"}, want: zerolog.DebugLevel},
		{name: "development console", cfg: config.Config{Env: "development", LogLevel: "warn"}, want: zerolog.WarnLevel},
		{name: "unknown level falls back to info", cfg: config.Config{Env: "production", LogLevel: "loud"}, want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, newLogger(tt.cfg).GetLevel())
		})
	}
}
