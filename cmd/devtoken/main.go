// Command devtoken mints a credential for local testing against a server
// started with the same JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/config"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/models"
	"github.com/VickNat/educational-administration-for-pan-nation-frontend-sub000/internal/utils"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})

	userID := flag.String("user", "", "user id to embed in the token")
	rawRole := flag.String("role", "", "DIRECTOR, TEACHER, PARENT or STUDENT")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal().Err(config.ErrMissingSecret).Msg("cannot sign token")
	}
	if *userID == "" {
		logger.Fatal().Msg("-user is required")
	}
	role, err := models.ParseRole(*rawRole)
	if err != nil {
		logger.Fatal().Err(err).Str("role", *rawRole).Msg("invalid role")
	}

	token, err := utils.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL).Generate(*userID, role)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to sign token")
	}
	logger.Info().Str("user", *userID).Str("role", string(role)).Dur("ttl", cfg.TokenTTL).Msg("token issued")
	fmt.Println(token)
}
