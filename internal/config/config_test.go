package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RELATIONS_FILE", "school.json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 5*time.Second, cfg.PersistTimeout)
	require.Equal(t, 256, cfg.SendBuffer)
	require.Equal(t, 30, cfg.SendRateLimit)
	require.Equal(t, time.Minute, cfg.SendRateWindow)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.True(t, cfg.IsDevelopment())
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9000\nPERSIST_TIMEOUT=2s\n"), 0o600))
	t.Setenv("PORT", "7000")
	t.Cleanup(func() { _ = os.Unsetenv("PERSIST_TIMEOUT") })

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "7000", cfg.Port)
	require.Equal(t, 2*time.Second, cfg.PersistTimeout)
}

func TestValidate(t *testing.T) {
	valid := Config{JWTSecret: "x", RelationsFile: "f.json", PersistTimeout: time.Second, SendBuffer: 1}
	require.NoError(t, valid.Validate())

	noSecret := valid
	noSecret.JWTSecret = " "
	require.ErrorIs(t, noSecret.Validate(), ErrMissingSecret)

	noGraph := valid
	noGraph.RelationsFile = ""
	require.ErrorIs(t, noGraph.Validate(), ErrNoRelationGraph)

	withDB := noGraph
	withDB.DatabaseURL = "postgres://localhost/school"
	require.NoError(t, withDB.Validate())

	noBuffer := valid
	noBuffer.SendBuffer = 0
	require.Error(t, noBuffer.Validate())
}
