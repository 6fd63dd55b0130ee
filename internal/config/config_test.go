package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-quiz-service/internal/validation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "REDIS_ADDR", "POSTGRES_URL", "STORAGE_BACKEND", "OPENTDB_BASE_URL", "LOG_LEVEL", "OPENTDB_AMOUNT"} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: "9090"
opentdb:
  amount: 5
  difficulty: hard
storage:
  backend: redis
redis:
  addr: localhost:6379
  ttl: 30m
events:
  publisher: gochannel
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.OpenTDB.Amount)
	assert.Equal(t, "hard", cfg.OpenTDB.Difficulty)
	assert.Equal(t, "https://opentdb.com", cfg.OpenTDB.BaseURL, "unset keys keep defaults")
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, 30*time.Minute, Duration(cfg.Redis.TTL, time.Hour))
	assert.Equal(t, "gochannel", cfg.Events.Publisher)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7070")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OPENTDB_AMOUNT", "20")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", cfg.Postgres.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20, cfg.OpenTDB.Amount)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown backend", "storage:\n  backend: mongo\n", "Config.Storage.Backend"},
		{"amount too large", "opentdb:\n  amount: 500\n", "Config.OpenTDB.Amount"},
		{"bad difficulty", "opentdb:\n  difficulty: brutal\n", "Config.OpenTDB.Difficulty"},
		{"redis without addr", "storage:\n  backend: redis\n", "Config.Redis.Addr"},
		{"postgres without url", "storage:\n  backend: postgres\n", "Config.Postgres.URL"},
		{"kafka without brokers", "events:\n  publisher: kafka\n", "Config.Events.KafkaBrokers"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)

			var verrs validation.Errors
			require.True(t, errors.As(err, &verrs), "got %T", err)
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, 250*time.Millisecond, Duration("250ms", time.Second))
	assert.Equal(t, time.Second, Duration("soon", time.Second))
	assert.Equal(t, time.Duration(0), Duration("0s", time.Second))
}
