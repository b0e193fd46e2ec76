package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
redis:
  addr: localhost:6379
  ttl: 5m
storage:
  driver: sqlite
auth:
  secret: from-file
`), 0o600))
	t.Setenv("ACADEMY_AUTH_SECRET", "from-env")
	t.Setenv("ACADEMY_STORAGE_MAX_ATTEMPTS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Storage.MaxAttempts)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, "http://localhost:9000", cfg.Files.BaseURL)
	assert.Equal(t, 5*time.Minute, TTLDuration(cfg.Redis.TTL, time.Minute))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ACADEMY_POSTGRES_URL", "postgres://localhost/academy")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 10, cfg.Storage.MaxAttempts)
}

func TestTTLDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, TTLDuration("2s", time.Minute))
}
