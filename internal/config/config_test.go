package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "novacat.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("loads a full config file", func(t *testing.T) {
		path := writeConfig(t, `
version: "1"
redis:
  addr: localhost:6379
  db: 2
workflow:
  acquire_timeout: 2m
  validate_timeout: 30s
  lock_ttl: 45m
metrics:
  addr: ":9090"
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, 2, cfg.Redis.DB)
		assert.Equal(t, 2*time.Minute, cfg.Workflow.AcquireTimeout)
		assert.Equal(t, 30*time.Second, cfg.Workflow.ValidateTimeout)
		assert.Equal(t, 45*time.Minute, cfg.Workflow.LockTTL)
		assert.Equal(t, ":9090", cfg.Metrics.Addr)
	})

	t.Run("minimal config needs only the redis address", func(t *testing.T) {
		path := writeConfig(t, "redis:\n  addr: localhost:6379\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Nil(t, cfg.Workflow)
		assert.Equal(t, WorkflowConfig{}, cfg.WorkflowOrDefault())
	})

	t.Run("missing file is fine when env supplies the address", func(t *testing.T) {
		t.Setenv("NOVACAT_REDIS_ADDR", "envhost:6379")
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		require.NoError(t, err)
		assert.Equal(t, "envhost:6379", cfg.Redis.Addr)
	})

	t.Run("missing file without env override fails validation", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
		assert.Error(t, err)
	})

	t.Run("env overrides file values", func(t *testing.T) {
		path := writeConfig(t, "redis:\n  addr: filehost:6379\n  db: 1\n")
		t.Setenv("NOVACAT_REDIS_ADDR", "envhost:6379")
		t.Setenv("NOVACAT_REDIS_DB", "3")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "envhost:6379", cfg.Redis.Addr)
		assert.Equal(t, 3, cfg.Redis.DB)
	})

	t.Run("rejects malformed YAML", func(t *testing.T) {
		path := writeConfig(t, "redis: [not a map\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("rejects negative workflow bounds", func(t *testing.T) {
		path := writeConfig(t, "redis:\n  addr: localhost:6379\nworkflow:\n  lock_ttl: -1m\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}
