package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSeconds)
	assert.Equal(t, "memory", cfg.Bus.Provider)
	assert.Equal(t, "memory", cfg.DB.Provider)
	assert.Equal(t, "none", cfg.Archive.Provider)
	assert.Equal(t, 4, cfg.Workers.PoolSize)
	assert.Equal(t, 25, cfg.Heartbeat.IntervalSeconds)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
bus:
  provider: redis
  redis:
    address: localhost:6379
db:
  provider: postgres
  dsn: postgres://collector@localhost/focus
archive:
  provider: local
  local_dir: /tmp/snapshots
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Bus.Provider)
	assert.Equal(t, "localhost:6379", cfg.Bus.Redis.Address)
	assert.Equal(t, "postgres", cfg.DB.Provider)
	assert.Equal(t, "/tmp/snapshots", cfg.Archive.LocalDir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero workers", func(c *Config) { c.Workers.PoolSize = 0 }},
		{"unknown bus provider", func(c *Config) { c.Bus.Provider = "nats" }},
		{"redis without address", func(c *Config) { c.Bus.Provider = "redis" }},
		{"postgres without dsn", func(c *Config) { c.DB.Provider = "postgres" }},
		{"local archive without dir", func(c *Config) { c.Archive.Provider = "local" }},
		{"gcs archive without bucket", func(c *Config) { c.Archive.Provider = "gcs" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
