package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "vellum.db", cfg.Path)
	assert.True(t, cfg.MultiVersioning)
	assert.Equal(t, "documents", cfg.Index)
	assert.Equal(t, 500*time.Millisecond, cfg.AggregationWindow)
	assert.Equal(t, LockLocal, cfg.Lock.Backend)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), NewConfig())
	})

	t.Run("with options", func(t *testing.T) {
		cfg := NewConfig(
			WithInMemory(true),
			WithPath(""),
			WithMultiVersioning(false),
			WithIndex("records"),
			WithChunkSize(64),
			WithAggregationWindow(time.Second),
			WithNATSLock("nats://localhost:4222"),
			WithLogLevel("debug"),
		)

		require.NoError(t, cfg.Validate())
		assert.False(t, cfg.MultiVersioning)
		assert.Equal(t, "records", cfg.Index)
		assert.Equal(t, 64, cfg.ChunkSize)
		assert.Equal(t, LockNATS, cfg.Lock.Backend)
		assert.Equal(t, "nats://localhost:4222", cfg.Lock.URL)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing path", func(c *Config) { c.Path = "" }},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"zero cache size", func(c *Config) { c.VersionCacheSize = 0 }},
		{"zero cache ttl", func(c *Config) { c.VersionCacheTTL = 0 }},
		{"missing index", func(c *Config) { c.Index = "" }},
		{"negative window", func(c *Config) { c.AggregationWindow = -time.Second }},
		{"no workers", func(c *Config) { c.Rebuild.Workers = 0 }},
		{"no retries", func(c *Config) { c.Rebuild.MaxRetries = 0 }},
		{"nats without url", func(c *Config) { c.Lock.Backend = LockNATS }},
		{"unknown lock", func(c *Config) { c.Lock.Backend = "zookeeper" }},
		{"unknown level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = " WARN "
	cfg.Lock.Backend = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, LockLocal, cfg.Lock.Backend)
}

func TestParse(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
path: /var/lib/vellum
multiVersioning: false
aggregationWindow: 2s
rebuild:
  workers: 8
lock:
  backend: nats
  url: nats://nats:4222
`))
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/vellum", cfg.Path)
		assert.False(t, cfg.MultiVersioning)
		assert.Equal(t, 2*time.Second, cfg.AggregationWindow)
		assert.Equal(t, 8, cfg.Rebuild.Workers)
		assert.Equal(t, 3, cfg.Rebuild.MaxRetries)
		assert.Equal(t, "vellum_locks", cfg.Lock.Bucket)
	})

	t.Run("empty document", func(t *testing.T) {
		cfg, err := Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Parse([]byte("colour: blue\n"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Parse([]byte("chunkSize: -1\n"))
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vellum.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: records\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "records", cfg.Index)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
