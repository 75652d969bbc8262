// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config holds the settings of a vellum database and loads them
// from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lock backends.
const (
	LockLocal = "local"
	LockNATS  = "nats"
)

// Config holds configuration for a vellum database.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string `yaml:"path"`

	// InMemory keeps every store in memory.
	InMemory bool `yaml:"inMemory"`

	// ChunkSize is the maximum size in bytes of one stored object chunk.
	// Default: 1 MiB
	ChunkSize int `yaml:"chunkSize"`

	// MultiVersioning keeps every version of a document.
	// Default: true
	MultiVersioning bool `yaml:"multiVersioning"`

	// VersionCacheSize is the number of version lists cached.
	VersionCacheSize int64 `yaml:"versionCacheSize"`

	// VersionCacheTTL is how long a cached version list stays valid.
	VersionCacheTTL time.Duration `yaml:"versionCacheTTL"`

	// Index is the base name of the search index.
	// Default: "documents"
	Index string `yaml:"index"`

	// AggregationWindow is how long updates of one document are coalesced
	// before the index is maintained.
	// Default: 500ms
	AggregationWindow time.Duration `yaml:"aggregationWindow"`

	Rebuild RebuildConfig `yaml:"rebuild"`
	Lock    LockConfig    `yaml:"lock"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"logLevel"`
}

// RebuildConfig configures index rebuilds.
type RebuildConfig struct {
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	ReportInterval int           `yaml:"reportInterval"`
}

// LockConfig selects the lock guarding document flushes.
type LockConfig struct {
	// Backend is LockLocal or LockNATS.
	Backend string `yaml:"backend"`

	// URL of the NATS server, for LockNATS.
	URL string `yaml:"url"`

	// Bucket is the JetStream key-value bucket holding the locks.
	Bucket string `yaml:"bucket"`

	// TTL bounds how long a lock outlives a crashed holder.
	TTL time.Duration `yaml:"ttl"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithPath sets the badger directory.
func WithPath(path string) ConfigOption {
	return func(c *Config) {
		c.Path = path
	}
}

// WithInMemory keeps every store in memory.
func WithInMemory(inMemory bool) ConfigOption {
	return func(c *Config) {
		c.InMemory = inMemory
	}
}

// WithChunkSize sets the maximum chunk size.
func WithChunkSize(size int) ConfigOption {
	return func(c *Config) {
		c.ChunkSize = size
	}
}

// WithMultiVersioning turns version history on or off.
func WithMultiVersioning(enabled bool) ConfigOption {
	return func(c *Config) {
		c.MultiVersioning = enabled
	}
}

// WithIndex sets the base name of the search index.
func WithIndex(name string) ConfigOption {
	return func(c *Config) {
		c.Index = name
	}
}

// WithAggregationWindow sets the update coalescing window.
func WithAggregationWindow(window time.Duration) ConfigOption {
	return func(c *Config) {
		c.AggregationWindow = window
	}
}

// WithNATSLock guards flushes with a lock held in a NATS key-value bucket.
func WithNATSLock(url string) ConfigOption {
	return func(c *Config) {
		c.Lock.Backend = LockNATS
		c.Lock.URL = url
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// DefaultConfig returns a Config with sensible defaults for a local database.
func DefaultConfig() *Config {
	return &Config{
		Path:              "vellum.db",
		ChunkSize:         1 << 20,
		MultiVersioning:   true,
		VersionCacheSize:  10000,
		VersionCacheTTL:   5 * time.Minute,
		Index:             "documents",
		AggregationWindow: 500 * time.Millisecond,
		Rebuild: RebuildConfig{
			Workers:        4,
			MaxRetries:     3,
			RetryDelay:     100 * time.Millisecond,
			ReportInterval: 100,
		},
		Lock: LockConfig{
			Backend: LockLocal,
			Bucket:  "vellum_locks",
			TTL:     30 * time.Second,
		},
		LogLevel: "info",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize ensures the configuration is in a canonical form.
func (c *Config) Normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Lock.Backend = strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	if c.Lock.Backend == "" {
		c.Lock.Backend = LockLocal
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if !c.InMemory && c.Path == "" {
		return errors.New("config: Path is required unless InMemory is set")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.VersionCacheSize <= 0 {
		return errors.New("config: VersionCacheSize must be positive")
	}
	if c.VersionCacheTTL <= 0 {
		return errors.New("config: VersionCacheTTL must be positive")
	}
	if c.Index == "" {
		return errors.New("config: Index is required")
	}
	if c.AggregationWindow < 0 {
		return errors.New("config: AggregationWindow must not be negative")
	}
	if c.Rebuild.Workers < 1 {
		return errors.New("config: Rebuild.Workers must be at least 1")
	}
	if c.Rebuild.MaxRetries < 1 {
		return errors.New("config: Rebuild.MaxRetries must be at least 1")
	}
	switch c.Lock.Backend {
	case LockLocal:
	case LockNATS:
		if c.Lock.URL == "" {
			return errors.New("config: Lock.URL is required for the nats lock")
		}
		if c.Lock.Bucket == "" {
			return errors.New("config: Lock.Bucket is required for the nats lock")
		}
	default:
		return fmt.Errorf("config: unknown lock backend %q", c.Lock.Backend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}
