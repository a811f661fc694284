// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

// Package config loads PumpMatch configuration through a koanf pipeline:
// struct defaults, then an optional YAML file, then PUMPMATCH_* environment
// variables. The loaded Config is immutable for the process lifetime.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pumpmatch/config.yaml",
	"/etc/pumpmatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "PUMPMATCH_CONFIG"

// envPrefix is the prefix for environment variable overrides, e.g.
// PUMPMATCH_SERVER_LISTEN maps to server.listen.
const envPrefix = "PUMPMATCH_"

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Cache     CacheConfig     `koanf:"cache"`
	Inference InferenceConfig `koanf:"inference"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `koanf:"listen"`

	// RequestsPerMinute is the per-IP rate limit on API routes.
	RequestsPerMinute int `koanf:"requests_per_minute"`

	// CORSOrigins lists allowed origins for the office-suite frontend.
	CORSOrigins []string `koanf:"cors_origins"`

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// StoreConfig configures the durable recommendation store.
type StoreConfig struct {
	// Path is the BadgerDB directory. Empty selects in-memory mode
	// (tests only; production deployments must set a path).
	Path string `koanf:"path"`

	// MaxEntries is the retention cap enforced by pruning.
	MaxEntries int `koanf:"max_entries"`

	// PruneInterval is how often the background pruner runs.
	PruneInterval time.Duration `koanf:"prune_interval"`

	// ScanLimit bounds how many most-recently-used records a lookup
	// evaluates. Recency is a recall heuristic, not a correctness
	// guarantee.
	ScanLimit int `koanf:"scan_limit"`
}

// CacheConfig holds the similarity thresholds of the cache-hit policy.
type CacheConfig struct {
	// StrongHitThreshold is the minimum similarity for reusing a cached
	// recommendation verbatim (adapted).
	StrongHitThreshold float64 `koanf:"strong_hit_threshold"`

	// ScanThreshold is the minimum similarity for a record to be
	// considered at all. Matches in [ScanThreshold, StrongHitThreshold)
	// are computed but routed to fresh computation.
	ScanThreshold float64 `koanf:"scan_threshold"`
}

// InferenceConfig configures the external text-generation provider and the
// single-lane queue in front of it.
type InferenceConfig struct {
	// BaseURL and APIKey configure the OpenAI-compatible endpoint.
	// An empty APIKey disables the provider; the orchestrator then
	// always falls back to deterministic recommendations.
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`

	// MinInterval is the minimum delay between provider calls, measured
	// from the end of the previous call.
	MinInterval time.Duration `koanf:"min_interval"`

	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration `koanf:"call_timeout"`

	// RequestTimeout bounds a caller's total wait (queue + call).
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// QueueSize is the pending-request capacity of the lane.
	QueueSize int `koanf:"queue_size"`

	// BreakerFailureThreshold is the number of consecutive provider
	// failures before the circuit opens.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerOpenTimeout is the duration in open state before the
	// breaker transitions to half-open.
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
}

// CatalogConfig configures the static device/persona catalog.
type CatalogConfig struct {
	// Path is an optional YAML file overriding the built-in catalog.
	Path string `koanf:"path"`

	// FallbackSeed seeds the pseudo-random fallback device choice.
	// Zero selects a time-based seed.
	FallbackSeed int64 `koanf:"fallback_seed"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with production defaults applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            ":8480",
			RequestsPerMinute: 120,
			CORSOrigins:       []string{},
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
		},
		Store: StoreConfig{
			Path:          "data/recommendations",
			MaxEntries:    1000,
			PruneInterval: 10 * time.Minute,
			ScanLimit:     50,
		},
		Cache: CacheConfig{
			StrongHitThreshold: 0.85,
			ScanThreshold:      0.75,
		},
		Inference: InferenceConfig{
			BaseURL:                 "",
			APIKey:                  "",
			Model:                   "gpt-4o-mini",
			MinInterval:             1200 * time.Millisecond,
			CallTimeout:             25 * time.Second,
			RequestTimeout:          30 * time.Second,
			QueueSize:               64,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeout:      30 * time.Second,
		},
		Catalog: CatalogConfig{
			Path:         "",
			FallbackSeed: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, then validates it.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom loads configuration using the given file path ("" skips the file
// layer entirely).
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	// PUMPMATCH_STORE_MAX_ENTRIES -> store.max_entries
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns the first existing config file path, honoring the
// PUMPMATCH_CONFIG override. Returns "" when no file is present.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks invariants that would otherwise surface as runtime
// misbehavior deep inside the pipeline.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Store.MaxEntries <= 0 {
		return fmt.Errorf("store.max_entries must be positive, got %d", c.Store.MaxEntries)
	}
	if c.Store.ScanLimit <= 0 {
		return fmt.Errorf("store.scan_limit must be positive, got %d", c.Store.ScanLimit)
	}
	if c.Cache.ScanThreshold < 0 || c.Cache.ScanThreshold > 1 {
		return fmt.Errorf("cache.scan_threshold must be in [0,1], got %f", c.Cache.ScanThreshold)
	}
	if c.Cache.StrongHitThreshold < c.Cache.ScanThreshold || c.Cache.StrongHitThreshold > 1 {
		return fmt.Errorf("cache.strong_hit_threshold must be in [scan_threshold,1], got %f",
			c.Cache.StrongHitThreshold)
	}
	if c.Inference.MinInterval < 0 {
		return fmt.Errorf("inference.min_interval must not be negative")
	}
	if c.Inference.RequestTimeout <= 0 {
		return fmt.Errorf("inference.request_timeout must be positive")
	}
	if c.Inference.QueueSize <= 0 {
		return fmt.Errorf("inference.queue_size must be positive, got %d", c.Inference.QueueSize)
	}
	return nil
}
