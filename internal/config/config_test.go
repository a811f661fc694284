// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Cache.StrongHitThreshold != 0.85 {
		t.Errorf("StrongHitThreshold = %f, want 0.85", cfg.Cache.StrongHitThreshold)
	}
	if cfg.Cache.ScanThreshold != 0.75 {
		t.Errorf("ScanThreshold = %f, want 0.75", cfg.Cache.ScanThreshold)
	}
	if cfg.Store.MaxEntries != 1000 {
		t.Errorf("MaxEntries = %d, want 1000", cfg.Store.MaxEntries)
	}
	if cfg.Store.ScanLimit != 50 {
		t.Errorf("ScanLimit = %d, want 50", cfg.Store.ScanLimit)
	}
	if cfg.Inference.MinInterval != 1200*time.Millisecond {
		t.Errorf("MinInterval = %v, want 1.2s", cfg.Inference.MinInterval)
	}
	if cfg.Inference.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.Inference.RequestTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  listen: ":9999"
store:
  max_entries: 250
cache:
  strong_hit_threshold: 0.9
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Listen != ":9999" {
		t.Errorf("Listen = %q, want :9999", cfg.Server.Listen)
	}
	if cfg.Store.MaxEntries != 250 {
		t.Errorf("MaxEntries = %d, want 250", cfg.Store.MaxEntries)
	}
	if cfg.Cache.StrongHitThreshold != 0.9 {
		t.Errorf("StrongHitThreshold = %f, want 0.9", cfg.Cache.StrongHitThreshold)
	}
	// Untouched keys keep defaults.
	if cfg.Cache.ScanThreshold != 0.75 {
		t.Errorf("ScanThreshold = %f, want default 0.75", cfg.Cache.ScanThreshold)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PUMPMATCH_SERVER__LISTEN", ":7070")
	t.Setenv("PUMPMATCH_STORE__MAX_ENTRIES", "42")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Listen != ":7070" {
		t.Errorf("Listen = %q, want :7070", cfg.Server.Listen)
	}
	if cfg.Store.MaxEntries != 42 {
		t.Errorf("MaxEntries = %d, want 42", cfg.Store.MaxEntries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(*Config) {}, wantErr: false},
		{name: "empty listen", mutate: func(c *Config) { c.Server.Listen = "" }, wantErr: true},
		{name: "zero max entries", mutate: func(c *Config) { c.Store.MaxEntries = 0 }, wantErr: true},
		{name: "zero scan limit", mutate: func(c *Config) { c.Store.ScanLimit = 0 }, wantErr: true},
		{
			name:    "strong hit below scan threshold",
			mutate:  func(c *Config) { c.Cache.StrongHitThreshold = 0.5 },
			wantErr: true,
		},
		{
			name:    "scan threshold above 1",
			mutate:  func(c *Config) { c.Cache.ScanThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "negative min interval",
			mutate:  func(c *Config) { c.Inference.MinInterval = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Inference.QueueSize = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
