// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
	if cfg.Recommend.ContentWeight+cfg.Recommend.CollabWeight != 1.0 {
		t.Errorf("default weights sum = %f, want 1.0",
			cfg.Recommend.ContentWeight+cfg.Recommend.CollabWeight)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "empty store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: true,
		},
		{
			name: "both weights zero",
			mutate: func(c *Config) {
				c.Recommend.ContentWeight = 0
				c.Recommend.CollabWeight = 0
			},
			wantErr: true,
		},
		{
			name: "negative weight",
			mutate: func(c *Config) {
				c.Recommend.ContentWeight = -0.2
				c.Recommend.CollabWeight = 1.2
			},
			wantErr: true,
		},
		{
			name:    "zero factor rank",
			mutate:  func(c *Config) { c.Recommend.FactorRank = 0 },
			wantErr: true,
		},
		{
			name:    "default_k above max_k",
			mutate:  func(c *Config) { c.Recommend.DefaultK = 500 },
			wantErr: true,
		},
		{
			name:    "zero refresh interval",
			mutate:  func(c *Config) { c.Refresh.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "queue smaller than threshold",
			mutate:  func(c *Config) { c.Refresh.QueueSize = 2 },
			wantErr: true,
		},
		{
			name:    "learning rate of one",
			mutate:  func(c *Config) { c.Refresh.LearningRate = 1.0 },
			wantErr: true,
		},
		{
			name:    "collab cap above one",
			mutate:  func(c *Config) { c.Refresh.MaxCollabWeight = 1.5 },
			wantErr: true,
		},
		{
			name:    "cache ttl zero while enabled",
			mutate:  func(c *Config) { c.Recommend.Cache.TTL = 0 },
			wantErr: true,
		},
		{
			name: "cache disabled ignores ttl",
			mutate: func(c *Config) {
				c.Recommend.Cache.Enabled = false
				c.Recommend.Cache.TTL = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "REELFEED_SERVER_PORT", want: "server.port"},
		{name: "nested key keeps underscores", input: "REELFEED_REFRESH_MIN_UPDATES", want: "refresh.min_updates"},
		{name: "single segment", input: "REELFEED_LOGGING", want: "logging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := envTransform(tt.input); got != tt.want {
				t.Errorf("envTransform(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "reelfeed.yaml")
	yamlBody := `
server:
  port: 9090
refresh:
  min_updates: 25
`
	if err := os.WriteFile(cfgPath, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, cfgPath)
	t.Setenv("REELFEED_SERVER_PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// env beats file beats defaults
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 (env override)", cfg.Server.Port)
	}
	if cfg.Refresh.MinUpdates != 25 {
		t.Errorf("Refresh.MinUpdates = %d, want 25 (file override)", cfg.Refresh.MinUpdates)
	}
	if cfg.Refresh.Interval != time.Hour {
		t.Errorf("Refresh.Interval = %v, want 1h default", cfg.Refresh.Interval)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "reelfeed.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: -4\n"), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, cfgPath)

	if _, err := Load(); err == nil {
		t.Fatal("Load() with invalid port succeeded, want error")
	}
}
