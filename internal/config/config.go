// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

// Package config loads Reelfeed configuration using Koanf v2 with layered
// sources: built-in defaults, an optional YAML config file, and
// REELFEED_-prefixed environment variables (highest priority).
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

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "REELFEED_CONFIG"

// EnvPrefix is stripped from environment variables before mapping them to
// config paths: REELFEED_SERVER_PORT -> server.port.
const EnvPrefix = "REELFEED_"

// DefaultConfigPaths are searched in order when REELFEED_CONFIG is unset.
var DefaultConfigPaths = []string{
	"reelfeed.yaml",
	"config/reelfeed.yaml",
	"/etc/reelfeed/reelfeed.yaml",
}

// Config is the root configuration.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Recommend RecommendConfig `koanf:"recommend"`
	Refresh   RefreshConfig   `koanf:"refresh"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"`
	RateWindow      time.Duration `koanf:"rate_window"`
}

// StoreConfig controls the embedded rating store.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// CatalogConfig controls movie metadata loading.
type CatalogConfig struct {
	MoviesPath     string `koanf:"movies_path"`
	SimilarityPath string `koanf:"similarity_path"`
	Seed           int64  `koanf:"seed"`
}

// RecommendConfig controls the collaborative model and hybrid blending.
type RecommendConfig struct {
	ContentWeight float64     `koanf:"content_weight"`
	CollabWeight  float64     `koanf:"collab_weight"`
	FactorRank    int         `koanf:"factor_rank"`
	FactorSweeps  int         `koanf:"factor_sweeps"`
	TopNeighbors  int         `koanf:"top_neighbors"`
	MinSimilarity float64     `koanf:"min_similarity"`
	DefaultK      int         `koanf:"default_k"`
	MaxK          int         `koanf:"max_k"`
	Seed          int64       `koanf:"seed"`
	Cache         CacheConfig `koanf:"cache"`
}

// CacheConfig controls the recommendation response cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// RefreshConfig controls the real-time refresh controller.
type RefreshConfig struct {
	Interval        time.Duration `koanf:"interval"`
	MinUpdates      int           `koanf:"min_updates"`
	QueueSize       int           `koanf:"queue_size"`
	SnapshotDir     string        `koanf:"snapshot_dir"`
	MetricsPath     string        `koanf:"metrics_path"`
	RetainBackups   int           `koanf:"retain_backups"`
	LearningRate    float64       `koanf:"learning_rate"`
	MaxCollabWeight float64       `koanf:"max_collab_weight"`
	SuccessFloor    float64       `koanf:"success_floor"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       100,
			RateWindow:      time.Minute,
		},
		Store: StoreConfig{
			Path: "data/ratings",
		},
		Catalog: CatalogConfig{
			MoviesPath:     "data/movies.json",
			SimilarityPath: "",
			Seed:           42,
		},
		Recommend: RecommendConfig{
			ContentWeight: 0.6,
			CollabWeight:  0.4,
			FactorRank:    50,
			FactorSweeps:  10,
			TopNeighbors:  10,
			MinSimilarity: 0.1,
			DefaultK:      10,
			MaxK:          100,
			Seed:          42,
			Cache: CacheConfig{
				Enabled:    true,
				TTL:        5 * time.Minute,
				MaxEntries: 1000,
			},
		},
		Refresh: RefreshConfig{
			Interval:        time.Hour,
			MinUpdates:      10,
			QueueSize:       1024,
			SnapshotDir:     "data/models",
			MetricsPath:     "data/models/performance_metrics.jsonl",
			RetainBackups:   5,
			LearningRate:    0.01,
			MaxCollabWeight: 0.8,
			SuccessFloor:    0.6,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// REELFEED_REFRESH_MIN_UPDATES -> refresh.min_updates
	envProvider := env.Provider(EnvPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig()
	return &cfg
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps REELFEED_SECTION_SUB_KEY to section.sub_key. The first
// underscore separates the section; remaining underscores stay literal.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// sliceConfigPaths are parsed as comma-separated slices when set via env.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for known
// slice fields. Env vars come in as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(str, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.Catalog.MoviesPath == "" {
		return fmt.Errorf("catalog.movies_path must not be empty")
	}
	if c.Recommend.ContentWeight < 0 || c.Recommend.CollabWeight < 0 {
		return fmt.Errorf("recommend weights must be non-negative, got content=%f collab=%f",
			c.Recommend.ContentWeight, c.Recommend.CollabWeight)
	}
	if c.Recommend.ContentWeight+c.Recommend.CollabWeight == 0 {
		return fmt.Errorf("recommend weights must not both be zero")
	}
	if c.Recommend.FactorRank < 1 {
		return fmt.Errorf("recommend.factor_rank must be >= 1, got %d", c.Recommend.FactorRank)
	}
	if c.Recommend.FactorSweeps < 1 {
		return fmt.Errorf("recommend.factor_sweeps must be >= 1, got %d", c.Recommend.FactorSweeps)
	}
	if c.Recommend.TopNeighbors < 1 {
		return fmt.Errorf("recommend.top_neighbors must be >= 1, got %d", c.Recommend.TopNeighbors)
	}
	if c.Recommend.MinSimilarity < 0 || c.Recommend.MinSimilarity >= 1 {
		return fmt.Errorf("recommend.min_similarity must be in [0, 1), got %f", c.Recommend.MinSimilarity)
	}
	if c.Recommend.MaxK < 1 {
		return fmt.Errorf("recommend.max_k must be >= 1, got %d", c.Recommend.MaxK)
	}
	if c.Recommend.DefaultK < 1 || c.Recommend.DefaultK > c.Recommend.MaxK {
		return fmt.Errorf("recommend.default_k must be in [1, max_k], got %d", c.Recommend.DefaultK)
	}
	if c.Recommend.Cache.Enabled {
		if c.Recommend.Cache.TTL <= 0 {
			return fmt.Errorf("recommend.cache.ttl must be positive, got %v", c.Recommend.Cache.TTL)
		}
		if c.Recommend.Cache.MaxEntries < 1 {
			return fmt.Errorf("recommend.cache.max_entries must be >= 1, got %d", c.Recommend.Cache.MaxEntries)
		}
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive, got %v", c.Refresh.Interval)
	}
	if c.Refresh.MinUpdates < 1 {
		return fmt.Errorf("refresh.min_updates must be >= 1, got %d", c.Refresh.MinUpdates)
	}
	if c.Refresh.QueueSize < c.Refresh.MinUpdates {
		return fmt.Errorf("refresh.queue_size must be >= refresh.min_updates, got %d", c.Refresh.QueueSize)
	}
	if c.Refresh.SnapshotDir == "" {
		return fmt.Errorf("refresh.snapshot_dir must not be empty")
	}
	if c.Refresh.RetainBackups < 1 {
		return fmt.Errorf("refresh.retain_backups must be >= 1, got %d", c.Refresh.RetainBackups)
	}
	if c.Refresh.LearningRate <= 0 || c.Refresh.LearningRate >= 1 {
		return fmt.Errorf("refresh.learning_rate must be in (0, 1), got %f", c.Refresh.LearningRate)
	}
	if c.Refresh.MaxCollabWeight <= 0 || c.Refresh.MaxCollabWeight > 1 {
		return fmt.Errorf("refresh.max_collab_weight must be in (0, 1], got %f", c.Refresh.MaxCollabWeight)
	}
	if c.Refresh.SuccessFloor < 0 || c.Refresh.SuccessFloor > 1 {
		return fmt.Errorf("refresh.success_floor must be in [0, 1], got %f", c.Refresh.SuccessFloor)
	}
	return nil
}
