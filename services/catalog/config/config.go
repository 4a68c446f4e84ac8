// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the catalog-sync configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps the configuration file size (1MB).
const MaxConfigFileSize = 1024 * 1024

// Duration wraps time.Duration with YAML string parsing ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the local mirror database.
type DatabaseConfig struct {
	Path       string   `yaml:"path"`
	SyncWrites bool     `yaml:"sync_writes"`
	GCInterval Duration `yaml:"gc_interval"`
}

// RemoteConfig configures the upstream catalog API.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`

	// AccessToken may be set directly or via AccessTokenEnv, which names
	// an environment variable to read at load time. The env indirection
	// keeps tokens out of config files.
	AccessToken    string `yaml:"access_token"`
	AccessTokenEnv string `yaml:"access_token_env"`

	Timeout           Duration `yaml:"timeout"`
	PageLimit         int      `yaml:"page_limit"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	CheckpointBatchSize int      `yaml:"checkpoint_batch_size"`
	YieldInterval       Duration `yaml:"yield_interval"`
	HistoryLimit        int      `yaml:"history_limit"`

	// AutoSyncInterval enables periodic background incremental syncs
	// when positive.
	AutoSyncInterval Duration `yaml:"auto_sync_interval"`
}

// RecoveryConfig configures retries and circuit breaking.
type RecoveryConfig struct {
	MaxRetryAttempts int      `yaml:"max_retry_attempts"`
	BaseRetryDelay   Duration `yaml:"base_retry_delay"`
	MaxRetryDelay    Duration `yaml:"max_retry_delay"`

	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
	HalfOpenMaxCalls int      `yaml:"half_open_max_calls"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			Path:       "./data/catalog",
			SyncWrites: true,
			GCInterval: Duration(5 * time.Minute),
		},
		Remote: RemoteConfig{
			AccessTokenEnv:    "CATALOG_ACCESS_TOKEN",
			Timeout:           Duration(30 * time.Second),
			PageLimit:         100,
			RequestsPerSecond: 5,
		},
		Sync: SyncConfig{
			CheckpointBatchSize: 100,
			HistoryLimit:        50,
		},
		Recovery: RecoveryConfig{
			MaxRetryAttempts: 3,
			BaseRetryDelay:   Duration(time.Second),
			MaxRetryDelay:    Duration(30 * time.Second),
			FailureThreshold: 5,
			RecoveryTimeout:  Duration(60 * time.Second),
			HalfOpenMaxCalls: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged. The remote token is resolved from its
// environment variable when AccessTokenEnv is set and AccessToken is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return cfg, fmt.Errorf("stat config %s: %w", path, err)
		}
		if info.Size() > MaxConfigFileSize {
			return cfg, fmt.Errorf("config %s exceeds %d bytes", path, MaxConfigFileSize)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if cfg.Remote.AccessToken == "" && cfg.Remote.AccessTokenEnv != "" {
		cfg.Remote.AccessToken = os.Getenv(cfg.Remote.AccessTokenEnv)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural constraints. Remote credentials are checked
// at client construction, not here, so offline commands work without
// them.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Sync.CheckpointBatchSize <= 0 {
		return errors.New("sync.checkpoint_batch_size must be positive")
	}
	if c.Recovery.MaxRetryAttempts <= 0 {
		return errors.New("recovery.max_retry_attempts must be positive")
	}
	if c.Recovery.BaseRetryDelay.Std() > c.Recovery.MaxRetryDelay.Std() {
		return errors.New("recovery.base_retry_delay must not exceed recovery.max_retry_delay")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}
	return nil
}
