// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Chime bot.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "http://localhost:6167").
	HomeserverURL string `yaml:"homeserver_url"`

	// StateDir holds runtime state: session.json and, unless
	// DatabasePath overrides it, the clock database.
	StateDir string `yaml:"state_dir"`

	// DatabasePath is the clock store's SQLite file. Defaults to
	// <state_dir>/chime.db.
	DatabasePath string `yaml:"database_path"`

	// AssetDir contains the dial images and their manifest.jsonc.
	// Empty disables image rendering entirely; every clock falls back
	// to its text presentation.
	AssetDir string `yaml:"asset_dir"`

	// LockAfter is how long an unlocked clock message keeps its full
	// control set before it automatically degrades to the locked
	// state. Default: 10h.
	LockAfter Duration `yaml:"lock_after"`

	// NoticeTTL is how long transient notices ("Clock created", error
	// replies) stay in the room before the bot redacts them. Zero
	// keeps notices forever. Default: 5s.
	NoticeTTL Duration `yaml:"notice_ttl"`

	// LogLevel is the slog level name: debug, info, warn, error.
	// Default: info.
	LogLevel string `yaml:"log_level"`
}

// Duration wraps time.Duration with YAML unmarshaling from Go duration
// strings ("10h", "5s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and validates the configuration file at path. If path is
// empty, the CHIME_CONFIG environment variable is consulted. There are
// no further fallbacks or automatic discovery — configuration is a
// single explicit file with no hidden overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CHIME_CONFIG")
	}
	if path == "" {
		return nil, fmt.Errorf("config: no path given and CHIME_CONFIG is not set")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DatabasePath == "" && c.StateDir != "" {
		c.DatabasePath = filepath.Join(c.StateDir, "chime.db")
	}
	if c.LockAfter == 0 {
		c.LockAfter = Duration(10 * time.Hour)
	}
	if c.NoticeTTL == 0 {
		c.NoticeTTL = Duration(5 * time.Second)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.HomeserverURL == "" {
		return fmt.Errorf("homeserver_url is required")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}
