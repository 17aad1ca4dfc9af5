// Package config loads haybind settings from an optional YAML file and
// HAYBIND_* environment variables. Command-line flags override both.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/store"
)

// Config defines haybind configuration.
type Config struct {
	DB    DBConfig    `yaml:"db"`
	Watch WatchConfig `yaml:"watch"`
	Write WriteConfig `yaml:"write"`
	Log   LogConfig   `yaml:"log"`

	// OpsOnly restricts bindings to filter and id reads.
	OpsOnly bool `yaml:"opsOnly"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type WatchConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
}

type WriteConfig struct {
	Level int    `yaml:"level"`
	Who   string `yaml:"who"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DB:    DBConfig{Path: "haybind.db"},
		Watch: WatchConfig{PollInterval: binding.DefaultPollInterval},
		Write: WriteConfig{Level: client.DefaultWriteLevel, Who: "haybind"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads configuration from the YAML file at path (or
// HAYBIND_CONFIG_PATH when path is empty) and applies environment
// overrides. A missing path means defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("HAYBIND_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if dbPath := os.Getenv("HAYBIND_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if s := os.Getenv("HAYBIND_POLL_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid HAYBIND_POLL_INTERVAL: %w", err)
		}
		cfg.Watch.PollInterval = d
	}
	if s := os.Getenv("HAYBIND_OPS_ONLY"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid HAYBIND_OPS_ONLY: %w", err)
		}
		cfg.OpsOnly = b
	}
	if s := os.Getenv("HAYBIND_WRITE_LEVEL"); s != "" {
		level, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid HAYBIND_WRITE_LEVEL: %w", err)
		}
		cfg.Write.Level = level
	}
	if who := os.Getenv("HAYBIND_WHO"); who != "" {
		cfg.Write.Who = who
	}
	if level := os.Getenv("HAYBIND_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if c.Watch.PollInterval < 0 {
		return fmt.Errorf("watch.pollInterval must not be negative, got %s", c.Watch.PollInterval)
	}
	if c.Write.Level < 1 || c.Write.Level > store.MaxWriteLevel {
		return fmt.Errorf("write.level must be 1-%d, got %d", store.MaxWriteLevel, c.Write.Level)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps log.level to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", c.Log.Level)
}

// EnvOptions returns the binding environment settings carried by c.
func (c Config) EnvOptions() []binding.EnvOption {
	return []binding.EnvOption{
		binding.WithOpsOnly(c.OpsOnly),
		binding.WithPollInterval(c.Watch.PollInterval),
		binding.WithWriteDefaults(c.Write.Level, c.Write.Who),
	}
}
