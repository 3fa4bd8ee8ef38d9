// Package model defines the data structures for cmdrelay's configuration, records and notifications.
package model

import (
	"errors"
	"fmt"
	"os"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

const (
	// DataDirName is the well-known subdirectory holding config.yaml and the store.
	DataDirName      = "shared"
	ConfigFileName   = "config.yaml"
	DefaultStoreFile = "commands.csv"
	DefaultSource    = "console"
)

type Config struct {
	Source  string        `yaml:"source"`
	Store   StoreConfig   `yaml:"store"`
	Poller  PollerConfig  `yaml:"poller"`
	Worker  WorkerConfig  `yaml:"worker"`
	Logging LoggingConfig `yaml:"logging"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type StoreConfig struct {
	File   string `yaml:"file"`
	Backup bool   `yaml:"backup"`
}

type PollerConfig struct {
	InitialDelayMs int  `yaml:"initial_delay_ms"`
	IntervalMs     int  `yaml:"interval_ms"`
	Watch          bool `yaml:"watch"`
	DebounceMs     int  `yaml:"debounce_ms"`
}

type WorkerConfig struct {
	IntervalMs     int                 `yaml:"interval_ms"`
	TimeoutSec     int                 `yaml:"timeout_sec"`
	MaxResultBytes int                 `yaml:"max_result_bytes"`
	Sources        []string            `yaml:"sources,omitempty"`
	Commands       map[string][]string `yaml:"commands,omitempty"`
}

type LoggingConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	File     string         `yaml:"file"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

type NotifyConfig struct {
	Desktop bool `yaml:"desktop"`
}

func DefaultConfig() Config {
	return Config{
		Source: DefaultSource,
		Store: StoreConfig{
			File:   DefaultStoreFile,
			Backup: true,
		},
		Poller: PollerConfig{
			InitialDelayMs: 1000,
			IntervalMs:     1000,
			Watch:          true,
			DebounceMs:     200,
		},
		Worker: WorkerConfig{
			IntervalMs:     1000,
			TimeoutSec:     60,
			MaxResultBytes: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Rotation: RotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// Normalize replaces empty or non-positive values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Source == "" {
		c.Source = def.Source
	}
	if c.Store.File == "" {
		c.Store.File = def.Store.File
	}
	if c.Poller.InitialDelayMs < 0 {
		c.Poller.InitialDelayMs = def.Poller.InitialDelayMs
	}
	if c.Poller.IntervalMs <= 0 {
		c.Poller.IntervalMs = def.Poller.IntervalMs
	}
	if c.Poller.DebounceMs <= 0 {
		c.Poller.DebounceMs = def.Poller.DebounceMs
	}
	if c.Worker.IntervalMs <= 0 {
		c.Worker.IntervalMs = def.Worker.IntervalMs
	}
	if c.Worker.TimeoutSec <= 0 {
		c.Worker.TimeoutSec = def.Worker.TimeoutSec
	}
	if c.Worker.MaxResultBytes <= 0 {
		c.Worker.MaxResultBytes = def.Worker.MaxResultBytes
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

func (p PollerConfig) InitialDelay() time.Duration {
	return time.Duration(p.InitialDelayMs) * time.Millisecond
}

func (p PollerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (p PollerConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

func (w WorkerConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMs) * time.Millisecond
}

func (w WorkerConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSec) * time.Second
}

// LoadConfig reads a YAML config file over the defaults. A missing file yields
// the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}
