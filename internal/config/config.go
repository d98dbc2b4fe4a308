// Package config handles configuration loading for hive.
// It supports XDG config paths, project-level overrides, and environment
// variables. Every scheduling knob is a named, overridable parameter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the orchestration core.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Latency   LatencyConfig   `mapstructure:"latency"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

// SchedulerConfig holds the orchestrator's scheduling knobs.
type SchedulerConfig struct {
	// MaxConcurrent caps the number of simultaneously active tasks.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// TickInterval is the period of the scheduler's timer driver.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// MaxRetries is the default retry budget for tasks that do not set one.
	MaxRetries int `mapstructure:"max_retries"`
	// WatchdogFactor multiplies a task's latency ceiling to get the
	// deadline after which a running task is force-failed. Zero disables
	// the watchdog.
	WatchdogFactor float64 `mapstructure:"watchdog_factor"`
}

// LatencyConfig holds the per-priority latency ceilings used to build task
// requirements.
type LatencyConfig struct {
	High   time.Duration `mapstructure:"high"`
	Medium time.Duration `mapstructure:"medium"`
	Low    time.Duration `mapstructure:"low"`
}

// Ceiling returns the ceiling for a priority string (high, medium, low).
func (l LatencyConfig) Ceiling(priority string) time.Duration {
	switch priority {
	case "high":
		return l.High
	case "low":
		return l.Low
	default:
		return l.Medium
	}
}

// LedgerConfig holds task-ledger tunables.
type LedgerConfig struct {
	// ArchiveGrace is how long terminal records stay queryable.
	ArchiveGrace time.Duration `mapstructure:"archive_grace"`
	// HistoryLimit bounds the in-memory archive ring.
	HistoryLimit int `mapstructure:"history_limit"`
}

// ArchiveConfig holds the optional SQLite history sink settings.
type ArchiveConfig struct {
	// Enabled turns the on-disk history sink on. The core itself stays
	// in-memory either way.
	Enabled bool `mapstructure:"enabled"`
	// Path is the SQLite database location.
	Path string `mapstructure:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration with the following precedence (highest first):
// environment variables (HIVE_*), project config (.hive.yaml in the current
// directory or a parent), user config (~/.config/hive/config.yaml), and
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("HIVE")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.max_concurrent", 5)
	v.SetDefault("scheduler.tick_interval", "500ms")
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.watchdog_factor", 2.0)

	v.SetDefault("latency.high", "5s")
	v.SetDefault("latency.medium", "15s")
	v.SetDefault("latency.low", "30s")

	v.SetDefault("ledger.archive_grace", "60s")
	v.SetDefault("ledger.history_limit", 256)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.path", filepath.Join(userDataDir(), "history.db"))
}

// userConfigDir returns the XDG config directory for hive.
func userConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hive")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "hive")
}

// userDataDir returns the XDG data directory for hive.
func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "hive")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "hive")
}

// findProjectConfig walks up from the working directory looking for
// .hive.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".hive.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
