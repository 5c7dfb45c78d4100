// Package config handles configuration loading for ensemble.
// It supports XDG config paths, ENSEMBLE_* environment variables, and
// live reloading of the config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ensemblekit/ensemble/internal/logging"
)

// Config represents the complete ensemble configuration
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Signals      SignalsConfig      `mapstructure:"signals"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// OrchestratorConfig controls the execution engine
type OrchestratorConfig struct {
	// MaxParallelTasks is the number of worker goroutines (default: 4)
	MaxParallelTasks int `mapstructure:"max_parallel_tasks"`
	// QueueDepth is the capacity of the submission queue
	// (default: 0, which derives twice max_parallel_tasks)
	QueueDepth int `mapstructure:"queue_depth"`
}

// SignalsConfig controls the signal bus
type SignalsConfig struct {
	// HistoryCapacity is how many signals the bus retains (default: 1000)
	HistoryCapacity int `mapstructure:"history_capacity"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the log level: "DEBUG", "INFO", "WARN", "ERROR" (default: "INFO")
	Level string `mapstructure:"level"`
	// Format is the output encoding: "json" or "text" (default: "json")
	Format string `mapstructure:"format"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxParallelTasks: 4,
			QueueDepth:       0, // Derived from max_parallel_tasks
		},
		Signals: SignalsConfig{
			HistoryCapacity: 1000,
		},
		Logging: LoggingConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatJSON,
		},
	}
}

// setDefaults registers default values with the given viper instance
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("orchestrator.max_parallel_tasks", defaults.Orchestrator.MaxParallelTasks)
	v.SetDefault("orchestrator.queue_depth", defaults.Orchestrator.QueueDepth)

	v.SetDefault("signals.history_capacity", defaults.Signals.HistoryCapacity)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// watched guards the viper instance of the most recent Load so that Watch
// can attach to it.
var watched struct {
	mu sync.Mutex
	v  *viper.Viper
}

// Load reads the configuration and validates it.
// Precedence (highest to lowest):
//  1. Environment variables (ENSEMBLE_ORCHESTRATOR_MAX_PARALLEL_TASKS, ...)
//  2. The config file at path, or config.yaml under ConfigDir() when path is empty
//  3. Built-in defaults
//
// A missing config file is not an error; the defaults and environment apply.
// A file that exists but cannot be parsed is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENSEMBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	fileErr := v.ReadInConfig()
	if fileErr != nil && !isNotFound(fileErr) {
		return nil, fmt.Errorf("reading config: %w", fileErr)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// Only a Load that actually read a file leaves something to watch.
	watched.mu.Lock()
	if fileErr == nil {
		watched.v = v
	} else {
		watched.v = nil
	}
	watched.mu.Unlock()

	return cfg, nil
}

// isNotFound reports whether err means the config file does not exist.
// Viper returns ConfigFileNotFoundError when searching config paths and a
// plain fs.ErrNotExist when an explicit file was set.
func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// decode unmarshals the viper state into a Config and validates it
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Watch invokes onChange with the freshly loaded configuration whenever the
// config file from the most recent Load changes on disk. Edits that fail to
// parse or validate are dropped so callers keep their last good
// configuration. Watch returns an error when the most recent Load found no
// config file.
func Watch(onChange func(*Config)) error {
	watched.mu.Lock()
	v := watched.v
	watched.mu.Unlock()

	if v == nil {
		return errors.New("config: no config file to watch")
	}

	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// Get returns the current configuration (convenience function).
// It falls back to defaults if loading fails.
func Get() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ensemble")
	}
	// Fall back to ~/.config/ensemble
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ensemble"
	}
	return filepath.Join(home, ".config", "ensemble")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
