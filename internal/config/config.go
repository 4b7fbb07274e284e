// Package config loads overture configuration from .overture/config.yaml,
// merging file values over defaults and CLI flags over both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled enables recording run reports to the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// KeepRunsDays is the number of days to keep run history
	KeepRunsDays int `yaml:"keep_runs_days"`

	// MaxRuns is the maximum number of runs to keep
	MaxRuns int `yaml:"max_runs"`
}

// Config represents overture configuration options
type Config struct {
	// TasksFile is the default task definition file
	TasksFile string `yaml:"tasks_file"`

	// MaxConcurrency is the maximum number of concurrent tasks
	MaxConcurrency int `yaml:"max_concurrency"`

	// ContinueOnError runs dependents even when a dependency failed
	ContinueOnError bool `yaml:"continue_on_error"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// WatchDebounce is the quiet period before a watched file change
	// triggers a rerun
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		TasksFile:       "tasks.yaml",
		MaxConcurrency:  10,
		ContinueOnError: false,
		LogLevel:        "info",
		WatchDebounce:   500 * time.Millisecond,
		History: HistoryConfig{
			Enabled:      true,
			DBPath:       ".overture/history.db",
			KeepRunsDays: 90,
			MaxRuns:      500,
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations come in as strings, so decode through an intermediate.
	type yamlConfig struct {
		TasksFile       string        `yaml:"tasks_file"`
		MaxConcurrency  int           `yaml:"max_concurrency"`
		ContinueOnError bool          `yaml:"continue_on_error"`
		LogLevel        string        `yaml:"log_level"`
		WatchDebounce   string        `yaml:"watch_debounce"`
		History         HistoryConfig `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.TasksFile != "" {
		cfg.TasksFile = yamlCfg.TasksFile
	}
	if yamlCfg.MaxConcurrency != 0 {
		cfg.MaxConcurrency = yamlCfg.MaxConcurrency
	}
	if yamlCfg.ContinueOnError {
		cfg.ContinueOnError = yamlCfg.ContinueOnError
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.WatchDebounce != "" {
		debounce, err := time.ParseDuration(yamlCfg.WatchDebounce)
		if err != nil {
			return nil, fmt.Errorf("invalid watch_debounce format %q: %w", yamlCfg.WatchDebounce, err)
		}
		cfg.WatchDebounce = debounce
	}

	// The history section merges field by field: a present key wins even
	// when its value is the zero value.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, exists := rawMap["history"]; exists && section != nil {
			history := yamlCfg.History
			historyMap, _ := section.(map[string]interface{})

			if _, exists := historyMap["enabled"]; exists {
				cfg.History.Enabled = history.Enabled
			}
			if _, exists := historyMap["db_path"]; exists {
				cfg.History.DBPath = history.DBPath
			}
			if _, exists := historyMap["keep_runs_days"]; exists {
				cfg.History.KeepRunsDays = history.KeepRunsDays
			}
			if _, exists := historyMap["max_runs"]; exists {
				cfg.History.MaxRuns = history.MaxRuns
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .overture/config.yaml in the
// specified directory. If the directory or file doesn't exist, returns
// default configuration without error.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".overture", "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration. Non-nil flag
// values override configuration values, so flags take precedence over the
// config file.
func (c *Config) MergeWithFlags(tasksFile *string, maxConcurrency *int, continueOnError *bool, logLevel *string) {
	if tasksFile != nil {
		c.TasksFile = *tasksFile
	}
	if maxConcurrency != nil {
		c.MaxConcurrency = *maxConcurrency
	}
	if continueOnError != nil {
		c.ContinueOnError = *continueOnError
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
}
