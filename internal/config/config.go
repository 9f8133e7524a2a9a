// Package config loads librarian configuration from .librarian/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// StateDir is the workspace-relative directory holding librarian state.
const StateDir = ".librarian"

// Config represents the complete librarian configuration (v1 schema)
type Config struct {
	Version       int    `json:"version" mapstructure:"version"`
	WorkspaceRoot string `json:"workspaceRoot" mapstructure:"workspaceRoot"`

	Watch   WatchConfig   `json:"watch" mapstructure:"watch"`
	Indexer IndexerConfig `json:"indexer" mapstructure:"indexer"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// WatchConfig contains change-detection and reindex-scheduling configuration
type WatchConfig struct {
	Enabled          bool     `json:"enabled" mapstructure:"enabled"`
	DebounceMs       int      `json:"debounceMs" mapstructure:"debounceMs"`
	BatchWindowMs    int      `json:"batchWindowMs" mapstructure:"batchWindowMs"`
	StormThreshold   int      `json:"stormThreshold" mapstructure:"stormThreshold"`
	CascadeReindex   bool     `json:"cascadeReindex" mapstructure:"cascadeReindex"`
	CascadeDelayMs   int      `json:"cascadeDelayMs" mapstructure:"cascadeDelayMs"`
	CascadeBatchSize int      `json:"cascadeBatchSize" mapstructure:"cascadeBatchSize"`
	HeartbeatMs      int      `json:"heartbeatMs" mapstructure:"heartbeatMs"`
	Excludes         []string `json:"excludes" mapstructure:"excludes"`
}

// IndexerConfig configures the external reindex command, if any.
// When Command is empty only checksum bookkeeping is performed.
type IndexerConfig struct {
	Command   string `json:"command" mapstructure:"command"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		WorkspaceRoot: ".",
		Watch: WatchConfig{
			Enabled:          true,
			DebounceMs:       500,
			BatchWindowMs:    2000,
			StormThreshold:   500,
			CascadeReindex:   true,
			CascadeDelayMs:   1000,
			CascadeBatchSize: 50,
			HeartbeatMs:      30000,
			Excludes: []string{
				".git",
				".librarian",
				"node_modules",
				"vendor",
				"dist",
				"build",
				"__pycache__",
				"*.log",
				"*.tmp",
			},
		},
		Indexer: IndexerConfig{
			TimeoutMs: 120000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from <workspaceRoot>/.librarian/config.json.
// A missing config file yields the defaults.
func Load(workspaceRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("workspaceRoot", ".")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(workspaceRoot, StateDir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.WorkspaceRoot = workspaceRoot
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.WorkspaceRoot = workspaceRoot

	return cfg, nil
}

// Save writes the configuration to <workspaceRoot>/.librarian/config.json
func (c *Config) Save(workspaceRoot string) error {
	dir := filepath.Join(workspaceRoot, StateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Watch.DebounceMs <= 0 {
		return fmt.Errorf("watch.debounceMs must be positive, got %d", c.Watch.DebounceMs)
	}
	if c.Watch.BatchWindowMs < c.Watch.DebounceMs {
		return fmt.Errorf("watch.batchWindowMs (%d) must be >= watch.debounceMs (%d)",
			c.Watch.BatchWindowMs, c.Watch.DebounceMs)
	}
	if c.Watch.StormThreshold <= 0 {
		return fmt.Errorf("watch.stormThreshold must be positive, got %d", c.Watch.StormThreshold)
	}
	if c.Watch.CascadeReindex && c.Watch.CascadeBatchSize <= 0 {
		return fmt.Errorf("watch.cascadeBatchSize must be positive when cascade is enabled, got %d",
			c.Watch.CascadeBatchSize)
	}
	return nil
}
