// Package config handles configuration loading and management for weft.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/weftworks/weft/pkg/models"
)

// Config holds all configuration for weft.
type Config struct {
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Resources     ResourcesConfig     `mapstructure:"resources"`
	Isolation     IsolationConfig     `mapstructure:"isolation"`
	Debug         DebugConfig         `mapstructure:"debug"`
}

// OrchestrationConfig holds engine tunables.
type OrchestrationConfig struct {
	// MaxConcurrent bounds how many items run at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxRetries bounds per-item retries.
	MaxRetries int `mapstructure:"max_retries"`
	// ConflictStrategy selects resource conflict resolution.
	ConflictStrategy string `mapstructure:"conflict_strategy"`
	// AutoRollback enables threshold-based rollback.
	AutoRollback bool `mapstructure:"auto_rollback"`
	// RollbackThreshold is the failed/total fraction that triggers rollback.
	RollbackThreshold float64 `mapstructure:"rollback_threshold"`
	// MonitorInterval is the driver idle re-check interval.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	// ItemTimeout bounds each item's execution (0 disables).
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
	// GlobalTimeout bounds a whole run.
	GlobalTimeout time.Duration `mapstructure:"global_timeout"`
}

// ResourcesConfig holds per-type shared-capacity limits.
type ResourcesConfig struct {
	File            int `mapstructure:"file"`
	Database        int `mapstructure:"database"`
	APIEndpoint     int `mapstructure:"api_endpoint"`
	ExternalService int `mapstructure:"external_service"`
	Computational   int `mapstructure:"computational"`
}

// IsolationConfig holds workspace isolation settings.
type IsolationConfig struct {
	// RepoPath is the git repository to isolate work in.
	RepoPath string `mapstructure:"repo_path"`
	// TrunkBranch is the branch workspaces start from and merge back into.
	TrunkBranch string `mapstructure:"trunk_branch"`
	// WorkspacesDir is where worktrees are materialized.
	WorkspacesDir string `mapstructure:"workspaces_dir"`
	// StatePath is the sqlite mapping database location.
	StatePath string `mapstructure:"state_path"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// LogPath enables file-backed debug logging when set.
	LogPath string `mapstructure:"log_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (WEFT_*)
// 2. Project config (.weft.yaml in current directory or parent)
// 3. User config (~/.config/weft/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("WEFT")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Isolation.RepoPath = os.ExpandEnv(cfg.Isolation.RepoPath)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
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

	cfg.Isolation.RepoPath = os.ExpandEnv(cfg.Isolation.RepoPath)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// Engine converts the loaded settings into an engine configuration.
func (c *Config) Engine() models.Config {
	return models.Config{
		MaxConcurrent:     c.Orchestration.MaxConcurrent,
		MaxRetries:        c.Orchestration.MaxRetries,
		ConflictStrategy:  models.Strategy(c.Orchestration.ConflictStrategy),
		AutoRollback:      c.Orchestration.AutoRollback,
		RollbackThreshold: c.Orchestration.RollbackThreshold,
		MonitorInterval:   c.Orchestration.MonitorInterval,
		ItemTimeout:       c.Orchestration.ItemTimeout,
		GlobalTimeout:     c.Orchestration.GlobalTimeout,
		Capacity: map[models.ResourceType]int{
			models.ResourceFile:            c.Resources.File,
			models.ResourceDatabase:        c.Resources.Database,
			models.ResourceAPIEndpoint:     c.Resources.APIEndpoint,
			models.ResourceExternalService: c.Resources.ExternalService,
			models.ResourceComputational:   c.Resources.Computational,
		},
	}
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("orchestration.max_concurrent", 5)
	v.SetDefault("orchestration.max_retries", 3)
	v.SetDefault("orchestration.conflict_strategy", "priority_based")
	v.SetDefault("orchestration.auto_rollback", true)
	v.SetDefault("orchestration.rollback_threshold", 0.3)
	v.SetDefault("orchestration.monitor_interval", "100ms")
	v.SetDefault("orchestration.item_timeout", "0")
	v.SetDefault("orchestration.global_timeout", "5m")

	// Resource capacity defaults
	v.SetDefault("resources.file", 10)
	v.SetDefault("resources.database", 5)
	v.SetDefault("resources.api_endpoint", 20)
	v.SetDefault("resources.external_service", 3)
	v.SetDefault("resources.computational", 8)

	// Isolation defaults
	v.SetDefault("isolation.repo_path", ".")
	v.SetDefault("isolation.trunk_branch", "main")
	v.SetDefault("isolation.workspaces_dir", ".weft/workspaces")
	v.SetDefault("isolation.state_path", ".weft/state.db")

	// Debug defaults
	v.SetDefault("debug.log_path", "")
}

// getUserConfigDir returns the XDG config directory for weft.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weft")
	}

	// Fall back to ~/.config/weft
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weft")
	}
	return filepath.Join(home, ".config", "weft")
}

// findProjectConfig searches for .weft.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".weft.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestration: OrchestrationConfig{
			MaxConcurrent:     5,
			MaxRetries:        3,
			ConflictStrategy:  "priority_based",
			AutoRollback:      true,
			RollbackThreshold: 0.3,
			MonitorInterval:   100 * time.Millisecond,
			GlobalTimeout:     5 * time.Minute,
		},
		Resources: ResourcesConfig{
			File:            10,
			Database:        5,
			APIEndpoint:     20,
			ExternalService: 3,
			Computational:   8,
		},
		Isolation: IsolationConfig{
			RepoPath:      ".",
			TrunkBranch:   "main",
			WorkspacesDir: ".weft/workspaces",
			StatePath:     ".weft/state.db",
		},
	}
}
