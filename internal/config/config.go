package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the workspace-level ground-control configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Maintenance   MaintenanceConfig   `toml:"maintenance"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	AgentsDir    string `toml:"agents_dir"`
	ProjectsDir  string `toml:"projects_dir"`
	DatabasePath string `toml:"database_path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web dashboard settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// MaintenanceConfig holds history retention settings
type MaintenanceConfig struct {
	RetentionDays int    `toml:"retention_days"`
	PruneSchedule string `toml:"prune_schedule"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			AgentsDir:    "./agents",
			ProjectsDir:  "./projects",
			DatabasePath: "./ground_control.db",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Maintenance: MaintenanceConfig{
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.AgentsDir = ExpandPath(cfg.General.AgentsDir)
	cfg.General.ProjectsDir = ExpandPath(cfg.General.ProjectsDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	return "gc.toml"
}

// Write persists the configuration as TOML
func (c *Config) Write(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the workspace configuration for obvious mistakes
func (c *Config) Validate() error {
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web port out of range: %d", c.Web.Port)
	}
	if c.Maintenance.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative: %d", c.Maintenance.RetentionDays)
	}
	return nil
}
