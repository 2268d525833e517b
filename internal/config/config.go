package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General GeneralConfig `toml:"general"`
	Agent   AgentConfig   `toml:"agent"`
	Improve ImproveConfig `toml:"improve"`
	Web     WebConfig     `toml:"web"`
	Notify  NotifyConfig  `toml:"notify"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	WorkRoot     string `toml:"work_root"`
	DatabasePath string `toml:"database_path"`
	AgentsConfig string `toml:"agents_config"`
	OutputDir    string `toml:"output_dir"`
}

// AgentConfig holds external CLI settings
type AgentConfig struct {
	Binary              string `toml:"binary"`
	Model               string `toml:"model"`
	GenerateTimeoutSecs int    `toml:"generate_timeout_secs"`
	ReviewTimeoutSecs   int    `toml:"review_timeout_secs"`
}

// ImproveConfig bounds the improvement loop
type ImproveConfig struct {
	MaxRounds int `toml:"max_rounds"`
	MaxFixes  int `toml:"max_fixes_per_round"`
}

// WebConfig holds status server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// NotifyConfig holds completion notification settings
type NotifyConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
	Desktop      bool   `toml:"desktop"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkRoot:     filepath.Join(home, ".claude-refine", "work"),
			DatabasePath: filepath.Join(home, ".claude-refine", "refine.db"),
			AgentsConfig: filepath.Join(home, ".config", "claude-refine", "agents.yaml"),
			OutputDir:    "out",
		},
		Agent: AgentConfig{
			Binary:              "claude",
			GenerateTimeoutSecs: 300,
			ReviewTimeoutSecs:   120,
		},
		Improve: ImproveConfig{
			MaxRounds: 5,
			MaxFixes:  3,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
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
	cfg.General.WorkRoot = ExpandPath(cfg.General.WorkRoot)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.AgentsConfig = ExpandPath(cfg.General.AgentsConfig)
	cfg.General.OutputDir = ExpandPath(cfg.General.OutputDir)

	return cfg, nil
}

// GenerateTimeout returns the generator deadline as a duration
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.Agent.GenerateTimeoutSecs) * time.Second
}

// ReviewTimeout returns the reviewer/fixer deadline as a duration
func (c *Config) ReviewTimeout() time.Duration {
	return time.Duration(c.Agent.ReviewTimeoutSecs) * time.Second
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
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-refine", "config.toml")
}
