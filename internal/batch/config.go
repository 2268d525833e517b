package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// JobConfig describes one scheduled improvement run
type JobConfig struct {
	Name        string `toml:"name"`
	Cron        string `toml:"cron"`
	Target      string `toml:"target"`      // directory whose files get improved
	Description string `toml:"description"` // shown as the execution request
	MaxRounds   int    `toml:"max_rounds"`
}

// ScheduleConfig holds all scheduled jobs
type ScheduleConfig struct {
	Jobs []JobConfig `toml:"job"`
}

// Validate checks if the job config is valid
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.Target == "" {
		return fmt.Errorf("target directory is required")
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 5 // Default
	}
	return nil
}

// LoadScheduleConfig loads the schedule from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Jobs {
		if err := cfg.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}

	return &cfg, nil
}
