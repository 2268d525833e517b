package agents

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for the agent subsystem. A missing configuration file
// disables the improvement subsystem; it is not a fatal startup error for
// the owning orchestrator.
var (
	ErrConfigurationMissing = errors.New("agent configuration file not found")
	ErrUnknownAgent         = errors.New("unknown agent id")
)

// RoleType classifies what an agent role does
type RoleType string

const (
	RoleGenerator RoleType = "generator"
	RoleReviewer  RoleType = "reviewer"
	RoleFixer     RoleType = "fixer"
)

// AgentConfig describes one configured agent role
type AgentConfig struct {
	Name        string            `yaml:"name"`
	Type        RoleType          `yaml:"type"`
	Persona     string            `yaml:"persona"`
	Temperature float64           `yaml:"temperature"`
	MaxTokens   int               `yaml:"max_tokens"`
	Variant     string            `yaml:"variant,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
}

// configFile is the on-disk shape of the agents YAML file
type configFile struct {
	Agents map[string]AgentConfig `yaml:"agents"`
}

// LoadConfig reads the declarative agent configuration from a YAML file
func LoadConfig(path string) (map[string]AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigurationMissing, path)
		}
		return nil, err
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing agent config %s: %w", path, err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("%w: %s defines no agents", ErrConfigurationMissing, path)
	}

	return file.Agents, nil
}
