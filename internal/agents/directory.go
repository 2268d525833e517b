package agents

import (
	"fmt"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/invoker"
)

// Fixed role ids the improvement loop depends on
const (
	AgentGenerator           = "generator"
	AgentReviewer            = "reviewer"
	AgentFixer               = "fixer"
	AgentSecurityReviewer    = "security_reviewer"
	AgentPerformanceReviewer = "performance_reviewer"
	AgentTestGenerator       = "test_generator"
)

// DirectoryOptions configures the invokers a Directory hands out
type DirectoryOptions struct {
	Binary          string
	Model           string
	WorkRoot        string
	GenerateTimeout time.Duration // deadline for generator calls
	ReviewTimeout   time.Duration // deadline for reviewer and fixer calls
}

// Directory maps logical role ids to configured agent invokers.
// Instances are created lazily and cached for the directory's lifetime.
type Directory struct {
	configs map[string]AgentConfig
	opts    DirectoryOptions

	mu    sync.Mutex
	cache map[string]*invoker.Agent
}

// NewDirectory loads the agent configuration and returns a directory.
// A missing configuration file surfaces as ErrConfigurationMissing; the
// caller should treat that as "improvement subsystem unavailable".
func NewDirectory(configPath string, opts DirectoryOptions) (*Directory, error) {
	configs, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return &Directory{
		configs: configs,
		opts:    opts,
		cache:   make(map[string]*invoker.Agent),
	}, nil
}

// Resolve returns the invoker for an agent id, instantiating it on first
// access. Unknown ids fail with ErrUnknownAgent.
func (d *Directory) Resolve(id string) (*invoker.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if agent, ok := d.cache[id]; ok {
		return agent, nil
	}

	cfg, ok := d.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}

	timeout := d.opts.ReviewTimeout
	if cfg.Type == RoleGenerator {
		timeout = d.opts.GenerateTimeout
	}

	agent := invoker.New(id, cfg.Persona, invoker.Options{
		Binary:   d.opts.Binary,
		Model:    d.opts.Model,
		WorkRoot: d.opts.WorkRoot,
		Timeout:  timeout,
	})
	d.cache[id] = agent
	return agent, nil
}

// List returns the configurations, optionally filtered by role type
func (d *Directory) List(typeFilter RoleType) map[string]AgentConfig {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make(map[string]AgentConfig)
	for id, cfg := range d.configs {
		if typeFilter != "" && cfg.Type != typeFilter {
			continue
		}
		result[id] = cfg
	}
	return result
}

// Reload replaces the backing configuration and drops cached instances.
// Used by the config watcher for hot reload.
func (d *Directory) Reload(configPath string) error {
	configs, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = configs
	d.cache = make(map[string]*invoker.Agent)
	return nil
}

// Named convenience accessors for the six fixed roles

func (d *Directory) Generator() (*invoker.Agent, error) {
	return d.Resolve(AgentGenerator)
}

func (d *Directory) Reviewer() (*invoker.Agent, error) {
	return d.Resolve(AgentReviewer)
}

func (d *Directory) Fixer() (*invoker.Agent, error) {
	return d.Resolve(AgentFixer)
}

func (d *Directory) SecurityReviewer() (*invoker.Agent, error) {
	return d.Resolve(AgentSecurityReviewer)
}

func (d *Directory) PerformanceReviewer() (*invoker.Agent, error) {
	return d.Resolve(AgentPerformanceReviewer)
}

func (d *Directory) TestGenerator() (*invoker.Agent, error) {
	return d.Resolve(AgentTestGenerator)
}
