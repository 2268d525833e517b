package agents

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfig = `
agents:
  generator:
    name: Code Generator
    type: generator
    persona: You write code.
    temperature: 0.7
    max_tokens: 8192
  reviewer:
    name: General Reviewer
    type: reviewer
    persona: You review code.
    temperature: 0.2
    variant: general
  fixer:
    name: Issue Fixer
    type: fixer
    persona: You fix bugs.
    temperature: 0.3
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions() DirectoryOptions {
	return DirectoryOptions{
		Binary:          "claude",
		GenerateTimeout: 300 * time.Second,
		ReviewTimeout:   120 * time.Second,
	}
}

func TestNewDirectoryMissingFile(t *testing.T) {
	_, err := NewDirectory(filepath.Join(t.TempDir(), "nope.yaml"), testOptions())
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestNewDirectoryEmptyConfig(t *testing.T) {
	path := writeConfig(t, "agents: {}\n")
	_, err := NewDirectory(path, testOptions())
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing for empty roster, got %v", err)
	}
}

func TestResolveKnownAndUnknown(t *testing.T) {
	dir, err := NewDirectory(writeConfig(t, testConfig), testOptions())
	if err != nil {
		t.Fatal(err)
	}

	gen, err := dir.Generator()
	if err != nil {
		t.Fatalf("generator should resolve: %v", err)
	}
	if gen.ID() != AgentGenerator {
		t.Errorf("expected id %s, got %s", AgentGenerator, gen.ID())
	}

	// Unconfigured roles fail only on access, not at load time
	_, err = dir.SecurityReviewer()
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestResolveCachesInstances(t *testing.T) {
	dir, err := NewDirectory(writeConfig(t, testConfig), testOptions())
	if err != nil {
		t.Fatal(err)
	}

	first, _ := dir.Fixer()
	second, _ := dir.Fixer()
	if first != second {
		t.Error("expected the same cached instance on repeated access")
	}
}

func TestListFiltersByType(t *testing.T) {
	dir, err := NewDirectory(writeConfig(t, testConfig), testOptions())
	if err != nil {
		t.Fatal(err)
	}

	all := dir.List("")
	if len(all) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(all))
	}

	reviewers := dir.List(RoleReviewer)
	if len(reviewers) != 1 {
		t.Fatalf("expected 1 reviewer, got %d", len(reviewers))
	}
	if reviewers["reviewer"].Variant != "general" {
		t.Errorf("unexpected reviewer config: %+v", reviewers["reviewer"])
	}
}

func TestReloadSwapsRoster(t *testing.T) {
	path := writeConfig(t, testConfig)
	dir, err := NewDirectory(path, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	cached, _ := dir.Generator()

	updated := testConfig + `
  security_reviewer:
    name: Security Reviewer
    type: reviewer
    persona: You audit code.
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := dir.Reload(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if _, err := dir.SecurityReviewer(); err != nil {
		t.Fatalf("new role should resolve after reload: %v", err)
	}

	// Cache is dropped: the generator is a fresh instance
	fresh, _ := dir.Generator()
	if fresh == cached {
		t.Error("expected reload to drop cached instances")
	}
}

func TestReloadKeepsRosterOnError(t *testing.T) {
	path := writeConfig(t, testConfig)
	dir, err := NewDirectory(path, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	if err := dir.Reload(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected reload of a missing file to fail")
	}

	// Old roster still serves
	if _, err := dir.Fixer(); err != nil {
		t.Fatalf("expected old roster to survive failed reload: %v", err)
	}
}
