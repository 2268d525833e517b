package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoaderLoadEmbedded(t *testing.T) {
	loader := NewLoader() // No override dirs

	tmpl, meta, err := loader.LoadTemplate("review/security.md")
	if err != nil {
		t.Fatalf("failed to load review template: %v", err)
	}
	if tmpl == nil {
		t.Fatal("template should not be nil")
	}
	if meta == nil {
		t.Fatal("review template should have frontmatter metadata")
	}
	if meta.ID != "review-security" {
		t.Errorf("expected ID 'review-security', got '%s'", meta.ID)
	}
}

func TestLoaderExecuteFixTemplate(t *testing.T) {
	loader := NewLoader()

	result, err := loader.Execute("fix/issue.md", map[string]string{
		"Severity":    "high",
		"Location":    "app.py:42",
		"Description": "SQL injection in query",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	for _, want := range []string{"high", "app.py:42", "SQL injection in query", "minimal change"} {
		if !strings.Contains(result, want) {
			t.Errorf("fix prompt missing %q:\n%s", want, result)
		}
	}
}

func TestLoaderOverride(t *testing.T) {
	tmpDir := t.TempDir()

	reviewDir := filepath.Join(tmpDir, "review")
	if err := os.MkdirAll(reviewDir, 0755); err != nil {
		t.Fatal(err)
	}

	customContent := "Custom override review instructions.\n"
	if err := os.WriteFile(filepath.Join(reviewDir, "general.md"), []byte(customContent), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(tmpDir)

	body, err := loader.LoadRaw("review/general.md")
	if err != nil {
		t.Fatalf("load override failed: %v", err)
	}
	if !strings.Contains(body, "Custom override") {
		t.Errorf("expected override content, got: %s", body)
	}
}

func TestLoaderFrontmatterStripped(t *testing.T) {
	loader := NewLoader()

	body, err := loader.LoadRaw("review/general.md")
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(body, "---") {
		t.Error("frontmatter should be stripped from raw body")
	}
}
