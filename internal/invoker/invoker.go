// Package invoker wraps single calls to the external code agent CLI.
//
// Each invocation gets its own scoped working directory under the
// configured work root: the composed prompt and any file context are
// materialized there before the CLI runs, and in apply-fix mode every
// readable file left in the directory afterward (minus the prompt
// artifact) is treated as output. The directory is removed on all exit
// paths.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// promptFileName is the prompt artifact written into the working
// directory. It is excluded when reading back an apply-fix file set.
const promptFileName = ".agent-prompt.md"

var (
	// ErrTimeout is returned when the external process exceeds its deadline
	ErrTimeout = errors.New("agent invocation timed out")
	// ErrExecutionFailed is returned on a non-zero exit of the external process
	ErrExecutionFailed = errors.New("agent execution failed")
)

// Options configures how an Agent reaches the external CLI
type Options struct {
	Binary   string        // external CLI binary, "claude" by default
	Model    string        // optional model override passed via --model
	WorkRoot string        // parent directory for scoped working areas
	Timeout  time.Duration // hard wall-clock deadline per invocation
}

// Request is one composed call to the external capability
type Request struct {
	TaskPrompt string
	Files      map[string]string // optional code/files to analyze
	Memory     string            // optional relevant context from prior rounds
}

// Agent invokes the external CLI bound to a fixed persona
type Agent struct {
	id      string
	persona string
	opts    Options
}

// New creates an Agent bound to the given persona
func New(id, persona string, opts Options) *Agent {
	if opts.Binary == "" {
		opts.Binary = "claude"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Agent{id: id, persona: persona, opts: opts}
}

// ID returns the directory id this agent was resolved under
func (a *Agent) ID() string {
	return a.id
}

// Invoke runs one call and returns the CLI's raw text output
func (a *Agent) Invoke(ctx context.Context, req Request) (string, error) {
	output, _, err := a.run(ctx, req, false)
	return output, err
}

// ApplyFix runs one call and returns the full post-invocation file set of
// the working directory instead of stdout text
func (a *Agent) ApplyFix(ctx context.Context, req Request) (map[string]string, error) {
	_, files, err := a.run(ctx, req, true)
	return files, err
}

func (a *Agent) run(ctx context.Context, req Request, collectFiles bool) (string, map[string]string, error) {
	workdir, err := os.MkdirTemp(a.opts.WorkRoot, "agent-"+a.id+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating working directory: %w", err)
	}
	defer os.RemoveAll(workdir)

	prompt := ComposePrompt(a.persona, req)
	if err := materialize(workdir, prompt, req.Files); err != nil {
		return "", nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	args := []string{
		"--print",                        // non-interactive mode
		"--dangerously-skip-permissions", // skip permission prompts
		"--output-format", "text",
	}
	if a.opts.Model != "" {
		args = append(args, "--model", a.opts.Model)
	}
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, a.opts.Binary, args...)
	cmd.Dir = workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", nil, fmt.Errorf("%w: agent %s after %s", ErrTimeout, a.id, a.opts.Timeout)
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return "", nil, fmt.Errorf("%w: agent %s: %s", ErrExecutionFailed, a.id, diag)
	}

	if !collectFiles {
		return stdout.String(), nil, nil
	}

	files, err := collectOutputs(workdir)
	if err != nil {
		return "", nil, fmt.Errorf("reading fix output: %w", err)
	}
	return stdout.String(), files, nil
}

// ComposePrompt concatenates the prompt blocks in fixed order: identity,
// relevant context, files to analyze, then the task. Reviewers must see
// identity before content and content before the ask, so persona framing
// cannot be overridden by task text appearing first.
func ComposePrompt(persona string, req Request) string {
	var b strings.Builder

	if persona != "" {
		b.WriteString("# Identity\n\n")
		b.WriteString(persona)
		b.WriteString("\n\n")
	}

	if req.Memory != "" {
		b.WriteString("# Relevant Context\n\n")
		b.WriteString(req.Memory)
		b.WriteString("\n\n")
	}

	if len(req.Files) > 0 {
		b.WriteString("# Code Files to Analyze\n\n")
		for _, name := range sortedKeys(req.Files) {
			b.WriteString("## ")
			b.WriteString(name)
			b.WriteString("\n\n```\n")
			b.WriteString(req.Files[name])
			b.WriteString("\n```\n\n")
		}
	}

	b.WriteString("# Your Task\n\n")
	b.WriteString(req.TaskPrompt)
	b.WriteString("\n")

	return b.String()
}

// materialize writes the prompt artifact and file context into the
// scoped working directory
func materialize(workdir, prompt string, files map[string]string) error {
	promptPath := filepath.Join(workdir, promptFileName)
	if err := os.WriteFile(promptPath, []byte(prompt), 0644); err != nil {
		return fmt.Errorf("writing prompt: %w", err)
	}

	for name, content := range files {
		path := filepath.Join(workdir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("creating context dir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing context file %s: %w", name, err)
		}
	}

	return nil
}

// collectOutputs reads every regular file under workdir, minus the prompt
// artifact, keyed by slash-separated relative path
func collectOutputs(workdir string) (map[string]string, error) {
	files := make(map[string]string)

	err := filepath.Walk(workdir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(workdir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == promptFileName {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			// Unreadable files are not part of the output
			return nil
		}
		files[rel] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
