// Package orchestrator turns a user request into an execution: it
// decomposes the request into a code-generation task, routes it to the
// generator backend, and hands the resulting artifact to the improvement
// loop. Generation failures are fatal for the execution; improvement
// failures degrade to warnings.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/agents"
	"github.com/hochfrequenz/claude-refine/internal/domain"
	"github.com/hochfrequenz/claude-refine/internal/invoker"
	"github.com/hochfrequenz/claude-refine/internal/ledger"
	"github.com/hochfrequenz/claude-refine/internal/loop"
	"github.com/hochfrequenz/claude-refine/internal/prompts"
)

// defaultGeneratorPersona is used when no agent configuration is
// available, keeping single-pass generation working with the improvement
// subsystem disabled.
const defaultGeneratorPersona = "You are an expert software engineer. You write clean, correct, well-tested code and follow the conventions of the language you are writing."

// BackendClaudeCode is the default code-generation backend name
const BackendClaudeCode = "claude-code"

// Store is the slice of the execution ledger the orchestrator needs
type Store interface {
	CreateExecution(exec *domain.Execution) error
	UpdateExecutionStatus(id string, status domain.ExecutionStatus) error
	CreateTask(task *domain.Task) error
	SaveRound(result *domain.ExecutionResult) error
}

var _ Store = (*ledger.Store)(nil)

// Options configures an Orchestrator
type Options struct {
	Invoker invoker.Options // binary, work root, generate timeout
	Loop    loop.Config
	Events  loop.EventFunc
}

// Summary is what a completed execution hands back to the caller
type Summary struct {
	ExecutionID string
	TaskID      string
	Outcome     loop.Outcome
	Rounds      int
	Final       domain.CodeOutput
}

// Orchestrator coordinates one execution end to end
type Orchestrator struct {
	store  Store
	dir    *agents.Directory // nil when the improvement subsystem is unavailable
	loader *prompts.Loader
	opts   Options
}

// New creates an Orchestrator. dir may be nil: the improvement subsystem
// is then unavailable and executions run single-shot.
func New(store Store, dir *agents.Directory, loader *prompts.Loader, opts Options) *Orchestrator {
	if loader == nil {
		loader = prompts.NewLoader()
	}
	return &Orchestrator{store: store, dir: dir, loader: loader, opts: opts}
}

// Execute runs one request: decompose, generate, improve, persist.
func (o *Orchestrator) Execute(ctx context.Context, request string) (*Summary, error) {
	exec := &domain.Execution{
		ID:        domain.NewExecutionID(),
		Request:   request,
		Status:    domain.ExecutionRunning,
		CreatedAt: time.Now(),
	}
	if err := o.store.CreateExecution(exec); err != nil {
		return nil, fmt.Errorf("creating execution: %w", err)
	}

	task := o.decompose(exec, request)
	if err := o.store.CreateTask(task); err != nil {
		return nil, o.fail(exec.ID, fmt.Errorf("creating task: %w", err))
	}

	// Single-shot generation; a failure here aborts the execution
	artifact, err := o.generate(ctx, task)
	if err != nil {
		return nil, o.fail(exec.ID, fmt.Errorf("generation: %w", err))
	}

	genResult := &domain.ExecutionResult{
		TaskID:      task.ID,
		ExecutionID: exec.ID,
		Backend:     task.Backend,
		Output:      artifact,
		Status:      domain.ResultSuccess,
	}
	if err := o.store.SaveRound(genResult); err != nil {
		return nil, o.fail(exec.ID, fmt.Errorf("persisting generation result: %w", err))
	}

	summary := &Summary{ExecutionID: exec.ID, TaskID: task.ID, Final: artifact}

	// Improvement loop, if the subsystem is available
	if imp := o.buildLoop(o.opts.Loop); imp != nil {
		result, err := imp.Run(ctx, task, exec.ID, artifact)
		if err != nil {
			return nil, o.fail(exec.ID, fmt.Errorf("improvement loop: %w", err))
		}
		summary.Outcome = result.Outcome
		summary.Rounds = len(result.Rounds)
		summary.Final = result.Final
	} else {
		o.emit(loop.StepWarning, 0, "improvement subsystem unavailable, execution ran single-shot")
	}

	if err := o.store.UpdateExecutionStatus(exec.ID, domain.ExecutionCompleted); err != nil {
		return nil, err
	}
	return summary, nil
}

// Improve runs the improvement loop over an existing artifact without a
// generation step. Used by the improve command and scheduled batches.
func (o *Orchestrator) Improve(ctx context.Context, description string, files map[string]string) (*Summary, error) {
	return o.improve(ctx, description, files, o.opts.Loop)
}

// ImproveWithBudget is Improve with a per-run round budget. Scheduled
// jobs carry their own max_rounds, which overrides the configured
// default for that run only.
func (o *Orchestrator) ImproveWithBudget(ctx context.Context, description string, files map[string]string, maxRounds int) (*Summary, error) {
	cfg := o.opts.Loop
	if maxRounds > 0 {
		cfg.MaxRounds = maxRounds
	}
	return o.improve(ctx, description, files, cfg)
}

func (o *Orchestrator) improve(ctx context.Context, description string, files map[string]string, cfg loop.Config) (*Summary, error) {
	imp := o.buildLoop(cfg)
	if imp == nil {
		return nil, agents.ErrConfigurationMissing
	}

	exec := &domain.Execution{
		ID:        domain.NewExecutionID(),
		Request:   description,
		Status:    domain.ExecutionRunning,
		CreatedAt: time.Now(),
	}
	if err := o.store.CreateExecution(exec); err != nil {
		return nil, fmt.Errorf("creating execution: %w", err)
	}

	task := o.decompose(exec, description)
	task.Context["mode"] = "improve"
	if err := o.store.CreateTask(task); err != nil {
		return nil, o.fail(exec.ID, fmt.Errorf("creating task: %w", err))
	}

	artifact := domain.CodeOutput{
		Files:    files,
		Metadata: map[string]string{"backend": task.Backend, "mode": "improve"},
	}
	seed := &domain.ExecutionResult{
		TaskID:      task.ID,
		ExecutionID: exec.ID,
		Backend:     task.Backend,
		Output:      artifact,
		Status:      domain.ResultSuccess,
	}
	if err := o.store.SaveRound(seed); err != nil {
		return nil, o.fail(exec.ID, fmt.Errorf("persisting input artifact: %w", err))
	}

	result, err := imp.Run(ctx, task, exec.ID, artifact)
	if err != nil {
		return nil, o.fail(exec.ID, fmt.Errorf("improvement loop: %w", err))
	}

	if err := o.store.UpdateExecutionStatus(exec.ID, domain.ExecutionCompleted); err != nil {
		return nil, err
	}
	return &Summary{
		ExecutionID: exec.ID,
		TaskID:      task.ID,
		Outcome:     result.Outcome,
		Rounds:      len(result.Rounds),
		Final:       result.Final,
	}, nil
}

// decompose turns a request into tasks. Only single-task code generation
// is supported today.
func (o *Orchestrator) decompose(exec *domain.Execution, request string) *domain.Task {
	return &domain.Task{
		ID:          domain.NewTaskID(),
		ExecutionID: exec.ID,
		Description: request,
		Type:        domain.TaskCodeGeneration,
		Backend:     BackendClaudeCode,
		Context:     map[string]string{"request": request},
		CreatedAt:   time.Now(),
	}
}

// generate routes the task to the generator backend and collects the
// produced file set from the agent's working area.
func (o *Orchestrator) generate(ctx context.Context, task *domain.Task) (domain.CodeOutput, error) {
	o.emit(loop.StepGenerating, 0, "generating code for "+task.ID)

	prompt, err := o.loader.Execute("generate/task.md", map[string]interface{}{
		"Description": task.Description,
		"Context":     task.Context,
	})
	if err != nil {
		return domain.CodeOutput{}, err
	}

	started := time.Now()
	files, err := o.generator().ApplyFix(ctx, invoker.Request{TaskPrompt: prompt})
	if err != nil {
		return domain.CodeOutput{}, err
	}

	o.emit(loop.StepGenerated, 0, fmt.Sprintf("generated %d files", len(files)))
	return domain.CodeOutput{
		Files:    files,
		Metadata: map[string]string{"backend": task.Backend},
		Elapsed:  time.Since(started),
	}, nil
}

// generator prefers the configured generator role, falling back to a
// built-in persona when the directory is unavailable
func (o *Orchestrator) generator() loop.Agent {
	if o.dir != nil {
		if gen, err := o.dir.Generator(); err == nil {
			return gen
		}
		o.emit(loop.StepWarning, 0, "no generator role configured, using built-in persona")
	}
	return invoker.New(agents.AgentGenerator, defaultGeneratorPersona, o.opts.Invoker)
}

// buildLoop resolves the review and fix roles into an improvement loop.
// Returns nil when the subsystem is unavailable. A missing reviewer role
// is skipped with a warning; a missing fixer disables the loop.
func (o *Orchestrator) buildLoop(cfg loop.Config) *loop.Loop {
	if o.dir == nil {
		return nil
	}

	roles := []struct {
		category string
		template string
		resolve  func() (*invoker.Agent, error)
	}{
		{"general", "review/general.md", o.dir.Reviewer},
		{"security", "review/security.md", o.dir.SecurityReviewer},
		{"performance", "review/performance.md", o.dir.PerformanceReviewer},
	}

	var reviewers []loop.Reviewer
	for _, role := range roles {
		agent, err := role.resolve()
		if err != nil {
			o.emit(loop.StepWarning, 0, fmt.Sprintf("%s reviewer unavailable: %v", role.category, err))
			continue
		}
		reviewers = append(reviewers, loop.Reviewer{
			Category: role.category,
			Template: role.template,
			Agent:    agent,
		})
	}

	fixer, err := o.dir.Fixer()
	if err != nil {
		o.emit(loop.StepWarning, 0, fmt.Sprintf("fixer unavailable, skipping improvement: %v", err))
		return nil
	}
	if len(reviewers) == 0 {
		o.emit(loop.StepWarning, 0, "no reviewers available, skipping improvement")
		return nil
	}

	return loop.New(reviewers, fixer, o.store, o.loader, o.opts.Events, cfg)
}

// fail marks the execution failed and returns the original error
func (o *Orchestrator) fail(executionID string, cause error) error {
	if err := o.store.UpdateExecutionStatus(executionID, domain.ExecutionFailed); err != nil {
		return fmt.Errorf("%v (additionally failed to mark execution: %w)", cause, err)
	}
	return cause
}

func (o *Orchestrator) emit(step loop.Step, round int, message string) {
	if o.opts.Events == nil {
		return
	}
	o.opts.Events(loop.Event{Step: step, Round: round, Message: message})
}
