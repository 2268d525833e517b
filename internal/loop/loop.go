// Package loop drives the iterative improvement cycle: review the current
// artifact with several independent agents, aggregate their findings into
// structured issues, dispatch a bounded number of fixes, and stop on
// convergence or when the round budget runs out.
package loop

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/claude-refine/internal/domain"
	"github.com/hochfrequenz/claude-refine/internal/extract"
	"github.com/hochfrequenz/claude-refine/internal/invoker"
	"github.com/hochfrequenz/claude-refine/internal/prompts"
)

// Agent is the slice of the invoker the loop needs
type Agent interface {
	ID() string
	Invoke(ctx context.Context, req invoker.Request) (string, error)
	ApplyFix(ctx context.Context, req invoker.Request) (map[string]string, error)
}

// Reviewer pairs a review agent with the issue category it reports under.
// Reviewer order fixes the aggregation order, and therefore the top-N fix
// selection, regardless of invocation concurrency.
type Reviewer struct {
	Category string
	Template string // prompt template path, e.g. review/security.md
	Agent    Agent
}

// Ledger is the slice of the execution ledger the loop writes to
type Ledger interface {
	SaveRound(result *domain.ExecutionResult) error
}

// Outcome is how a loop run terminated. Both values are normal outcomes,
// not errors.
type Outcome string

const (
	Converged       Outcome = "converged"
	BudgetExhausted Outcome = "budget_exhausted"
)

// Config bounds the loop
type Config struct {
	MaxRounds int // review/fix rounds before giving up (default 5)
	MaxFixes  int // fix dispatches per round (default 3)
}

// DefaultConfig returns the reference bounds
func DefaultConfig() Config {
	return Config{MaxRounds: 5, MaxFixes: 3}
}

// Result is the aggregate outcome of a loop run
type Result struct {
	Outcome Outcome
	Rounds  []*domain.ExecutionResult
	Final   domain.CodeOutput
}

// Loop runs improvement rounds over a code artifact
type Loop struct {
	reviewers []Reviewer
	fixer     Agent
	ledger    Ledger
	loader    *prompts.Loader
	events    EventFunc
	cfg       Config
}

// New creates a Loop. Reviewers are aggregated in the order given; the
// reference order is general, security, performance.
func New(reviewers []Reviewer, fixer Agent, ledger Ledger, loader *prompts.Loader, events EventFunc, cfg Config) *Loop {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultConfig().MaxRounds
	}
	if cfg.MaxFixes <= 0 {
		cfg.MaxFixes = DefaultConfig().MaxFixes
	}
	if loader == nil {
		loader = prompts.NewLoader()
	}
	return &Loop{
		reviewers: reviewers,
		fixer:     fixer,
		ledger:    ledger,
		loader:    loader,
		events:    events,
		cfg:       cfg,
	}
}

// Run drives up to MaxRounds improvement rounds over the artifact,
// persisting one ExecutionResult per round. It returns an error only for
// infrastructure failures (ledger writes); agent failures degrade to
// warnings inside the round.
func (l *Loop) Run(ctx context.Context, task *domain.Task, baseExecutionID string, artifact domain.CodeOutput) (*Result, error) {
	current := artifact.Clone()
	result := &Result{Outcome: BudgetExhausted}

	for round := 1; round <= l.cfg.MaxRounds; round++ {
		l.emit(StepRoundStart, round, fmt.Sprintf("round %d of %d", round, l.cfg.MaxRounds), 0)
		started := time.Now()

		// Reviewing: independent reviewers over the current snapshot
		texts := l.review(ctx, round, current)

		// Aggregating: extract issues per reviewer, fixed order, no
		// cross-reviewer dedup (a duplicate reported twice is two issues)
		var issues []domain.Issue
		for i, reviewer := range l.reviewers {
			issues = append(issues, extract.Parse(texts[i], reviewer.Category)...)
		}
		l.emit(StepAggregated, round, fmt.Sprintf("%d issues found", len(issues)), len(issues))

		// Prioritizing: only critical/high issues get fixes
		var actionable []domain.Issue
		for _, issue := range issues {
			if issue.Severity.Actionable() {
				actionable = append(actionable, issue)
			}
		}
		l.emit(StepPrioritized, round, fmt.Sprintf("%d actionable issues", len(actionable)), len(actionable))

		// Fixing: bounded, sequential, each fix replaces the snapshot
		// wholesale on success
		var improvements []domain.Improvement
		fixesApplied := 0
		if len(issues) > 0 && len(actionable) > 0 {
			current, improvements, fixesApplied = l.fix(ctx, round, current, actionable)
		}

		current.Elapsed = time.Since(started)
		roundResult := l.roundResult(task, baseExecutionID, round, current, issues, improvements, fixesApplied)
		if l.ledger != nil {
			if err := l.ledger.SaveRound(roundResult); err != nil {
				return nil, fmt.Errorf("persisting round %d: %w", round, err)
			}
		}
		result.Rounds = append(result.Rounds, roundResult)
		l.emit(StepRoundDone, round, fmt.Sprintf("round %d complete, %d fixes applied", round, fixesApplied), len(issues))

		// Early exits: nothing found, or nothing actionable left
		if len(issues) == 0 || len(actionable) == 0 {
			result.Outcome = Converged
			result.Final = current
			l.emit(StepConverged, round, "no actionable issues remain", 0)
			return result, nil
		}
	}

	result.Final = current
	l.emit(StepExhausted, l.cfg.MaxRounds, "round budget exhausted without convergence", 0)
	return result, nil
}

// review invokes all reviewers concurrently and returns their raw texts
// indexed by reviewer position. A failed reviewer contributes empty text;
// the round never aborts because one reviewer failed.
func (l *Loop) review(ctx context.Context, round int, snapshot domain.CodeOutput) []string {
	texts := make([]string, len(l.reviewers))

	g, ctx := errgroup.WithContext(ctx)
	for i, reviewer := range l.reviewers {
		g.Go(func() error {
			l.emit(StepReviewing, round, fmt.Sprintf("%s review running", reviewer.Category), 0)

			prompt, err := l.loader.LoadRaw(reviewer.Template)
			if err != nil {
				l.emit(StepWarning, round, fmt.Sprintf("%s review skipped: %v", reviewer.Category, err), 0)
				return nil
			}

			text, err := reviewer.Agent.Invoke(ctx, invoker.Request{
				TaskPrompt: prompt,
				Files:      snapshot.Files,
			})
			if err != nil {
				l.emit(StepWarning, round, fmt.Sprintf("%s review failed: %v", reviewer.Category, err), 0)
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	g.Wait()

	return texts
}

// fix dispatches up to MaxFixes fixes in extraction order. Each attempt
// is recorded as an Improvement; actionable issues beyond the cap become
// unapplied proposals for later rounds.
func (l *Loop) fix(ctx context.Context, round int, current domain.CodeOutput, actionable []domain.Issue) (domain.CodeOutput, []domain.Improvement, int) {
	var improvements []domain.Improvement
	fixesApplied := 0

	dispatch := actionable
	if len(dispatch) > l.cfg.MaxFixes {
		dispatch = dispatch[:l.cfg.MaxFixes]
	}

	for _, issue := range dispatch {
		prompt, err := l.loader.Execute("fix/issue.md", map[string]string{
			"Severity":    string(issue.Severity),
			"Location":    issue.Location,
			"Description": issue.Description,
		})
		if err != nil {
			l.emit(StepWarning, round, fmt.Sprintf("fix prompt failed: %v", err), 0)
			improvements = append(improvements, fixImprovement(issue, domain.OutcomeFailed))
			continue
		}

		l.emit(StepFixing, round, fmt.Sprintf("fixing %s issue at %s", issue.Severity, issue.Location), 0)
		files, err := l.fixer.ApplyFix(ctx, invoker.Request{
			TaskPrompt: prompt,
			Files:      current.Files,
			Memory:     fmt.Sprintf("This is improvement round %d. Apply only the fix described in the task.", round),
		})
		if err != nil {
			// Keep the previous snapshot, the round continues
			l.emit(StepWarning, round, fmt.Sprintf("fix failed for %s: %v", issue.Location, err), 0)
			improvements = append(improvements, fixImprovement(issue, domain.OutcomeFailed))
			continue
		}

		current = domain.CodeOutput{
			Files:    files,
			Metadata: current.Metadata,
			Elapsed:  current.Elapsed,
		}
		fixesApplied++
		improvements = append(improvements, fixImprovement(issue, domain.OutcomeSuccess))
	}

	// Whatever did not fit into this round's budget is proposed, not applied
	for _, issue := range actionable[len(dispatch):] {
		improvements = append(improvements, domain.Improvement{
			Type:            issue.Category,
			Description:     "fix: " + issue.Description,
			Priority:        issue.Severity.Rank(),
			AutoApplicable:  issue.AutoFixable,
			EstimatedImpact: fmt.Sprintf("resolves a %s issue at %s", issue.Severity, issue.Location),
		})
	}

	return current, improvements, fixesApplied
}

func fixImprovement(issue domain.Issue, outcome domain.ImprovementOutcome) domain.Improvement {
	now := time.Now()
	return domain.Improvement{
		Type:            issue.Category,
		Description:     "fix: " + issue.Description,
		Priority:        issue.Severity.Rank(),
		AutoApplicable:  issue.AutoFixable,
		EstimatedImpact: fmt.Sprintf("resolves a %s issue at %s", issue.Severity, issue.Location),
		Applied:         true,
		AppliedAt:       &now,
		Outcome:         outcome,
	}
}

func (l *Loop) roundResult(task *domain.Task, baseExecutionID string, round int, output domain.CodeOutput, issues []domain.Issue, improvements []domain.Improvement, fixesApplied int) *domain.ExecutionResult {
	out := output.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]string)
	}
	out.Metadata["round"] = fmt.Sprintf("%d", round)
	out.Metadata["fixes_applied"] = fmt.Sprintf("%d", fixesApplied)

	status := domain.ResultSuccess
	if fixesApplied > 0 {
		status = domain.ResultImproved
	}

	return &domain.ExecutionResult{
		TaskID:       task.ID,
		ExecutionID:  domain.RoundID(baseExecutionID, round),
		Backend:      task.Backend,
		Output:       out,
		Issues:       issues,
		Improvements: improvements,
		Status:       status,
	}
}
