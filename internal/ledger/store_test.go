package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedExecution(t *testing.T, store *Store) (*domain.Execution, *domain.Task) {
	t.Helper()
	exec := &domain.Execution{
		ID:        domain.NewExecutionID(),
		Request:   "write a csv parser",
		Status:    domain.ExecutionRunning,
		CreatedAt: time.Now(),
	}
	if err := store.CreateExecution(exec); err != nil {
		t.Fatalf("failed to create execution: %v", err)
	}

	task := &domain.Task{
		ID:          domain.NewTaskID(),
		ExecutionID: exec.ID,
		Description: "write a csv parser",
		Type:        domain.TaskCodeGeneration,
		Backend:     "claude-code",
		Context:     map[string]string{"request": "write a csv parser"},
		CreatedAt:   time.Now(),
	}
	if err := store.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return exec, task
}

func TestExecutionRoundTrip(t *testing.T) {
	store := testStore(t)
	exec, _ := seedExecution(t, store)

	got, err := store.GetExecution(exec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Request != exec.Request {
		t.Errorf("expected request %q, got %q", exec.Request, got.Request)
	}
	if got.Status != domain.ExecutionRunning {
		t.Errorf("expected running, got %s", got.Status)
	}
	if got.CompletedAt != nil {
		t.Error("expected nil completed_at for running execution")
	}
}

func TestStatusTransitionExactlyOnce(t *testing.T) {
	store := testStore(t)
	exec, _ := seedExecution(t, store)

	if err := store.UpdateExecutionStatus(exec.ID, domain.ExecutionCompleted); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	got, _ := store.GetExecution(exec.ID)
	if got.Status != domain.ExecutionCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	// A second transition must fail: terminal statuses are final
	err := store.UpdateExecutionStatus(exec.ID, domain.ExecutionFailed)
	if err == nil {
		t.Fatal("expected second transition to fail")
	}
	if !strings.Contains(err.Error(), "terminal") {
		t.Errorf("unexpected error: %v", err)
	}

	got, _ = store.GetExecution(exec.ID)
	if got.Status != domain.ExecutionCompleted {
		t.Errorf("status changed after terminal transition: %s", got.Status)
	}
}

func TestSaveRoundPersistsIssuesAndImprovements(t *testing.T) {
	store := testStore(t)
	exec, task := seedExecution(t, store)

	now := time.Now()
	result := &domain.ExecutionResult{
		TaskID:      task.ID,
		ExecutionID: domain.RoundID(exec.ID, 1),
		Backend:     "claude-code",
		Output: domain.CodeOutput{
			Files:    map[string]string{"parser.py": "pass"},
			Metadata: map[string]string{"round": "1", "fixes_applied": "1"},
			Elapsed:  4 * time.Second,
		},
		Issues: []domain.Issue{
			{
				Severity:    domain.SeverityHigh,
				Category:    "security",
				Location:    "parser.py:10",
				Description: "unvalidated input reaches eval",
				AutoFixable: true,
				Confidence:  0.8,
			},
			{
				Severity:    domain.SeverityLow,
				Category:    "general",
				Description: "variable name shadows builtin",
				Confidence:  0.8,
			},
		},
		Improvements: []domain.Improvement{
			{
				Type:        "fix",
				Description: "unvalidated input reaches eval",
				Priority:    1,
				Applied:     true,
				AppliedAt:   &now,
				Outcome:     domain.OutcomeSuccess,
			},
		},
		Status: domain.ResultImproved,
	}
	if err := store.SaveRound(result); err != nil {
		t.Fatalf("save round failed: %v", err)
	}

	results, err := store.ListResults(exec.ID)
	if err != nil {
		t.Fatalf("list results failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.ExecutionID != domain.RoundID(exec.ID, 1) {
		t.Errorf("unexpected round id %s", got.ExecutionID)
	}
	if got.Status != domain.ResultImproved {
		t.Errorf("expected improved, got %s", got.Status)
	}
	if got.Output.Files["parser.py"] != "pass" {
		t.Errorf("files not round-tripped: %v", got.Output.Files)
	}
	if got.Output.Elapsed != 4*time.Second {
		t.Errorf("elapsed not round-tripped: %s", got.Output.Elapsed)
	}

	issues, err := store.ListIssues(got.ExecutionID)
	if err != nil {
		t.Fatalf("list issues failed: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Severity != domain.SeverityHigh || !issues[0].AutoFixable {
		t.Errorf("issue not round-tripped: %+v", issues[0])
	}

	imps, err := store.ListImprovements(got.ExecutionID)
	if err != nil {
		t.Fatalf("list improvements failed: %v", err)
	}
	if len(imps) != 1 {
		t.Fatalf("expected 1 improvement, got %d", len(imps))
	}
	if !imps[0].Applied || imps[0].Outcome != domain.OutcomeSuccess {
		t.Errorf("improvement not round-tripped: %+v", imps[0])
	}
	if imps[0].AppliedAt == nil {
		t.Error("expected applied_at to survive")
	}
}

func TestSaveRoundDuplicateFails(t *testing.T) {
	store := testStore(t)
	exec, task := seedExecution(t, store)

	result := &domain.ExecutionResult{
		TaskID:      task.ID,
		ExecutionID: domain.RoundID(exec.ID, 1),
		Backend:     "claude-code",
		Status:      domain.ResultSuccess,
	}
	if err := store.SaveRound(result); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.SaveRound(result); err == nil {
		t.Fatal("expected duplicate round id to fail")
	}

	// The failed save must not leave partial rows behind
	results, _ := store.ListResults(exec.ID)
	if len(results) != 1 {
		t.Fatalf("expected 1 result after duplicate save, got %d", len(results))
	}
}

func TestListResultsOrderedByRound(t *testing.T) {
	store := testStore(t)
	exec, task := seedExecution(t, store)

	// Seed result (round 0) then two improvement rounds out of order
	for _, round := range []int{0, 2, 1} {
		id := exec.ID
		if round > 0 {
			id = domain.RoundID(exec.ID, round)
		}
		result := &domain.ExecutionResult{
			TaskID:      task.ID,
			ExecutionID: id,
			Backend:     "claude-code",
			Status:      domain.ResultSuccess,
		}
		if err := store.SaveRound(result); err != nil {
			t.Fatalf("save round %d failed: %v", round, err)
		}
	}

	results, err := store.ListResults(exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{exec.ID, domain.RoundID(exec.ID, 1), domain.RoundID(exec.ID, 2)}
	for i, result := range results {
		if result.ExecutionID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], result.ExecutionID)
		}
	}
}

func TestTaskRoundTrip(t *testing.T) {
	store := testStore(t)
	_, task := seedExecution(t, store)

	got, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("get task failed: %v", err)
	}
	if got.Type != domain.TaskCodeGeneration {
		t.Errorf("expected code_generation, got %s", got.Type)
	}
	if got.Context["request"] != "write a csv parser" {
		t.Errorf("context not round-tripped: %v", got.Context)
	}
}

func TestSplitRoundID(t *testing.T) {
	tests := []struct {
		in    string
		id    string
		round int
	}{
		{"exec_a1b2c3d4", "exec_a1b2c3d4", 0},
		{"exec_a1b2c3d4_r1", "exec_a1b2c3d4", 1},
		{"exec_a1b2c3d4_r12", "exec_a1b2c3d4", 12},
	}
	for _, tt := range tests {
		id, round := splitRoundID(tt.in)
		if id != tt.id || round != tt.round {
			t.Errorf("splitRoundID(%q) = (%q, %d), want (%q, %d)",
				tt.in, id, round, tt.id, tt.round)
		}
	}
}
