package loop

import (
	"errors"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/domain"
)

type fakeRoundSource struct {
	executions []*domain.Execution
	results    map[string][]*domain.ExecutionResult
	issues     map[string][]domain.Issue
	listErr    error
}

func (f *fakeRoundSource) ListExecutions(limit int) ([]*domain.Execution, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.executions, nil
}

func (f *fakeRoundSource) ListResults(executionID string) ([]*domain.ExecutionResult, error) {
	return f.results[executionID], nil
}

func (f *fakeRoundSource) ListIssues(roundID string) ([]domain.Issue, error) {
	return f.issues[roundID], nil
}

func (f *fakeRoundSource) addRound(executionID, roundID string, issues int) {
	f.results[executionID] = append(f.results[executionID], &domain.ExecutionResult{
		ExecutionID: roundID,
		Status:      domain.ResultImproved,
		Output:      domain.CodeOutput{Files: map[string]string{"main.go": "package main"}},
	})
	for i := 0; i < issues; i++ {
		f.issues[roundID] = append(f.issues[roundID], domain.Issue{Severity: domain.SeverityHigh})
	}
}

func newFakeRoundSource() *fakeRoundSource {
	return &fakeRoundSource{
		results: make(map[string][]*domain.ExecutionResult),
		issues:  make(map[string][]domain.Issue),
	}
}

func TestScanRoundsEmitsOnlyNewRounds(t *testing.T) {
	source := newFakeRoundSource()
	source.executions = []*domain.Execution{{ID: "exec_a1b2c3d4", Status: domain.ExecutionRunning, CreatedAt: time.Now()}}
	source.addRound("exec_a1b2c3d4", "exec_a1b2c3d4", 0) // seed result

	seen := make(map[string]bool)

	// Priming pass: existing rounds are recorded, not replayed
	scanRounds(source, seen, nil)
	if !seen["exec_a1b2c3d4"] {
		t.Fatal("priming pass should mark existing rounds seen")
	}

	var events []Event
	collect := func(e Event) { events = append(events, e) }

	scanRounds(source, seen, collect)
	if len(events) != 0 {
		t.Fatalf("no new rounds, expected no events, got %d", len(events))
	}

	source.addRound("exec_a1b2c3d4", "exec_a1b2c3d4_r1", 2)
	scanRounds(source, seen, collect)
	if len(events) != 1 {
		t.Fatalf("expected 1 event for the new round, got %d", len(events))
	}
	if events[0].Step != StepRoundDone {
		t.Errorf("expected %s, got %s", StepRoundDone, events[0].Step)
	}
	if events[0].Round != 1 {
		t.Errorf("expected round 1, got %d", events[0].Round)
	}
	if events[0].Issues != 2 {
		t.Errorf("expected 2 issues, got %d", events[0].Issues)
	}

	// A rescan never re-emits
	scanRounds(source, seen, collect)
	if len(events) != 1 {
		t.Fatalf("rescan re-emitted: %d events", len(events))
	}
}

func TestScanRoundsToleratesLedgerErrors(t *testing.T) {
	source := newFakeRoundSource()
	source.listErr = errors.New("database is locked")

	scanRounds(source, make(map[string]bool), func(e Event) {
		t.Errorf("unexpected event %v", e)
	})
}

func TestRoundNumber(t *testing.T) {
	cases := []struct {
		id   string
		want int
	}{
		{"exec_a1b2c3d4_r1", 1},
		{"exec_a1b2c3d4_r12", 12},
		{"exec_a1b2c3d4", 0},
		{"exec_r2d2beef", 0},
	}
	for _, tc := range cases {
		if got := roundNumber(tc.id); got != tc.want {
			t.Errorf("roundNumber(%q) = %d, want %d", tc.id, got, tc.want)
		}
	}
}
