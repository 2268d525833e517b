package loop

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/domain"
)

// RoundSource is the slice of the execution ledger the round watcher
// reads.
type RoundSource interface {
	ListExecutions(limit int) ([]*domain.Execution, error)
	ListResults(executionID string) ([]*domain.ExecutionResult, error)
	ListIssues(roundID string) ([]domain.Issue, error)
}

// watchWindow bounds how many recent executions each poll scans
const watchWindow = 20

var roundSuffix = regexp.MustCompile(`_r(\d+)$`)

// WatchRounds polls the ledger and emits one round_complete event per
// newly persisted round, so the API server and the dashboard can follow
// runs happening in other processes. Rounds already present when the
// watcher starts are primed into the seen set and never replayed. Blocks
// until ctx is cancelled.
func WatchRounds(ctx context.Context, source RoundSource, interval time.Duration, emit EventFunc) {
	seen := make(map[string]bool)
	scanRounds(source, seen, nil)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanRounds(source, seen, emit)
		}
	}
}

// scanRounds walks recent executions and emits every round not yet in
// seen. A nil emit marks rounds seen without reporting them.
func scanRounds(source RoundSource, seen map[string]bool, emit EventFunc) {
	execs, err := source.ListExecutions(watchWindow)
	if err != nil {
		return
	}

	for _, exec := range execs {
		results, err := source.ListResults(exec.ID)
		if err != nil {
			continue
		}
		for _, r := range results {
			if seen[r.ExecutionID] {
				continue
			}
			seen[r.ExecutionID] = true
			if emit == nil {
				continue
			}

			issues, err := source.ListIssues(r.ExecutionID)
			if err != nil {
				issues = nil
			}
			emit(Event{
				Step:    StepRoundDone,
				Round:   roundNumber(r.ExecutionID),
				Message: fmt.Sprintf("%s %s (%d files)", r.ExecutionID, r.Status, len(r.Output.Files)),
				Issues:  len(issues),
			})
		}
	}
}

// roundNumber extracts the round from a derived id like exec_a1b2c3d4_r2;
// the seed result carries the bare execution id and reports round 0.
func roundNumber(roundID string) int {
	m := roundSuffix.FindStringSubmatch(roundID)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
