// Package ledger persists executions, tasks, per-round results, issues
// and improvements in SQLite. Records are insert-only except for the
// execution status transition; one round's result, issues and improvements
// are written in a single transaction so readers never observe a result
// without its issues.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/domain"
	_ "modernc.org/sqlite"
)

var roundSuffixRegex = regexp.MustCompile(`_r(\d+)$`)

// Store provides SQLite-backed execution persistence
type Store struct {
	db *sql.DB

	// Per-execution write locks; interleaved partial writes would break
	// the atomic-visibility contract for round saves.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) executionLock(executionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[executionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[executionID] = lock
	}
	return lock
}

// CreateExecution inserts a new execution in running state
func (s *Store) CreateExecution(exec *domain.Execution) error {
	_, err := s.db.Exec(`
		INSERT INTO executions (id, request, status, created_at)
		VALUES (?, ?, ?, ?)
	`, exec.ID, exec.Request, string(exec.Status), exec.CreatedAt)
	return err
}

// UpdateExecutionStatus moves an execution from running to a terminal
// status. The transition happens exactly once; updating an execution that
// already reached a terminal status is an error.
func (s *Store) UpdateExecutionStatus(id string, status domain.ExecutionStatus) error {
	lock := s.executionLock(id)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.db.Exec(`
		UPDATE executions SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(status), time.Now(), id, string(domain.ExecutionRunning))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("execution %s is not running, status is terminal", id)
	}
	return nil
}

// GetExecution retrieves an execution by id
func (s *Store) GetExecution(id string) (*domain.Execution, error) {
	row := s.db.QueryRow(`
		SELECT id, request, status, created_at, completed_at
		FROM executions WHERE id = ?
	`, id)

	var exec domain.Execution
	var status string
	var completedAt sql.NullTime
	if err := row.Scan(&exec.ID, &exec.Request, &status, &exec.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	exec.Status = domain.ExecutionStatus(status)
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return &exec, nil
}

// ListExecutions returns the most recent executions, newest first
func (s *Store) ListExecutions(limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, request, status, created_at, completed_at
		FROM executions ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		var exec domain.Execution
		var status string
		var completedAt sql.NullTime
		if err := rows.Scan(&exec.ID, &exec.Request, &status, &exec.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		exec.Status = domain.ExecutionStatus(status)
		if completedAt.Valid {
			exec.CompletedAt = &completedAt.Time
		}
		execs = append(execs, &exec)
	}
	return execs, rows.Err()
}

// CreateTask inserts a task. Tasks are immutable once created.
func (s *Store) CreateTask(task *domain.Task) error {
	depsJSON, err := json.Marshal(task.DependsOn)
	if err != nil {
		return err
	}
	ctxJSON, err := json.Marshal(task.Context)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (id, execution_id, description, type, backend, depends_on, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.ExecutionID, task.Description, string(task.Type), task.Backend,
		string(depsJSON), string(ctxJSON), task.CreatedAt)
	return err
}

// GetTask retrieves a task by id
func (s *Store) GetTask(id string) (*domain.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, execution_id, description, type, backend, depends_on, context, created_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListTasks returns the tasks belonging to an execution
func (s *Store) ListTasks(executionID string) ([]*domain.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, execution_id, description, type, backend, depends_on, context, created_at
		FROM tasks WHERE execution_id = ? ORDER BY created_at
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SaveRound persists one round's result together with its issues and
// improvements in a single transaction
func (s *Store) SaveRound(result *domain.ExecutionResult) error {
	executionID, round := splitRoundID(result.ExecutionID)

	lock := s.executionLock(executionID)
	lock.Lock()
	defer lock.Unlock()

	filesJSON, err := json.Marshal(result.Output.Files)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(result.Output.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO results (round_id, execution_id, task_id, round, backend, status, files, metadata, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.ExecutionID, executionID, result.TaskID, round, result.Backend,
		string(result.Status), string(filesJSON), string(metaJSON),
		result.Output.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("inserting result %s: %w", result.ExecutionID, err)
	}

	for _, issue := range result.Issues {
		_, err = tx.Exec(`
			INSERT INTO issues (round_id, severity, category, location, description, auto_fixable, confidence, suggestion)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, result.ExecutionID, string(issue.Severity), issue.Category, issue.Location,
			issue.Description, issue.AutoFixable, issue.Confidence, issue.Suggestion)
		if err != nil {
			return fmt.Errorf("inserting issue: %w", err)
		}
	}

	for _, imp := range result.Improvements {
		var appliedAt interface{}
		if imp.AppliedAt != nil {
			appliedAt = *imp.AppliedAt
		}
		_, err = tx.Exec(`
			INSERT INTO improvements (round_id, type, description, priority, auto_applicable, estimated_impact, applied, applied_at, outcome)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, result.ExecutionID, imp.Type, imp.Description, imp.Priority,
			imp.AutoApplicable, imp.EstimatedImpact, imp.Applied, appliedAt, string(imp.Outcome))
		if err != nil {
			return fmt.Errorf("inserting improvement: %w", err)
		}
	}

	return tx.Commit()
}

// ListResults returns all round results for an execution, in round order
func (s *Store) ListResults(executionID string) ([]*domain.ExecutionResult, error) {
	rows, err := s.db.Query(`
		SELECT round_id, task_id, backend, status, files, metadata, elapsed_ms
		FROM results WHERE execution_id = ? ORDER BY round
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ExecutionResult
	for rows.Next() {
		var result domain.ExecutionResult
		var status, filesJSON, metaJSON string
		var elapsedMS int64
		if err := rows.Scan(&result.ExecutionID, &result.TaskID, &result.Backend,
			&status, &filesJSON, &metaJSON, &elapsedMS); err != nil {
			return nil, err
		}
		result.Status = domain.ResultStatus(status)
		result.Output.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if err := json.Unmarshal([]byte(filesJSON), &result.Output.Files); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaJSON), &result.Output.Metadata); err != nil {
			return nil, err
		}
		results = append(results, &result)
	}
	return results, rows.Err()
}

// ListIssues returns the issues recorded for one round
func (s *Store) ListIssues(roundID string) ([]domain.Issue, error) {
	rows, err := s.db.Query(`
		SELECT severity, category, location, description, auto_fixable, confidence, suggestion
		FROM issues WHERE round_id = ? ORDER BY id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		var issue domain.Issue
		var severity string
		if err := rows.Scan(&severity, &issue.Category, &issue.Location,
			&issue.Description, &issue.AutoFixable, &issue.Confidence, &issue.Suggestion); err != nil {
			return nil, err
		}
		issue.Severity = domain.Severity(severity)
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// ListImprovements returns the improvements recorded for one round
func (s *Store) ListImprovements(roundID string) ([]domain.Improvement, error) {
	rows, err := s.db.Query(`
		SELECT type, description, priority, auto_applicable, estimated_impact, applied, applied_at, outcome
		FROM improvements WHERE round_id = ? ORDER BY id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var imps []domain.Improvement
	for rows.Next() {
		var imp domain.Improvement
		var appliedAt sql.NullTime
		var outcome string
		if err := rows.Scan(&imp.Type, &imp.Description, &imp.Priority,
			&imp.AutoApplicable, &imp.EstimatedImpact, &imp.Applied, &appliedAt, &outcome); err != nil {
			return nil, err
		}
		if appliedAt.Valid {
			imp.AppliedAt = &appliedAt.Time
		}
		imp.Outcome = domain.ImprovementOutcome(outcome)
		imps = append(imps, imp)
	}
	return imps, rows.Err()
}

// splitRoundID separates a round id like exec_a1b2c3d4_r2 into the owning
// execution id and the round number. An id without a round suffix is
// round zero of itself.
func splitRoundID(roundID string) (string, int) {
	matches := roundSuffixRegex.FindStringSubmatchIndex(roundID)
	if matches == nil {
		return roundID, 0
	}
	round, _ := strconv.Atoi(roundID[matches[2]:matches[3]])
	return roundID[:matches[0]], round
}

func scanTask(row *sql.Row) (*domain.Task, error) {
	var task domain.Task
	var taskType, depsJSON, ctxJSON string
	err := row.Scan(&task.ID, &task.ExecutionID, &task.Description, &taskType,
		&task.Backend, &depsJSON, &ctxJSON, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	return finishTask(&task, taskType, depsJSON, ctxJSON)
}

func scanTaskRows(rows *sql.Rows) (*domain.Task, error) {
	var task domain.Task
	var taskType, depsJSON, ctxJSON string
	err := rows.Scan(&task.ID, &task.ExecutionID, &task.Description, &taskType,
		&task.Backend, &depsJSON, &ctxJSON, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	return finishTask(&task, taskType, depsJSON, ctxJSON)
}

func finishTask(task *domain.Task, taskType, depsJSON, ctxJSON string) (*domain.Task, error) {
	task.Type = domain.TaskType(taskType)
	if depsJSON != "" && depsJSON != "null" {
		if err := json.Unmarshal([]byte(depsJSON), &task.DependsOn); err != nil {
			return nil, err
		}
	}
	if ctxJSON != "" && ctxJSON != "null" {
		if err := json.Unmarshal([]byte(ctxJSON), &task.Context); err != nil {
			return nil, err
		}
	}
	return task, nil
}
