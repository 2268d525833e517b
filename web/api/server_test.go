package api

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/domain"
)

type fakeStore struct {
	executions map[string]*domain.Execution
	results    map[string][]*domain.ExecutionResult
	issues     map[string][]domain.Issue
}

func (f *fakeStore) ListExecutions(limit int) ([]*domain.Execution, error) {
	out := make([]*domain.Execution, 0, len(f.executions))
	for _, e := range f.executions {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) GetExecution(id string) (*domain.Execution, error) {
	e, ok := f.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	return e, nil
}

func (f *fakeStore) ListResults(executionID string) ([]*domain.ExecutionResult, error) {
	return f.results[executionID], nil
}

func (f *fakeStore) ListIssues(roundID string) ([]domain.Issue, error) {
	return f.issues[roundID], nil
}

func (f *fakeStore) ListImprovements(roundID string) ([]domain.Improvement, error) {
	return nil, nil
}

func newFakeStore() *fakeStore {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &fakeStore{
		executions: map[string]*domain.Execution{
			"exec_a1b2c3d4": {
				ID:        "exec_a1b2c3d4",
				Request:   "implement a rate limiter",
				Status:    domain.ExecutionCompleted,
				CreatedAt: created,
			},
		},
		results: map[string][]*domain.ExecutionResult{
			"exec_a1b2c3d4": {
				{
					TaskID:      "task_11112222",
					ExecutionID: "exec_a1b2c3d4_r1",
					Backend:     "claude-code",
					Output: domain.CodeOutput{
						Files:   map[string]string{"limiter.py": "pass"},
						Elapsed: 3 * time.Second,
					},
					Status: domain.ResultImproved,
				},
			},
		},
		issues: map[string][]domain.Issue{
			"exec_a1b2c3d4_r1": {
				{
					Severity:    domain.SeverityHigh,
					Category:    "security",
					Location:    "limiter.py:3",
					Description: "token bucket state is not locked",
					AutoFixable: true,
					Confidence:  0.8,
				},
			},
		},
	}
}

func TestListExecutions(t *testing.T) {
	server := NewServer(newFakeStore(), ":0")

	req := httptest.NewRequest("GET", "/api/executions", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []ExecutionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(resp))
	}
	if resp[0].ID != "exec_a1b2c3d4" {
		t.Errorf("expected exec_a1b2c3d4, got %s", resp[0].ID)
	}
	if resp[0].Status != "completed" {
		t.Errorf("expected completed, got %s", resp[0].Status)
	}
}

func TestGetExecution(t *testing.T) {
	server := NewServer(newFakeStore(), ":0")

	req := httptest.NewRequest("GET", "/api/executions/exec_a1b2c3d4", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp ExecutionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Request != "implement a rate limiter" {
		t.Errorf("unexpected request: %s", resp.Request)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	server := NewServer(newFakeStore(), ":0")

	req := httptest.NewRequest("GET", "/api/executions/exec_deadbeef", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListResultsWithIssues(t *testing.T) {
	server := NewServer(newFakeStore(), ":0")

	req := httptest.NewRequest("GET", "/api/executions/exec_a1b2c3d4/results", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp []ResultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp))
	}
	if resp[0].RoundID != "exec_a1b2c3d4_r1" {
		t.Errorf("unexpected round id: %s", resp[0].RoundID)
	}
	if len(resp[0].Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(resp[0].Issues))
	}
	if resp[0].Issues[0].Severity != "high" {
		t.Errorf("expected high severity, got %s", resp[0].Issues[0].Severity)
	}
	if resp[0].ElapsedMS != 3000 {
		t.Errorf("expected 3000ms elapsed, got %d", resp[0].ElapsedMS)
	}
}
