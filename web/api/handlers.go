package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/hochfrequenz/claude-refine/internal/domain"
)

// ExecutionResponse is the API response for an execution
type ExecutionResponse struct {
	ID          string  `json:"id"`
	Request     string  `json:"request"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// ResultResponse is the API response for one round's result
type ResultResponse struct {
	RoundID      string                `json:"round_id"`
	TaskID       string                `json:"task_id"`
	Backend      string                `json:"backend"`
	Status       string                `json:"status"`
	Files        []string              `json:"files"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	ElapsedMS    int64                 `json:"elapsed_ms"`
	Issues       []IssueResponse       `json:"issues"`
	Improvements []ImprovementResponse `json:"improvements"`
}

// IssueResponse is the API response for one issue
type IssueResponse struct {
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	AutoFixable bool    `json:"auto_fixable"`
	Confidence  float64 `json:"confidence"`
}

// ImprovementResponse is the API response for one improvement
type ImprovementResponse struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Applied     bool   `json:"applied"`
	Outcome     string `json:"outcome,omitempty"`
}

func executionToResponse(e *domain.Execution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:        e.ID,
		Request:   e.Request,
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.CompletedAt != nil {
		t := e.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &t
	}
	return resp
}

func (s *Server) resultToResponse(r *domain.ExecutionResult) ResultResponse {
	files := make([]string, 0, len(r.Output.Files))
	for name := range r.Output.Files {
		files = append(files, name)
	}

	resp := ResultResponse{
		RoundID:      r.ExecutionID,
		TaskID:       r.TaskID,
		Backend:      r.Backend,
		Status:       string(r.Status),
		Files:        files,
		Metadata:     r.Output.Metadata,
		ElapsedMS:    r.Output.Elapsed.Milliseconds(),
		Issues:       []IssueResponse{},
		Improvements: []ImprovementResponse{},
	}

	issues, err := s.store.ListIssues(r.ExecutionID)
	if err == nil {
		for _, issue := range issues {
			resp.Issues = append(resp.Issues, IssueResponse{
				Severity:    string(issue.Severity),
				Category:    issue.Category,
				Location:    issue.Location,
				Description: issue.Description,
				AutoFixable: issue.AutoFixable,
				Confidence:  issue.Confidence,
			})
		}
	}

	imps, err := s.store.ListImprovements(r.ExecutionID)
	if err == nil {
		for _, imp := range imps {
			resp.Improvements = append(resp.Improvements, ImprovementResponse{
				Type:        imp.Type,
				Description: imp.Description,
				Priority:    imp.Priority,
				Applied:     imp.Applied,
				Outcome:     string(imp.Outcome),
			})
		}
	}

	return resp
}

func (s *Server) listExecutionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		execs, err := s.store.ListExecutions(50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make([]ExecutionResponse, 0, len(execs))
		for _, e := range execs {
			resp = append(resp, executionToResponse(e))
		}
		writeJSON(w, resp)
	}
}

// executionHandler serves /api/executions/{id} and
// /api/executions/{id}/results
func (s *Server) executionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/executions/")
		parts := strings.Split(rest, "/")

		id := parts[0]
		if id == "" {
			writeError(w, http.StatusBadRequest, "execution id required")
			return
		}

		if len(parts) > 1 && parts[1] == "results" {
			results, err := s.store.ListResults(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp := make([]ResultResponse, 0, len(results))
			for _, result := range results {
				resp = append(resp, s.resultToResponse(result))
			}
			writeJSON(w, resp)
			return
		}

		exec, err := s.store.GetExecution(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		writeJSON(w, executionToResponse(exec))
	}
}
