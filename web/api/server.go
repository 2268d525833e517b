// Package api serves execution status over HTTP, with SSE and websocket
// streams for live loop events.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/hochfrequenz/claude-refine/internal/domain"
	"github.com/hochfrequenz/claude-refine/internal/loop"
)

// Store is the read side of the execution ledger the server needs
type Store interface {
	ListExecutions(limit int) ([]*domain.Execution, error)
	GetExecution(id string) (*domain.Execution, error)
	ListResults(executionID string) ([]*domain.ExecutionResult, error)
	ListIssues(roundID string) ([]domain.Issue, error)
	ListImprovements(roundID string) ([]domain.Improvement, error)
}

// Server is the HTTP API server
type Server struct {
	store  Store
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub
	wsHub  *WSHub
}

// NewServer creates a new API server
func NewServer(store Store, addr string) *Server {
	s := &Server{
		store:  store,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
		wsHub:  NewWSHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/executions", s.listExecutionsHandler())
	s.mux.HandleFunc("/api/executions/", s.executionHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/events/ws", s.wsHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the underlying mux, for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Publish forwards a loop event to all SSE and websocket clients
func (s *Server) Publish(event loop.Event) {
	s.sseHub.Broadcast(SSEEvent{Type: string(event.Step), Data: event})
	s.wsHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
