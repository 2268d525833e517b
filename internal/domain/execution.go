package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Execution is the top-level record for one user request
type Execution struct {
	ID          string
	Request     string
	Status      ExecutionStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Task is a unit of work produced by decomposition, immutable once created
type Task struct {
	ID          string
	ExecutionID string
	Description string
	Type        TaskType
	Backend     string
	DependsOn   []string
	Context     map[string]string
	CreatedAt   time.Time
}

// NewExecutionID returns an id of the form exec_<8-hex>
func NewExecutionID() string {
	return "exec_" + shortHex()
}

// NewTaskID returns an id of the form task_<8-hex>
func NewTaskID() string {
	return "task_" + shortHex()
}

// RoundID derives the execution id for round n, e.g. exec_a1b2c3d4_r2
func RoundID(base string, round int) string {
	return fmt.Sprintf("%s_r%d", base, round)
}

func shortHex() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
