package domain

import "strings"

// ExecutionStatus represents the lifecycle state of a top-level execution
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal returns true if the status admits no further transitions
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// ResultStatus represents the outcome of a single round
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultImproved ResultStatus = "improved"
	ResultFailed   ResultStatus = "failed"
)

// TaskType represents the kind of work a task asks for
type TaskType string

const (
	TaskCodeGeneration TaskType = "code_generation"
)

// Severity represents issue urgency, ordered critical > high > medium > low > info
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// ParseSeverity converts a string to a Severity, case-insensitively.
// Returns false if the string is not a recognized severity token.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	_, ok := severityRank[sev]
	return sev, ok
}

// Rank returns a numeric urgency, higher is more urgent
func (s Severity) Rank() int {
	return severityRank[s]
}

// Actionable returns true if the severity warrants a fix dispatch
func (s Severity) Actionable() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// ImprovementOutcome records what became of an applied improvement
type ImprovementOutcome string

const (
	OutcomeSuccess  ImprovementOutcome = "success"
	OutcomeFailed   ImprovementOutcome = "failed"
	OutcomeRejected ImprovementOutcome = "rejected"
)
