package domain

import "time"

// MaxDescriptionLen bounds issue descriptions extracted from free text
const MaxDescriptionLen = 200

// CodeOutput is a named-file artifact produced by a backend.
// Rounds replace outputs wholesale rather than mutating them, so earlier
// rounds remain inspectable.
type CodeOutput struct {
	Files    map[string]string
	Metadata map[string]string
	Elapsed  time.Duration
}

// Clone returns a deep copy suitable for the next round's working snapshot
func (o CodeOutput) Clone() CodeOutput {
	files := make(map[string]string, len(o.Files))
	for k, v := range o.Files {
		files[k] = v
	}
	meta := make(map[string]string, len(o.Metadata))
	for k, v := range o.Metadata {
		meta[k] = v
	}
	return CodeOutput{Files: files, Metadata: meta, Elapsed: o.Elapsed}
}

// Issue is a single finding extracted from a reviewer's response.
// Issues are recomputed from scratch each round, never diffed.
type Issue struct {
	Severity    Severity
	Category    string
	Location    string
	Description string
	AutoFixable bool
	Confidence  float64
	Suggestion  string
}

// Improvement is a proposed follow-on action, tracked independently of
// the Issues that motivated it.
type Improvement struct {
	Type            string
	Description     string
	Priority        int
	AutoApplicable  bool
	EstimatedImpact string
	Applied         bool
	AppliedAt       *time.Time
	Outcome         ImprovementOutcome
}

// ExecutionResult ties one round's artifact, issues and improvements
// together. ExecutionID is unique per round (see RoundID).
type ExecutionResult struct {
	TaskID       string
	ExecutionID  string
	Backend      string
	Output       CodeOutput
	Issues       []Issue
	Improvements []Improvement
	Status       ResultStatus
}
