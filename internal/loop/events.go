package loop

// Step identifies where in a round an event was emitted
type Step string

const (
	StepGenerating  Step = "generating"
	StepGenerated   Step = "generated"
	StepRoundStart  Step = "round_start"
	StepReviewing   Step = "reviewing"
	StepAggregated  Step = "aggregated"
	StepPrioritized Step = "prioritized"
	StepFixing      Step = "fixing"
	StepRoundDone   Step = "round_complete"
	StepConverged   Step = "converged"
	StepExhausted   Step = "budget_exhausted"
	StepWarning     Step = "warning"
)

// Event is a structured progress report. Warnings are events, never
// errors: a failing reviewer or fixer downgrades to a warning and the
// round continues.
type Event struct {
	Step    Step
	Round   int
	Message string
	Issues  int // issue count where the step has one
}

// EventFunc receives loop progress events
type EventFunc func(Event)

func (l *Loop) emit(step Step, round int, message string, issues int) {
	if l.events == nil {
		return
	}
	l.events(Event{Step: step, Round: round, Message: message, Issues: issues})
}
