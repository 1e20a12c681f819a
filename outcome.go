package booklib

import "time"

// Status represents the state of a refresh unit
type Status string

const (
	// StatusPending indicates the unit has not started yet
	StatusPending Status = "PENDING"
	// StatusRunning indicates the unit holds a permit and is executing
	StatusRunning Status = "RUNNING"
	// StatusSuccess indicates the unit completed and was recorded in the ledger
	StatusSuccess Status = "SUCCESS"
	// StatusSkipped indicates the unit was already completed today
	StatusSkipped Status = "SKIPPED"
	// StatusFailed indicates the unit failed after exhausting retries
	StatusFailed Status = "FAILED"
)

// ReasonAlreadyCompleted is the skip reason recorded when the ledger reports
// a unit as completed today.
const ReasonAlreadyCompleted = "already_completed"

// validStatusTransitions defines valid state transitions for a refresh unit.
// Terminal states have no outgoing transitions.
var validStatusTransitions = map[Status][]Status{
	StatusPending: {
		StatusSkipped,
		StatusRunning,
	},
	StatusRunning: {
		StatusSuccess,
		StatusFailed,
	},
	StatusSuccess: {},
	StatusSkipped: {},
	StatusFailed:  {},
}

// IsTerminal returns true if the status is terminal.
func (s Status) IsTerminal() bool {
	transitions, ok := validStatusTransitions[s]
	return ok && len(transitions) == 0
}

// CanTransition returns true if a transition from s to target is valid.
func (s Status) CanTransition(target Status) bool {
	for _, t := range validStatusTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Outcome is the immutable terminal result of one refresh unit.
type Outcome struct {
	// TaskID is the task key derived for this unit.
	TaskID string
	// TaskType is the task type the unit was derived from.
	TaskType string
	// Status is the terminal status of the unit.
	Status Status
	// Reason explains a skip (empty otherwise).
	Reason string
	// BookID is set for per-book units.
	BookID int64
	// Title is the book title returned by the catalog, when available.
	Title string
	// Payload is the raw response body of a successful remote call.
	Payload []byte
	// Duration is the wall-clock time of the remote call, permit held.
	Duration time.Duration
	// Err holds the failure for StatusFailed outcomes.
	Err error
}

// Summary aggregates the outcomes of one batch.
type Summary struct {
	// Succeeded is the number of units that completed successfully.
	Succeeded int
	// Skipped is the number of units skipped by the idempotency ledger.
	Skipped int
	// Failed is the number of units that failed after retries.
	Failed int
	// Outcomes holds every unit outcome in input order.
	Outcomes []Outcome
}

// Summarize aggregates outcomes into a Summary. The outcome slice is kept
// as-is, so input ordering is preserved.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Total returns the number of units in the batch.
func (s Summary) Total() int {
	return len(s.Outcomes)
}
