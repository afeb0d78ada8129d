package bulkop

import (
	"slices"
	"time"
)

// Result is the aggregated outcome of a finished bulk operation.
// SuccessfulCount + FailedCount always equals the number of targets.
type Result struct {
	OperationID     string        `json:"operation_id"`
	ActorID         string        `json:"actor_id"`
	Kind            Kind          `json:"kind"`
	State           Phase         `json:"state"`
	Successful      []string      `json:"successful"`
	Failed          []ItemFailure `json:"failed"`
	SuccessfulCount int           `json:"successful_count"`
	FailedCount     int           `json:"failed_count"`
	SuccessRate     float64       `json:"success_rate"`
	Interruption    ErrorKind     `json:"interruption,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// NewResult builds the result of a terminal state.
func NewResult(operationID string, kind Kind, s State, startedAt, finishedAt time.Time) Result {
	successful := slices.Clone(s.Successful)
	if successful == nil {
		successful = []string{}
	}
	failed := slices.Clone(s.Failed)
	if failed == nil {
		failed = []ItemFailure{}
	}
	return Result{
		OperationID:     operationID,
		Kind:            kind,
		State:           s.Phase,
		Successful:      successful,
		Failed:          failed,
		SuccessfulCount: len(successful),
		FailedCount:     len(failed),
		SuccessRate:     SuccessRate(len(successful), s.Total),
		Interruption:    s.Interruption,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
	}
}

// SuccessRate returns successful/total as a percentage. total is never zero
// for an accepted request; zero yields zero.
func SuccessRate(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

// FailuresByReason counts failures per error kind.
func (r Result) FailuresByReason() map[ErrorKind]int {
	out := make(map[ErrorKind]int)
	for _, f := range r.Failed {
		out[f.Reason]++
	}
	return out
}

// Progress is a point-in-time view of a running or finished operation.
type Progress struct {
	OperationID string        `json:"operation_id"`
	ActorID     string        `json:"actor_id"`
	Kind        Kind          `json:"kind"`
	State       Phase         `json:"state"`
	Completed   int           `json:"completed"`
	Total       int           `json:"total"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Errors      []ItemFailure `json:"errors"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// NewProgress builds a progress view of s.
func NewProgress(operationID string, kind Kind, s State, startedAt time.Time, finishedAt *time.Time) Progress {
	errs := slices.Clone(s.Failed)
	if errs == nil {
		errs = []ItemFailure{}
	}
	return Progress{
		OperationID: operationID,
		Kind:        kind,
		State:       s.Phase,
		Completed:   s.Resolved(),
		Total:       s.Total,
		Successful:  len(s.Successful),
		Failed:      len(s.Failed),
		Errors:      errs,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
}

// Percent returns the completion percentage.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}
