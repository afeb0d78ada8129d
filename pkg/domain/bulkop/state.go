package bulkop

import (
	"fmt"
	"slices"
)

// Phase is the lifecycle phase of a bulk operation.
type Phase string

const (
	PhaseValidating  Phase = "validating"
	PhaseDispatching Phase = "dispatching"
	PhaseAggregating Phase = "aggregating"
	PhaseCompleted   Phase = "completed"
	PhaseCancelled   Phase = "cancelled"
)

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal reports whether no further event is accepted.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// ItemFailure records why a single target failed.
type ItemFailure struct {
	UserID string    `json:"user_id"`
	Reason ErrorKind `json:"reason"`
}

// State is the value-typed execution state of one bulk operation.
// It only changes through Reduce. Slices are never appended in place, so a
// State handed out as a snapshot stays valid after later reductions.
type State struct {
	Phase           Phase
	Total           int
	Dispatched      int
	Abandoned       int
	Successful      []string
	Failed          []ItemFailure
	CancelRequested bool
	// Interruption is set when dispatch stopped early for a reason other
	// than cancellation.
	Interruption ErrorKind
}

// NewState returns the initial state.
func NewState() State {
	return State{Phase: PhaseValidating}
}

// Resolved returns the number of targets with a final outcome.
func (s State) Resolved() int {
	return len(s.Successful) + len(s.Failed)
}

// InFlight returns the number of dispatched targets still running.
func (s State) InFlight() int {
	return s.Dispatched - (s.Resolved() - s.Abandoned)
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// Validated accepts a request with total targets and starts dispatch.
type Validated struct {
	Total int
}

// ItemDispatched marks one target as handed to a worker.
type ItemDispatched struct {
	UserID string
}

// ItemSucceeded records a successful target.
type ItemSucceeded struct {
	UserID string
}

// ItemFailed records a failed target.
type ItemFailed struct {
	UserID string
	Reason ErrorKind
}

// CancelRequested asks dispatch to stop. It is refused once the last target
// has been dispatched.
type CancelRequested struct{}

// DispatchClosed ends dispatch. Abandoned lists the targets that were never
// dispatched; they are recorded as failed with Reason.
type DispatchClosed struct {
	Abandoned []string
	Reason    ErrorKind
}

// Drained finalizes the operation once every target is resolved.
type Drained struct{}

func (Validated) event()       {}
func (ItemDispatched) event()  {}
func (ItemSucceeded) event()   {}
func (ItemFailed) event()      {}
func (CancelRequested) event() {}
func (DispatchClosed) event()  {}
func (Drained) event()         {}

// Reduce applies e to s and returns the next state. An event that is not
// legal in the current phase returns s unchanged and an error.
func Reduce(s State, e Event) (State, error) {
	switch ev := e.(type) {
	case Validated:
		if s.Phase != PhaseValidating {
			return s, illegal(s, e)
		}
		if ev.Total <= 0 {
			return s, ErrNoTargets
		}
		s.Phase = PhaseDispatching
		s.Total = ev.Total
		return s, nil

	case ItemDispatched:
		if s.Phase != PhaseDispatching || s.Dispatched+s.Abandoned >= s.Total {
			return s, illegal(s, e)
		}
		s.Dispatched++
		return s, nil

	case ItemSucceeded:
		if !s.acceptsOutcome() {
			return s, illegal(s, e)
		}
		s.Successful = append(slices.Clip(s.Successful), ev.UserID)
		return s, nil

	case ItemFailed:
		if !s.acceptsOutcome() {
			return s, illegal(s, e)
		}
		s.Failed = append(slices.Clip(s.Failed), ItemFailure{UserID: ev.UserID, Reason: ev.Reason})
		return s, nil

	case CancelRequested:
		// Once every target is dispatched there is nothing left to stop.
		if s.Phase != PhaseDispatching || s.Dispatched+s.Abandoned >= s.Total {
			return s, ErrNotCancellable
		}
		s.CancelRequested = true
		return s, nil

	case DispatchClosed:
		if s.Phase != PhaseDispatching || s.Dispatched+len(ev.Abandoned) != s.Total {
			return s, illegal(s, e)
		}
		if len(ev.Abandoned) > 0 {
			failed := slices.Clip(s.Failed)
			for _, id := range ev.Abandoned {
				failed = append(failed, ItemFailure{UserID: id, Reason: ev.Reason})
			}
			s.Failed = failed
			s.Abandoned = len(ev.Abandoned)
			if ev.Reason != ErrorKindCancelled {
				s.Interruption = ev.Reason
			}
		}
		s.Phase = PhaseAggregating
		return s, nil

	case Drained:
		if s.Phase != PhaseAggregating || s.Resolved() != s.Total {
			return s, illegal(s, e)
		}
		if s.CancelRequested && s.Abandoned > 0 {
			s.Phase = PhaseCancelled
		} else {
			s.Phase = PhaseCompleted
		}
		return s, nil

	default:
		return s, illegal(s, e)
	}
}

func (s State) acceptsOutcome() bool {
	if s.Phase != PhaseDispatching && s.Phase != PhaseAggregating {
		return false
	}
	return s.InFlight() > 0
}

func illegal(s State, e Event) error {
	return fmt.Errorf("%w: %T in phase %s", ErrIllegalTransition, e, s.Phase)
}
