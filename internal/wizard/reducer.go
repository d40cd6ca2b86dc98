package wizard

import (
	"fmt"

	"github.com/muurk/batchpair/internal/batch"
)

// Event is something that happened to the batch or the session
type Event int

const (
	// EventItemsChanged follows any edit of entries or selection
	EventItemsChanged Event = iota
	// EventItemAdded follows appending a new entry
	EventItemAdded
	// EventItemRemoved follows removing one or more entries
	EventItemRemoved
	// EventSessionError reports that the session token is no longer accepted
	EventSessionError
	// EventReset requests a return to the initial state
	EventReset
	// EventAdvanced follows a successful step commit
	EventAdvanced
)

// String returns the event name used in logs
func (e Event) String() string {
	switch e {
	case EventItemsChanged:
		return "items-changed"
	case EventItemAdded:
		return "item-added"
	case EventItemRemoved:
		return "item-removed"
	case EventSessionError:
		return "session-error"
	case EventReset:
		return "reset"
	case EventAdvanced:
		return "advanced"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Effects are the side effects a transition asks the controller to run
type Effects struct {
	// StartPoller starts the status poller unless it is already running
	StartPoller bool
	// RestartPoller replaces any running poller interval with a fresh one
	RestartPoller bool
	// StopPoller clears the poller interval
	StopPoller bool
	// StopCountdowns stops every pin-code countdown
	StopCountdowns bool
	// ClearPairing discards issued pin codes and pairing results
	ClearPairing bool
}

func resetEffects() Effects {
	return Effects{StopPoller: true, StopCountdowns: true, ClearPairing: true}
}

// Reduce computes the state that follows ev given the batch gate g.
//
// Adding an entry, a session error and an explicit reset all move Active
// back to ENTER_SN, with Next derived from the gate as usual, so a batch
// whose serials are still valid can go forward again at once. Any event
// that leaves the batch empty returns the initial state. Otherwise Next is
// derived from the gate for the active step, and EventAdvanced moves
// Active up to Next.
//
// The poller runs only while the active step is pin-code confirmation and
// some device has not reported success yet.
func Reduce(s State, ev Event, g batch.Gate) (State, Effects) {
	switch ev {
	case EventItemAdded, EventSessionError, EventReset:
		return State{Active: StepEnterSN, Next: nextFor(StepEnterSN, g)}, resetEffects()
	}

	if s.Active == StepFinish {
		return s, Effects{}
	}
	if g.Empty {
		return Initial(), resetEffects()
	}

	if ev == EventAdvanced && s.Next > s.Active {
		s.Active = s.Next
	}
	s.Next = nextFor(s.Active, g)

	var fx Effects
	switch s.Active {
	case StepConfirmPinCode:
		switch {
		case s.Next > s.Active:
			fx.StopPoller = true
		case ev == EventAdvanced || ev == EventItemRemoved:
			fx.RestartPoller = true
		default:
			fx.StartPoller = true
		}
	case StepDevicesSetting, StepFinish:
		fx.StopPoller = true
		fx.StopCountdowns = true
	}
	return s, fx
}

// nextFor returns the step after active when the batch passes the gate
// guarding it, or active itself when it does not
func nextFor(active Step, g batch.Gate) Step {
	switch active {
	case StepEnterSN:
		if g.AllSerialsValid {
			return StepConfirmPinCode
		}
	case StepConfirmPinCode:
		if g.AllPaired {
			return StepDevicesSetting
		}
	case StepDevicesSetting:
		if g.AllNamed {
			return StepFinish
		}
	}
	return active
}

// CanAdvance reports whether the forward action is enabled: at least one
// entry is selected, every serial is valid and the batch qualifies for a
// step beyond the active one
func CanAdvance(s State, g batch.Gate, anySelected bool) bool {
	return anySelected && g.AllSerialsValid && s.Next > s.Active
}
