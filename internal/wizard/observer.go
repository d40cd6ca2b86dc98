package wizard

import (
	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/pairingapi"
)

// Observer receives controller updates. Methods are called without the
// controller lock held and may call back into the controller. They are
// called from whichever goroutine caused the update.
type Observer interface {
	// StateChanged delivers a snapshot after every mutation.
	// Snapshots may arrive out of order; compare Revision.
	StateChanged(Snapshot)

	// CountdownTick delivers the remaining pin-code seconds of one device
	CountdownTick(key int, seconds int)

	// Notify delivers a transient message for the user
	Notify(Notice)
}

// NoticeLevel is the severity of a Notice
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

// String returns the level name
func (l NoticeLevel) String() string {
	switch l {
	case NoticeInfo:
		return "info"
	case NoticeWarning:
		return "warning"
	default:
		return "error"
	}
}

// Notice is a dismissible message such as a failed commit
type Notice struct {
	Level   NoticeLevel
	Message string
	Hint    string
	Err     error
}

func errorNotice(prefix string, err error) Notice {
	return Notice{
		Level:   NoticeError,
		Message: prefix + ": " + pairingapi.GetShortErrorMessage(err),
		Hint:    pairingapi.GetTroubleshootingHint(err),
		Err:     err,
	}
}

// Snapshot is a consistent copy of the controller state
type Snapshot struct {
	// Revision increases with every published change
	Revision uint64

	SessionID string
	State     State
	Entries   []batch.Entry
	Gate      batch.Gate

	// CanAdvance mirrors Controller.CanAdvance
	CanAdvance bool

	// Countdowns maps entry keys to remaining pin-code seconds
	Countdowns map[int]int

	// Polling reports whether the status poller is running
	Polling bool

	// Busy reports whether a step commit is in flight
	Busy bool

	// Exited is set once the wizard finished or the batch was cancelled
	Exited bool
}

// Entry returns the entry for key from the snapshot
func (s Snapshot) Entry(key int) (batch.Entry, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return batch.Entry{}, false
}

type nopObserver struct{}

func (nopObserver) StateChanged(Snapshot)  {}
func (nopObserver) CountdownTick(int, int) {}
func (nopObserver) Notify(Notice)          {}
