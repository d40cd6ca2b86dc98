package wizard

import "errors"

var (
	// ErrUnknownDevice is returned for a key that is not in the batch
	ErrUnknownDevice = errors.New("unknown device")

	// ErrSerialLocked is returned when editing a serial after pin codes were issued
	ErrSerialLocked = errors.New("serial number can no longer be changed")

	// ErrCannotAdvance is returned by Next when the forward action is disabled
	ErrCannotAdvance = errors.New("wizard cannot advance")

	// ErrCommitInProgress is returned by Next while another commit is running
	ErrCommitInProgress = errors.New("commit already in progress")

	// ErrBatchChanged is returned when the batch was reset while a commit was in flight
	ErrBatchChanged = errors.New("batch changed during commit")

	// ErrNoPinCode is returned when refreshing the pin code of a device that has none
	ErrNoPinCode = errors.New("device has no pin code")

	// ErrClosed is returned once the wizard has exited or been closed
	ErrClosed = errors.New("wizard closed")
)
