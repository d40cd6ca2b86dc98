package pairingapi

import "context"

// API is the remote pairing service as seen by the wizard.
// Implementations must be safe for concurrent use.
type API interface {
	// CheckSerial asks whether a serial number may be paired to this account
	CheckSerial(ctx context.Context, serial string) (*CheckResult, error)

	// StepOne issues pin codes for every serial in the batch
	StepOne(ctx context.Context, serials []string) ([]PinCodeResult, error)

	// PollStatus reports the pairing result of each serial
	PollStatus(ctx context.Context, serials []string) ([]StatusResult, error)

	// RefreshPinCode re-issues an expired pin code
	RefreshPinCode(ctx context.Context, serial string) (*PinCode, error)

	// StepTwo confirms the pairing intent for the batch
	StepTwo(ctx context.Context, serials []string) error

	// StepThree commits names and groups and completes the batch
	StepThree(ctx context.Context, devices []DeviceSettings) error

	// CancelPairing aborts pairing for the given serials
	CancelPairing(ctx context.Context, serials []string) error
}
