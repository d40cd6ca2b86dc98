package batch

import (
	"fmt"
	"time"
)

// SerialValidity is the tri-state result of a serial number check
type SerialValidity int

const (
	// SerialUnknown means no check has completed for the current serial
	SerialUnknown SerialValidity = iota
	// SerialValid means the pairing service accepted the serial
	SerialValid
	// SerialInvalid means the serial failed local or remote validation
	SerialInvalid
)

// String returns a human-readable name for the validity state
func (v SerialValidity) String() string {
	switch v {
	case SerialUnknown:
		return "unknown"
	case SerialValid:
		return "valid"
	case SerialInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("SerialValidity(%d)", int(v))
	}
}

// PairingStatus mirrors the resultCode reported by the pairing service.
// The numeric values are part of the wire contract.
type PairingStatus int

const (
	PairingNotStarted PairingStatus = 0
	PairingSuccess    PairingStatus = 1
	PairingProcessing PairingStatus = 2
	PairingFailed     PairingStatus = 3
)

// String returns a human-readable name for the pairing status
func (s PairingStatus) String() string {
	switch s {
	case PairingNotStarted:
		return "not started"
	case PairingSuccess:
		return "paired"
	case PairingProcessing:
		return "pairing"
	case PairingFailed:
		return "failed"
	default:
		return fmt.Sprintf("PairingStatus(%d)", int(s))
	}
}

// Valid reports whether s is one of the four known result codes
func (s PairingStatus) Valid() bool {
	return s >= PairingNotStarted && s <= PairingFailed
}

// Terminal reports whether the status can no longer change through polling
func (s PairingStatus) Terminal() bool {
	return s == PairingSuccess || s == PairingFailed
}

// rank orders statuses along the only direction polling may move them:
// not started, then processing, then one of the two terminal results.
func (s PairingStatus) rank() int {
	switch s {
	case PairingNotStarted:
		return 0
	case PairingProcessing:
		return 1
	case PairingSuccess, PairingFailed:
		return 2
	default:
		return -1
	}
}

// Advances reports whether moving from s to next is a forward transition.
// Terminal statuses never advance; an unknown code never does either.
func (s PairingStatus) Advances(next PairingStatus) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Entry is the provisioning state of one device in the batch
type Entry struct {
	// Key is unique within the session and never reused
	Key int

	// SerialNumber is editable until the batch passes the serial step
	SerialNumber string

	SerialValidity SerialValidity

	// SerialError is the inline validation message shown next to the serial
	SerialError string

	// PinCode and PinCodeExpiry are issued by the pairing service after step 1
	PinCode       string
	PinCodeExpiry time.Time

	PairingStatus PairingStatus

	// Name must be non-empty before the batch can finish
	Name string

	// GroupIDs are the device groups sent with the final settings commit
	GroupIDs []string

	// DeviceType is populated by the pairing service and read-only here
	DeviceType string

	// Selected marks the entry for bulk actions
	Selected bool
}

// HasPinCode reports whether a pin code has been issued for the entry
func (e Entry) HasPinCode() bool {
	return e.PinCode != "" && !e.PinCodeExpiry.IsZero()
}

// PinCodeExpired reports whether the pin code is past its expiry at now
func (e Entry) PinCodeExpired(now time.Time) bool {
	return e.HasPinCode() && !now.Before(e.PinCodeExpiry)
}

// AwaitingConfirmation reports whether the pairing service still has to
// report a final result for the entry
func (e Entry) AwaitingConfirmation() bool {
	return !e.PairingStatus.Terminal()
}

func (e Entry) clone() Entry {
	if e.GroupIDs != nil {
		e.GroupIDs = append([]string(nil), e.GroupIDs...)
	}
	return e
}

// Patch is a partial update for an Entry. Nil fields are left unchanged.
type Patch struct {
	SerialNumber   *string
	SerialValidity *SerialValidity
	SerialError    *string
	PinCode        *string
	PinCodeExpiry  *time.Time
	PairingStatus  *PairingStatus
	Name           *string
	GroupIDs       *[]string
	DeviceType     *string
	Selected       *bool
}

// apply merges the non-nil fields of p into e
func (p Patch) apply(e Entry) Entry {
	if p.SerialNumber != nil {
		e.SerialNumber = *p.SerialNumber
	}
	if p.SerialValidity != nil {
		e.SerialValidity = *p.SerialValidity
	}
	if p.SerialError != nil {
		e.SerialError = *p.SerialError
	}
	if p.PinCode != nil {
		e.PinCode = *p.PinCode
	}
	if p.PinCodeExpiry != nil {
		e.PinCodeExpiry = *p.PinCodeExpiry
	}
	if p.PairingStatus != nil {
		e.PairingStatus = *p.PairingStatus
	}
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.GroupIDs != nil {
		e.GroupIDs = append([]string(nil), (*p.GroupIDs)...)
	}
	if p.DeviceType != nil {
		e.DeviceType = *p.DeviceType
	}
	if p.Selected != nil {
		e.Selected = *p.Selected
	}
	return e
}

// Pointer helpers for building patches

func String(s string) *string                   { return &s }
func Bool(b bool) *bool                         { return &b }
func Time(t time.Time) *time.Time               { return &t }
func Strings(s []string) *[]string              { return &s }
func Validity(v SerialValidity) *SerialValidity { return &v }
func Status(s PairingStatus) *PairingStatus     { return &s }
