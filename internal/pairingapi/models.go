package pairingapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operation names, used in errors and logs
const (
	OpCheckSerial    = "check-serial"
	OpStepOne        = "step1"
	OpPollStatus     = "status"
	OpRefreshPinCode = "pincode"
	OpStepTwo        = "step2"
	OpStepThree      = "step3"
	OpCancel         = "cancel"
)

// Result codes reported by the status poll
const (
	ResultNotStarted = 0
	ResultSuccess    = 1
	ResultProcessing = 2
	ResultFailed     = 3
)

// envelope is the common response wrapper of every pairing endpoint
type envelope[T any] struct {
	IsSuccess bool   `json:"isSuccess"`
	ErrorInfo string `json:"errorInfo,omitempty"`
	Data      T      `json:"data,omitempty"`
}

// SerialsRequest is the body of every endpoint that takes a list of serials
type SerialsRequest struct {
	SerialNumbers []string `json:"serialNumbers"`
}

// SerialRequest is the body of single-serial endpoints
type SerialRequest struct {
	SerialNumber string `json:"serialNumber"`
}

// CheckResult is the answer to a serial number check
type CheckResult struct {
	IsSuccess  bool   `json:"isSuccess"`
	ErrorInfo  string `json:"errorInfo,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
}

// PinCode is a pairing code and its absolute expiry timestamp
type PinCode struct {
	DeviceSN      string `json:"deviceSN"`
	PinCode       string `json:"pinCode"`
	PinCodeExpiry string `json:"pinCodeExpiry"`
}

// Expiry parses PinCodeExpiry
func (p PinCode) Expiry() (time.Time, error) {
	return ParseExpiry(p.PinCodeExpiry)
}

// PinCodeResult is the per-device outcome of the step-1 commit.
// Either the pin code fields or ErrorInfo are set.
type PinCodeResult struct {
	DeviceSN      string `json:"deviceSN"`
	PinCode       string `json:"pinCode,omitempty"`
	PinCodeExpiry string `json:"pinCodeExpiry,omitempty"`
	DeviceType    string `json:"deviceType,omitempty"`
	ErrorInfo     string `json:"errorInfo,omitempty"`
}

// Failed reports whether the service refused to issue a pin code
func (r PinCodeResult) Failed() bool {
	return r.ErrorInfo != "" || r.PinCode == ""
}

// Expiry parses PinCodeExpiry
func (r PinCodeResult) Expiry() (time.Time, error) {
	return ParseExpiry(r.PinCodeExpiry)
}

// StatusResult is the per-device outcome of a status poll.
// Pin code fields are only set when the service re-issued the code.
type StatusResult struct {
	DeviceSN      string `json:"deviceSN"`
	ResultCode    int    `json:"resultCode"`
	PinCode       string `json:"pinCode,omitempty"`
	PinCodeExpiry string `json:"pinCodeExpiry,omitempty"`
}

// DeviceSettings is the final per-device configuration of step 3
type DeviceSettings struct {
	DeviceSN string   `json:"deviceSN"`
	Name     string   `json:"name"`
	GroupIDs []string `json:"groupIds"`
}

// StepThreeRequest is the body of the final settings commit
type StepThreeRequest struct {
	Devices []DeviceSettings `json:"devices"`
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseExpiry parses an absolute pin-code expiry. RFC 3339 is expected;
// zone-less timestamps are read as UTC and bare integers as Unix
// milliseconds.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty pin code expiry")
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized pin code expiry %q", s)
}

// FormatExpiry renders an expiry the way the service sends it
func FormatExpiry(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
