package pairingapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{
			name:      "deadline",
			err:       context.DeadlineExceeded,
			wantType:  ErrTypeTimeout,
			retryable: true,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantType: ErrTypeCanceled,
		},
		{
			name:     "dns",
			err:      &net.DNSError{Name: "pair.example.com", Err: "no such host"},
			wantType: ErrTypeDNS,
		},
		{
			name:      "connection refused",
			err:       &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			wantType:  ErrTypeConnectionRefused,
			retryable: true,
		},
		{
			name: "wrapped in url error",
			err: &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{
				Op: "dial", Err: syscall.ECONNREFUSED,
			}},
			wantType:  ErrTypeConnectionRefused,
			retryable: true,
		},
		{
			name:      "generic",
			err:       errors.New("connection reset by peer"),
			wantType:  ErrTypeNetwork,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(OpPollStatus, tt.err)
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.Op != OpPollStatus {
				t.Errorf("Op = %q, want %q", got.Op, OpPollStatus)
			}
		})
	}

	if ClassifyNetworkError("x", nil) != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestAPIError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewNetworkError(OpStepOne, "request failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	msg := err.Error()
	if !strings.Contains(msg, "step1") || !strings.Contains(msg, "request failed") || !strings.Contains(msg, "boom") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("commit: %w", NewAuthError(OpStepTwo, "session token rejected"))

	if !IsAuthError(err) {
		t.Error("IsAuthError should match a wrapped auth error")
	}
	if IsNetworkError(err) || IsHTTPError(err) || IsParseError(err) {
		t.Error("auth error matched another category")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestNewHTTPError_Retryable(t *testing.T) {
	tests := map[int]bool{
		400: false,
		404: false,
		429: true,
		500: true,
		503: true,
	}
	for code, want := range tests {
		if got := NewHTTPError("x", code, "").Retryable; got != want {
			t.Errorf("NewHTTPError(%d).Retryable = %v, want %v", code, got, want)
		}
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewAuthError("x", ""), "Session expired - sign in again"},
		{NewHTTPError("x", 502, ""), "Pairing service error (HTTP 502)"},
		{NewRejectedError("x", "device offline"), "device offline"},
		{NewRejectedError("x", ""), "request rejected by pairing service"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := GetShortErrorMessage(tt.err); got != tt.want {
			t.Errorf("GetShortErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	if hint := GetTroubleshootingHint(NewAuthError("x", "")); !strings.Contains(hint, "--token") {
		t.Errorf("auth hint = %q", hint)
	}
	if hint := GetTroubleshootingHint(errors.New("plain")); hint == "" {
		t.Error("hint for unknown errors should not be empty")
	}
}

func TestParseExpiry(t *testing.T) {
	want := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	tests := []string{
		"2026-10-19T09:30:00Z",
		"2026-10-19T11:30:00+02:00",
		"2026-10-19 09:30:00",
		"1792402200000",
	}
	for _, in := range tests {
		got, err := ParseExpiry(in)
		if err != nil {
			t.Errorf("ParseExpiry(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseExpiry(%q) = %v, want %v", in, got, want)
		}
	}

	for _, bad := range []string{"", "tomorrow"} {
		if _, err := ParseExpiry(bad); err == nil {
			t.Errorf("ParseExpiry(%q) error = nil, want error", bad)
		}
	}

	if got := FormatExpiry(want); got != "2026-10-19T09:30:00Z" {
		t.Errorf("FormatExpiry() = %q", got)
	}
}
