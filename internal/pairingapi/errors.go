package pairingapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// Error types for pairing service operations

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (connection reset, unreachable, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates the session token was rejected
	ErrTypeAuth
	// ErrTypeHTTP indicates an HTTP-level error (unexpected status code)
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed response body
	ErrTypeParse
	// ErrTypeValidation indicates the request was invalid before it was sent
	ErrTypeValidation
	// ErrTypeRejected indicates the service answered but refused the operation
	ErrTypeRejected
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the service refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeCanceled indicates the caller canceled the request
	ErrTypeCanceled
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeRejected:
		return "Rejected"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeCanceled:
		return "Canceled"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// APIError represents an error that occurred talking to the pairing service
type APIError struct {
	Type       ErrorType // Category of error
	Op         string    // Operation name (e.g., "step1", "status")
	Message    string    // Human-readable error message
	StatusCode int       // HTTP status code (if applicable)
	Err        error     // Underlying error (if any)
	Retryable  bool      // Whether the error is retryable
}

// Error implements the error interface
func (e *APIError) Error() string {
	prefix := e.Type.String()
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed error
func ClassifyNetworkError(op string, err error) *APIError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return &APIError{Type: ErrTypeCanceled, Op: op, Message: "request canceled", Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &APIError{Type: ErrTypeTimeout, Op: op, Message: "request timed out", Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &APIError{
			Type:    ErrTypeDNS,
			Op:      op,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &APIError{
			Type:      ErrTypeConnectionRefused,
			Op:        op,
			Message:   "pairing service refused connection",
			Err:       err,
			Retryable: true,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(op, urlErr.Err)
	}

	return &APIError{
		Type:      ErrTypeNetwork,
		Op:        op,
		Message:   "network error occurred",
		Err:       err,
		Retryable: true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(op, message string, err error) *APIError {
	classified := ClassifyNetworkError(op, err)
	if classified == nil {
		return &APIError{Type: ErrTypeNetwork, Op: op, Message: message, Retryable: true}
	}
	classified.Message = message
	return classified
}

// NewAuthError creates an authentication error
func NewAuthError(op, message string) *APIError {
	return &APIError{
		Type:       ErrTypeAuth,
		Op:         op,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(op string, statusCode int, message string) *APIError {
	return &APIError{
		Type:       ErrTypeHTTP,
		Op:         op,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500 || statusCode == http.StatusTooManyRequests,
	}
}

// NewParseError creates a parsing error
func NewParseError(op, message string, err error) *APIError {
	return &APIError{
		Type:    ErrTypeParse,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(op, message string) *APIError {
	return &APIError{
		Type:    ErrTypeValidation,
		Op:      op,
		Message: message,
	}
}

// NewRejectedError creates an error for a request the service refused
func NewRejectedError(op, errorInfo string) *APIError {
	if errorInfo == "" {
		errorInfo = "request rejected by pairing service"
	}
	return &APIError{
		Type:    ErrTypeRejected,
		Op:      op,
		Message: errorInfo,
	}
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func isType(err error, types ...ErrorType) bool {
	apiErr, ok := asAPIError(err)
	if !ok {
		return false
	}
	for _, t := range types {
		if apiErr.Type == t {
			return true
		}
	}
	return false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS, etc.)
func IsNetworkError(err error) bool {
	return isType(err, ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	return isType(err, ErrTypeAuth)
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	return isType(err, ErrTypeHTTP)
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	return isType(err, ErrTypeParse)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrTypeValidation)
}

// IsRejectedError checks if the service refused the operation
func IsRejectedError(err error) bool {
	return isType(err, ErrTypeRejected)
}

// IsCanceled checks if the request was canceled by the caller
func IsCanceled(err error) bool {
	return isType(err, ErrTypeCanceled)
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	apiErr, ok := asAPIError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The pairing service did not respond in time.",
			"Troubleshooting:",
			"  • Check your internet connection",
			"  • Try again in a few seconds",
			"  • Increase --timeout for slow networks",
		}, "\n")

	case ErrTypeConnectionRefused, ErrTypeNetwork:
		return strings.Join([]string{
			"Could not reach the pairing service.",
			"Troubleshooting:",
			"  • Check the --service URL",
			"  • Verify your network connection",
			"  • Check whether a proxy or firewall blocks the request",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the pairing service hostname.",
			"Troubleshooting:",
			"  • Check the --service URL for typos",
			"  • Check your network DNS settings",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"The session token was rejected.",
			"Troubleshooting:",
			"  • Sign in again and pass a fresh --token",
			"  • Check that the account may add devices",
		}, "\n")

	case ErrTypeHTTP:
		if apiErr.StatusCode >= 500 {
			return fmt.Sprintf("The pairing service returned an error (HTTP %d). Try again later.", apiErr.StatusCode)
		}
		return fmt.Sprintf("The pairing service returned HTTP %d. Check the request parameters.", apiErr.StatusCode)

	case ErrTypeRejected:
		return "The pairing service refused the request: " + apiErr.Message

	case ErrTypeParse:
		return "Failed to parse the pairing service response. The client may be out of date."

	case ErrTypeValidation:
		return "The request is invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	apiErr, ok := asAPIError(err)
	if !ok {
		return err.Error()
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return "Pairing service not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Pairing service refused connection"
	case ErrTypeDNS:
		return "Cannot resolve pairing service hostname"
	case ErrTypeAuth:
		return "Session expired - sign in again"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeHTTP:
		return fmt.Sprintf("Pairing service error (HTTP %d)", apiErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse pairing service response"
	case ErrTypeCanceled:
		return "Request canceled"
	default:
		return apiErr.Message
	}
}
