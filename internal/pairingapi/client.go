package pairingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/muurk/batchpair/internal/logging"
	"github.com/muurk/batchpair/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retries for idempotent calls
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 5 * time.Second

	// APIPrefix is the path prefix of every pairing endpoint
	APIPrefix = "/api/v1/pairing"

	// RequestIDHeader carries a per-call id for correlating service logs
	RequestIDHeader = "X-Request-ID"
)

// Endpoint paths relative to the service base URL
const (
	PathCheckSerial    = APIPrefix + "/serial/check"
	PathStepOne        = APIPrefix + "/step1"
	PathPollStatus     = APIPrefix + "/status"
	PathRefreshPinCode = APIPrefix + "/pincode"
	PathStepTwo        = APIPrefix + "/step2"
	PathStepThree      = APIPrefix + "/step3"
	PathCancel         = APIPrefix + "/cancel"
)

// Client is an HTTP client for the remote pairing service
type Client struct {
	// BaseURL is the service root (e.g., "https://pair.example.com")
	BaseURL string

	// Token is sent as a bearer token; session handling happens elsewhere
	Token string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the retry budget for idempotent calls (serial checks)
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration
}

var _ API = (*Client)(nil)

type checkData struct {
	DeviceType string `json:"deviceType"`
}

// NewClient creates a pairing service client
// baseURL: Service root URL (e.g., "https://pair.example.com")
// token: Bearer token of the signed-in user (may be empty for local simulators)
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Token:         token,
		HTTPClient:    &http.Client{Timeout: DefaultTimeout},
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// CheckSerial asks whether serial may be paired. A refused serial is
// reported through CheckResult.IsSuccess, not as an error.
func (c *Client) CheckSerial(ctx context.Context, serial string) (*CheckResult, error) {
	if strings.TrimSpace(serial) == "" {
		return nil, NewValidationError(OpCheckSerial, "serial number is empty")
	}

	var result *CheckResult
	err := c.retry(ctx, func() error {
		env, err := call[checkData](ctx, c, OpCheckSerial, PathCheckSerial, SerialRequest{SerialNumber: serial})
		if err != nil {
			return err
		}
		result = &CheckResult{
			IsSuccess:  env.IsSuccess,
			ErrorInfo:  env.ErrorInfo,
			DeviceType: env.Data.DeviceType,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StepOne issues pin codes. When the service refuses some serials the
// per-device results are returned together with a rejected error.
func (c *Client) StepOne(ctx context.Context, serials []string) ([]PinCodeResult, error) {
	if len(serials) == 0 {
		return nil, NewValidationError(OpStepOne, "no serial numbers")
	}
	env, err := call[[]PinCodeResult](ctx, c, OpStepOne, PathStepOne, SerialsRequest{SerialNumbers: serials})
	if err != nil {
		return nil, err
	}
	if !env.IsSuccess {
		return env.Data, NewRejectedError(OpStepOne, env.ErrorInfo)
	}
	return env.Data, nil
}

// PollStatus reports the pairing result code of each serial
func (c *Client) PollStatus(ctx context.Context, serials []string) ([]StatusResult, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	env, err := call[[]StatusResult](ctx, c, OpPollStatus, PathPollStatus, SerialsRequest{SerialNumbers: serials})
	if err != nil {
		return nil, err
	}
	if !env.IsSuccess {
		return nil, NewRejectedError(OpPollStatus, env.ErrorInfo)
	}
	return env.Data, nil
}

// RefreshPinCode re-issues the pin code of one serial
func (c *Client) RefreshPinCode(ctx context.Context, serial string) (*PinCode, error) {
	env, err := call[PinCode](ctx, c, OpRefreshPinCode, PathRefreshPinCode, SerialRequest{SerialNumber: serial})
	if err != nil {
		return nil, err
	}
	if !env.IsSuccess {
		return nil, NewRejectedError(OpRefreshPinCode, env.ErrorInfo)
	}
	if env.Data.PinCode == "" {
		return nil, NewParseError(OpRefreshPinCode, "response carries no pin code", nil)
	}
	if env.Data.DeviceSN == "" {
		env.Data.DeviceSN = serial
	}
	return &env.Data, nil
}

// StepTwo confirms the pairing intent for serials
func (c *Client) StepTwo(ctx context.Context, serials []string) error {
	return c.command(ctx, OpStepTwo, PathStepTwo, SerialsRequest{SerialNumbers: serials})
}

// StepThree commits the final device settings
func (c *Client) StepThree(ctx context.Context, devices []DeviceSettings) error {
	if len(devices) == 0 {
		return NewValidationError(OpStepThree, "no devices")
	}
	return c.command(ctx, OpStepThree, PathStepThree, StepThreeRequest{Devices: devices})
}

// CancelPairing aborts pairing for serials
func (c *Client) CancelPairing(ctx context.Context, serials []string) error {
	if len(serials) == 0 {
		return nil
	}
	return c.command(ctx, OpCancel, PathCancel, SerialsRequest{SerialNumbers: serials})
}

func (c *Client) command(ctx context.Context, op, path string, body any) error {
	env, err := call[json.RawMessage](ctx, c, op, path, body)
	if err != nil {
		return err
	}
	if !env.IsSuccess {
		return NewRejectedError(op, env.ErrorInfo)
	}
	return nil
}

// retry runs fn with exponential backoff while it fails with a retryable error
func (c *Client) retry(ctx context.Context, fn func() error) error {
	if c.MaxRetries <= 0 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	b.MaxInterval = c.MaxRetryDelay
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxRetries)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// call performs one JSON POST and decodes the response envelope
func call[T any](ctx context.Context, c *Client, op, path string, body any) (envelope[T], error) {
	var env envelope[T]
	started := time.Now()
	serials := serialsOf(body)

	err := func() error {
		payload, err := json.Marshal(body)
		if err != nil {
			return NewValidationError(op, fmt.Sprintf("failed to encode request: %v", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return NewNetworkError(op, "failed to create request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		req.Header.Set(RequestIDHeader, uuid.NewString())
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return NewNetworkError(op, "request failed", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return NewAuthError(op, "session token rejected")
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return NewNetworkError(op, "failed to read response body", err)
		}

		if resp.StatusCode != http.StatusOK {
			return NewHTTPError(op, resp.StatusCode, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
		}

		if err := json.Unmarshal(data, &env); err != nil {
			return NewParseError(op, "failed to parse JSON response", err)
		}
		return nil
	}()

	logging.LogAPICall(op, serials, time.Since(started), err)
	return env, err
}

func serialsOf(body any) []string {
	switch b := body.(type) {
	case SerialsRequest:
		return b.SerialNumbers
	case SerialRequest:
		return []string{b.SerialNumber}
	case StepThreeRequest:
		serials := make([]string, 0, len(b.Devices))
		for _, d := range b.Devices {
			serials = append(serials, d.DeviceSN)
		}
		return serials
	default:
		return nil
	}
}
