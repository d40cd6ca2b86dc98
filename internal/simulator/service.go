// Package simulator serves an in-memory pairing service that speaks the
// same JSON API as the real one. It backs the `batchpair simulate` command
// and the client and wizard tests.
//
// Devices move through pairing on their own: after a pin code is issued,
// each status poll advances the device one step until it reports success
// (or failure for serials configured to fail).
package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/muurk/batchpair/internal/logging"
	"github.com/muurk/batchpair/internal/pairingapi"
)

const (
	// DefaultPinTTL is how long an issued pin code stays valid
	DefaultPinTTL = 3 * time.Minute

	// DefaultPollsToPair is the number of status polls before a device pairs
	DefaultPollsToPair = 2
)

// Config controls the simulated service behavior
type Config struct {
	// Token, when set, must be presented as a bearer token
	Token string

	// PinTTL is the lifetime of issued pin codes
	PinTTL time.Duration

	// PollsToPair is how many polls a device spends processing before it
	// reports its final result. Zero disables automatic progress; use
	// Service.SetResult instead.
	PollsToPair int

	// Rejected maps serials to the reason the serial check refuses them
	Rejected map[string]string

	// Failing lists serials whose pairing ends in failure
	Failing map[string]bool
}

type device struct {
	serial     string
	deviceType string
	pinCode    string
	expiry     time.Time
	status     int
	polls      int
	confirmed  bool
	name       string
	groups     []string
	bound      bool
}

// Service is the in-memory pairing service
type Service struct {
	cfg   Config
	clock clock.PassiveClock

	mu      sync.Mutex
	devices map[string]*device
	pinSeq  int
	calls   map[string]int
}

// NewService creates a simulated service. A nil clock uses the real clock.
func NewService(cfg Config, c clock.PassiveClock) *Service {
	if c == nil {
		c = clock.RealClock{}
	}
	if cfg.PinTTL <= 0 {
		cfg.PinTTL = DefaultPinTTL
	}
	if cfg.PollsToPair < 0 {
		cfg.PollsToPair = 0
	}
	return &Service{
		cfg:     cfg,
		clock:   c,
		devices: make(map[string]*device),
		calls:   make(map[string]int),
	}
}

// Handler returns the HTTP handler serving the pairing API
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pairingapi.PathCheckSerial, s.auth(s.handleCheckSerial))
	mux.HandleFunc(pairingapi.PathStepOne, s.auth(s.handleStepOne))
	mux.HandleFunc(pairingapi.PathPollStatus, s.auth(s.handlePollStatus))
	mux.HandleFunc(pairingapi.PathRefreshPinCode, s.auth(s.handleRefreshPinCode))
	mux.HandleFunc(pairingapi.PathStepTwo, s.auth(s.handleStepTwo))
	mux.HandleFunc(pairingapi.PathStepThree, s.auth(s.handleStepThree))
	mux.HandleFunc(pairingapi.PathCancel, s.auth(s.handleCancel))
	return mux
}

// Calls returns how many requests reached the handler for path
func (s *Service) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// SetResult forces the pairing result code of a serial
func (s *Service) SetResult(serial string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[serial]; ok {
		d.status = code
	}
}

// Bound reports whether a serial completed step 3, and the name it got
func (s *Service) Bound(serial string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[serial]
	if !ok || !d.bound {
		return "", false
	}
	return d.name, true
}

// Known reports whether the service holds pairing state for serial
func (s *Service) Known(serial string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.devices[serial]
	return ok
}

func (s *Service) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()

		logging.Debug("Simulator request",
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(pairingapi.RequestIDHeader)),
		)

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func deviceTypeFor(serial string) string {
	switch {
	case strings.HasPrefix(serial, "GW"):
		return "gateway"
	case strings.HasPrefix(serial, "CAM"):
		return "camera"
	default:
		return "sensor"
	}
}

func (s *Service) issuePinLocked(d *device) {
	s.pinSeq++
	d.pinCode = fmt.Sprintf("%06d", (s.pinSeq*7919+104729)%1000000)
	d.expiry = s.clock.Now().Add(s.cfg.PinTTL)
	d.status = pairingapi.ResultNotStarted
	d.polls = 0
}

func (s *Service) handleCheckSerial(w http.ResponseWriter, r *http.Request) {
	var req pairingapi.SerialRequest
	if !decode(w, r, &req) {
		return
	}

	if reason, rejected := s.cfg.Rejected[req.SerialNumber]; rejected {
		writeJSON(w, map[string]any{"isSuccess": false, "errorInfo": reason})
		return
	}

	s.mu.Lock()
	d, ok := s.devices[req.SerialNumber]
	bound := ok && d.bound
	s.mu.Unlock()
	if bound {
		writeJSON(w, map[string]any{"isSuccess": false, "errorInfo": "device already bound to an account"})
		return
	}

	writeJSON(w, map[string]any{
		"isSuccess": true,
		"data":      map[string]string{"deviceType": deviceTypeFor(req.SerialNumber)},
	})
}

func (s *Service) handleStepOne(w http.ResponseWriter, r *http.Request) {
	var req pairingapi.SerialsRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ok := true
	results := make([]pairingapi.PinCodeResult, 0, len(req.SerialNumbers))
	for _, sn := range req.SerialNumbers {
		if reason, rejected := s.cfg.Rejected[sn]; rejected {
			ok = false
			results = append(results, pairingapi.PinCodeResult{DeviceSN: sn, ErrorInfo: reason})
			continue
		}
		d, exists := s.devices[sn]
		if !exists {
			d = &device{serial: sn, deviceType: deviceTypeFor(sn)}
			s.devices[sn] = d
		}
		if d.bound {
			ok = false
			results = append(results, pairingapi.PinCodeResult{DeviceSN: sn, ErrorInfo: "device already bound to an account"})
			continue
		}
		s.issuePinLocked(d)
		results = append(results, pairingapi.PinCodeResult{
			DeviceSN:      sn,
			PinCode:       d.pinCode,
			PinCodeExpiry: pairingapi.FormatExpiry(d.expiry),
			DeviceType:    d.deviceType,
		})
	}

	resp := map[string]any{"isSuccess": ok, "data": results}
	if !ok {
		resp["errorInfo"] = "some devices could not be prepared for pairing"
	}
	writeJSON(w, resp)
}

func (s *Service) handlePollStatus(w http.ResponseWriter, r *http.Request) {
	var req pairingapi.SerialsRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	results := make([]pairingapi.StatusResult, 0, len(req.SerialNumbers))
	for _, sn := range req.SerialNumbers {
		d, ok := s.devices[sn]
		if !ok {
			results = append(results, pairingapi.StatusResult{DeviceSN: sn, ResultCode: pairingapi.ResultNotStarted})
			continue
		}
		s.advanceLocked(d, now)
		results = append(results, pairingapi.StatusResult{DeviceSN: sn, ResultCode: d.status})
	}
	writeJSON(w, map[string]any{"isSuccess": true, "data": results})
}

// advanceLocked moves a device one poll further along its pairing
func (s *Service) advanceLocked(d *device, now time.Time) {
	if s.cfg.PollsToPair == 0 || d.pinCode == "" {
		return
	}
	if d.status == pairingapi.ResultSuccess || d.status == pairingapi.ResultFailed {
		return
	}
	if !now.Before(d.expiry) {
		// An expired code can no longer be entered on the device
		return
	}
	d.polls++
	switch {
	case d.polls >= s.cfg.PollsToPair && s.cfg.Failing[d.serial]:
		d.status = pairingapi.ResultFailed
	case d.polls >= s.cfg.PollsToPair:
		d.status = pairingapi.ResultSuccess
	default:
		d.status = pairingapi.ResultProcessing
	}
}

func (s *Service) handleRefreshPinCode(w http.ResponseWriter, r *http.Request) {
	var req pairingapi.SerialRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[req.SerialNumber]
	if !ok {
		writeJSON(w, map[string]any{"isSuccess": false, "errorInfo": "pairing not started for device"})
		return
	}
	s.issuePinLocked(d)
	writeJSON(w, map[string]any{
		"isSuccess": true,
		"data": pairingapi.PinCode{
			DeviceSN:      d.serial,
			PinCode:       d.pinCode,
			PinCodeExpiry: pairingapi.FormatExpiry(d.expiry),
		},
	})
}

func (s *Service) handleStepTwo(w http.ResponseWriter, r *http.Request) {
	var req pairingapi.SerialsRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sn := range req.SerialNumbers {
		d, ok := s.devices[sn]
		if !ok || d.status != pairingapi.ResultSuccess {
			writeJSON(w, map[string]any{"isSuccess": false, "errorInfo": fmt.Sprintf("device %s is not paired", sn)})
			return
		}
	}
	for _, sn := range req.SerialNumbers {
		s.devices[sn].confirmed = true
	}
	writeJSON(w, map[string]any{"isSuccess": true})
}

func (s *Service) handleStepThree(w http.ResponseWriter, r *http.Request) {
	var req pairingapi.StepThreeRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dev := range req.Devices {
		d, ok := s.devices[dev.DeviceSN]
		if !ok || !d.confirmed {
			writeJSON(w, map[string]any{"isSuccess": false, "errorInfo": fmt.Sprintf("device %s is not confirmed", dev.DeviceSN)})
			return
		}
		if strings.TrimSpace(dev.Name) == "" {
			writeJSON(w, map[string]any{"isSuccess": false, "errorInfo": fmt.Sprintf("device %s has no name", dev.DeviceSN)})
			return
		}
	}
	for _, dev := range req.Devices {
		d := s.devices[dev.DeviceSN]
		d.name = dev.Name
		d.groups = append([]string(nil), dev.GroupIDs...)
		d.bound = true
	}
	writeJSON(w, map[string]any{"isSuccess": true})
}

func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req pairingapi.SerialsRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sn := range req.SerialNumbers {
		if d, ok := s.devices[sn]; ok && !d.bound {
			delete(s.devices, sn)
		}
	}
	writeJSON(w, map[string]any{"isSuccess": true})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "malformed request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Simulator failed to write response", zap.Error(err))
	}
}
