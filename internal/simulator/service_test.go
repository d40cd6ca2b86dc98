package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/muurk/batchpair/internal/pairingapi"
)

type response struct {
	IsSuccess bool            `json:"isSuccess"`
	ErrorInfo string          `json:"errorInfo"`
	Data      json.RawMessage `json:"data"`
}

func post(t *testing.T, h http.Handler, path string, body any) response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func statuses(t *testing.T, h http.Handler, serials ...string) map[string]int {
	t.Helper()
	resp := post(t, h, pairingapi.PathPollStatus, pairingapi.SerialsRequest{SerialNumbers: serials})
	require.True(t, resp.IsSuccess)

	var results []pairingapi.StatusResult
	require.NoError(t, json.Unmarshal(resp.Data, &results))
	out := make(map[string]int, len(results))
	for _, r := range results {
		out[r.DeviceSN] = r.ResultCode
	}
	return out
}

func TestService_PairingProgressesWithPolls(t *testing.T) {
	svc := NewService(Config{PollsToPair: 3, Failing: map[string]bool{"SN-FAIL01": true}}, nil)
	h := svc.Handler()

	resp := post(t, h, pairingapi.PathStepOne, pairingapi.SerialsRequest{SerialNumbers: []string{"SN-000001", "SN-FAIL01"}})
	require.True(t, resp.IsSuccess)

	for i := 0; i < 2; i++ {
		got := statuses(t, h, "SN-000001", "SN-FAIL01")
		assert.Equal(t, pairingapi.ResultProcessing, got["SN-000001"], "poll %d", i+1)
		assert.Equal(t, pairingapi.ResultProcessing, got["SN-FAIL01"], "poll %d", i+1)
	}

	got := statuses(t, h, "SN-000001", "SN-FAIL01")
	assert.Equal(t, pairingapi.ResultSuccess, got["SN-000001"])
	assert.Equal(t, pairingapi.ResultFailed, got["SN-FAIL01"])

	// Terminal results stay put
	got = statuses(t, h, "SN-000001")
	assert.Equal(t, pairingapi.ResultSuccess, got["SN-000001"])
}

func TestService_NoProgressAfterExpiry(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Config{PinTTL: time.Minute, PollsToPair: 1}, fc)
	h := svc.Handler()

	post(t, h, pairingapi.PathStepOne, pairingapi.SerialsRequest{SerialNumbers: []string{"SN-000001"}})
	fc.Step(time.Minute)

	assert.Equal(t, pairingapi.ResultNotStarted, statuses(t, h, "SN-000001")["SN-000001"])

	// A fresh pin code restarts the clock
	resp := post(t, h, pairingapi.PathRefreshPinCode, pairingapi.SerialRequest{SerialNumber: "SN-000001"})
	require.True(t, resp.IsSuccess)

	var pin pairingapi.PinCode
	require.NoError(t, json.Unmarshal(resp.Data, &pin))
	expiry, err := pin.Expiry()
	require.NoError(t, err)
	assert.True(t, expiry.Equal(fc.Now().Add(time.Minute)))

	assert.Equal(t, pairingapi.ResultSuccess, statuses(t, h, "SN-000001")["SN-000001"])
}

func TestService_RefreshResetsStatus(t *testing.T) {
	svc := NewService(Config{}, nil)
	h := svc.Handler()

	post(t, h, pairingapi.PathStepOne, pairingapi.SerialsRequest{SerialNumbers: []string{"SN-000001"}})
	svc.SetResult("SN-000001", pairingapi.ResultFailed)
	require.Equal(t, pairingapi.ResultFailed, statuses(t, h, "SN-000001")["SN-000001"])

	post(t, h, pairingapi.PathRefreshPinCode, pairingapi.SerialRequest{SerialNumber: "SN-000001"})
	assert.Equal(t, pairingapi.ResultNotStarted, statuses(t, h, "SN-000001")["SN-000001"])
}

func TestService_CheckSerial(t *testing.T) {
	svc := NewService(Config{Rejected: map[string]string{"SN-BAD001": "unknown serial number"}}, nil)
	h := svc.Handler()

	tests := []struct {
		serial     string
		wantOK     bool
		wantType   string
		wantReason string
	}{
		{serial: "GW-000001", wantOK: true, wantType: "gateway"},
		{serial: "CAM-000001", wantOK: true, wantType: "camera"},
		{serial: "SN-000001", wantOK: true, wantType: "sensor"},
		{serial: "SN-BAD001", wantReason: "unknown serial number"},
	}

	for _, tt := range tests {
		t.Run(tt.serial, func(t *testing.T) {
			resp := post(t, h, pairingapi.PathCheckSerial, pairingapi.SerialRequest{SerialNumber: tt.serial})
			assert.Equal(t, tt.wantOK, resp.IsSuccess)
			assert.Equal(t, tt.wantReason, resp.ErrorInfo)
			if tt.wantOK {
				var data struct {
					DeviceType string `json:"deviceType"`
				}
				require.NoError(t, json.Unmarshal(resp.Data, &data))
				assert.Equal(t, tt.wantType, data.DeviceType)
			}
		})
	}
}

func TestService_BindFlow(t *testing.T) {
	svc := NewService(Config{PollsToPair: 1}, nil)
	h := svc.Handler()
	serials := []string{"SN-000001"}

	post(t, h, pairingapi.PathStepOne, pairingapi.SerialsRequest{SerialNumbers: serials})

	resp := post(t, h, pairingapi.PathStepThree, pairingapi.StepThreeRequest{
		Devices: []pairingapi.DeviceSettings{{DeviceSN: "SN-000001", Name: "Kitchen"}},
	})
	assert.False(t, resp.IsSuccess, "step 3 before step 2 must fail")

	statuses(t, h, serials...)
	require.True(t, post(t, h, pairingapi.PathStepTwo, pairingapi.SerialsRequest{SerialNumbers: serials}).IsSuccess)

	resp = post(t, h, pairingapi.PathStepThree, pairingapi.StepThreeRequest{
		Devices: []pairingapi.DeviceSettings{{DeviceSN: "SN-000001", Name: "  "}},
	})
	assert.False(t, resp.IsSuccess, "blank names are refused")

	resp = post(t, h, pairingapi.PathStepThree, pairingapi.StepThreeRequest{
		Devices: []pairingapi.DeviceSettings{{DeviceSN: "SN-000001", Name: "Kitchen", GroupIDs: []string{"home"}}},
	})
	require.True(t, resp.IsSuccess)

	name, bound := svc.Bound("SN-000001")
	assert.True(t, bound)
	assert.Equal(t, "Kitchen", name)

	// A bound device can be neither re-checked nor cancelled
	check := post(t, h, pairingapi.PathCheckSerial, pairingapi.SerialRequest{SerialNumber: "SN-000001"})
	assert.False(t, check.IsSuccess)
	post(t, h, pairingapi.PathCancel, pairingapi.SerialsRequest{SerialNumbers: serials})
	assert.True(t, svc.Known("SN-000001"))
}

func TestService_AuthAndMethod(t *testing.T) {
	svc := NewService(Config{Token: "secret"}, nil)
	h := svc.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, pairingapi.PathPollStatus, bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, pairingapi.PathPollStatus, nil)
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, pairingapi.PathPollStatus, bytes.NewBufferString(`{not json`))
	req.Header.Set("Authorization", "Bearer secret")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 3, svc.Calls(pairingapi.PathPollStatus))
}

func TestServer_RunAndShutdown(t *testing.T) {
	srv := NewServer(NewService(Config{}, nil), "127.0.0.1", 0)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	client := pairingapi.NewClient("http://"+addr, "")
	res, err := client.CheckSerial(context.Background(), "SN-000001")
	require.NoError(t, err)
	assert.True(t, res.IsSuccess)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
