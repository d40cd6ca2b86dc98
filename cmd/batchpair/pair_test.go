package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/batchpair/internal/config"
	"github.com/muurk/batchpair/internal/pairingapi"
	"github.com/muurk/batchpair/internal/simulator"
	"github.com/muurk/batchpair/internal/ui"
	"github.com/muurk/batchpair/internal/wizard"
)

// newHeadless starts a simulator and a controller wired to a progress
// observer writing into the returned buffer
func newHeadless(t *testing.T, cfg simulator.Config) (*simulator.Service, *wizard.Controller, *progress, *syncWriter, *bytes.Buffer) {
	t.Helper()
	svc := simulator.NewService(cfg, nil)
	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)

	buf := &bytes.Buffer{}
	out := &syncWriter{w: buf}
	p := newProgress(out)
	ctrl := wizard.New(pairingapi.NewClient(server.URL, cfg.Token),
		wizard.WithPollInterval(10*time.Millisecond),
		wizard.WithObserver(p))
	t.Cleanup(ctrl.Close)
	return svc, ctrl, p, out, buf
}

func TestRunPairing_PairsBatch(t *testing.T) {
	svc, ctrl, p, out, buf := newHeadless(t, simulator.Config{Token: "tok", PollsToPair: 1})

	history := config.NewRegistry()
	history.RecordPairing("GW-000002", "Hub", []string{"lab"}, "gateway", time.Now())

	var steps []string
	onStep := func(n int, status ui.StepStatus, _ string) {
		if status.Finished() {
			steps = append(steps, pairSteps[n-1])
		}
	}

	snap, err := runPairing(context.Background(), ctrl, p.changed, pairPlan{
		Serials:   []string{"sn-000001", "GW-000002", "SN-000001 ", "SN-000003"},
		Names:     map[string]string{"sn-000001": "Hall sensor"},
		Suggester: history,
		Timeout:   5 * time.Second,
	}, out, onStep)
	require.NoError(t, err, buf.String())

	assert.Equal(t, wizard.StepFinish, snap.State.Active)
	assert.True(t, snap.Exited)
	require.Len(t, snap.Entries, 3, "repeated serials are added once")

	name, bound := svc.Bound("SN-000001")
	assert.True(t, bound)
	assert.Equal(t, "Hall sensor", name)

	name, _ = svc.Bound("GW-000002")
	assert.Equal(t, "Hub", name, "remembered name is reused")

	name, _ = svc.Bound("SN-000003")
	assert.Equal(t, "SN-000003", name, "serial is the fallback name")

	e, ok := snap.Entry(snap.Entries[1].Key)
	require.True(t, ok)
	assert.Equal(t, []string{"lab"}, e.GroupIDs)
	assert.Equal(t, "gateway", e.DeviceType)

	assert.Equal(t, pairSteps, steps, "every step completes in order")
	assert.Contains(t, buf.String(), "Enter these pin codes on the devices")
	assert.Contains(t, buf.String(), "paired")
}

func TestRunPairing_RejectedSerial(t *testing.T) {
	svc, ctrl, p, out, buf := newHeadless(t, simulator.Config{
		PollsToPair: 1,
		Rejected:    map[string]string{"SN-BAD001": "unknown serial"},
	})

	_, err := runPairing(context.Background(), ctrl, p.changed, pairPlan{
		Serials: []string{"SN-000001", "SN-BAD001", "x"},
	}, out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 serial number(s) rejected")
	assert.Contains(t, buf.String(), "unknown serial")
	assert.Zero(t, svc.Calls(pairingapi.PathStepOne), "no pin codes are issued for a rejected batch")
}

func TestRunPairing_FailedDevice(t *testing.T) {
	_, ctrl, p, out, _ := newHeadless(t, simulator.Config{
		PollsToPair: 1,
		Failing:     map[string]bool{"SN-000002": true},
	})

	_, err := runPairing(context.Background(), ctrl, p.changed, pairPlan{
		Serials: []string{"SN-000001", "SN-000002"},
		Timeout: 5 * time.Second,
	}, out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pairing failed for SN-000002")
}

func TestRunPairing_RefreshesExpiredPinCodes(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for real pin codes to expire")
	}
	svc, ctrl, p, out, buf := newHeadless(t, simulator.Config{
		PinTTL:      2 * time.Second,
		PollsToPair: 0,
	})

	_, err := runPairing(context.Background(), ctrl, p.changed, pairPlan{
		Serials:      []string{"SN-000001"},
		Timeout:      15 * time.Second,
		MaxRefreshes: 1,
	}, out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pin code for SN-000001 expired")
	assert.Equal(t, 1, svc.Calls(pairingapi.PathRefreshPinCode))
	assert.Contains(t, buf.String(), "new pin code")
}

func TestRunPairing_Timeout(t *testing.T) {
	_, ctrl, p, out, _ := newHeadless(t, simulator.Config{PollsToPair: 0})

	_, err := runPairing(context.Background(), ctrl, p.changed, pairPlan{
		Serials: []string{"SN-000001"},
		Timeout: 50 * time.Millisecond,
	}, out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not confirm within 50ms")
}

func TestRunPairing_ContextCancelled(t *testing.T) {
	_, ctrl, p, out, _ := newHeadless(t, simulator.Config{PollsToPair: 0})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := runPairing(ctx, ctrl, p.changed, pairPlan{
		Serials: []string{"SN-000001"},
		Timeout: 5 * time.Second,
	}, out, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPairPlanResolve(t *testing.T) {
	history := config.NewRegistry()
	history.Preferences.DefaultGroups = []string{"default"}
	history.RecordPairing("SN-000001", "Kitchen", []string{"home"}, "", time.Now())

	tests := []struct {
		name       string
		plan       pairPlan
		serial     string
		wantName   string
		wantGroups []string
	}{
		{
			name:       "history",
			plan:       pairPlan{Suggester: history},
			serial:     "SN-000001",
			wantName:   "Kitchen",
			wantGroups: []string{"home"},
		},
		{
			name:       "flag name wins over history",
			plan:       pairPlan{Suggester: history, Names: map[string]string{"sn-000001": " Pantry "}},
			serial:     "SN-000001",
			wantName:   "Pantry",
			wantGroups: []string{"home"},
		},
		{
			name:       "flag groups win over history",
			plan:       pairPlan{Suggester: history, Groups: []string{"lab"}},
			serial:     "SN-000001",
			wantName:   "Kitchen",
			wantGroups: []string{"lab"},
		},
		{
			name:       "unknown device",
			plan:       pairPlan{Suggester: history},
			serial:     "SN-000009",
			wantName:   "SN-000009",
			wantGroups: []string{"default"},
		},
		{
			name:     "no history",
			plan:     pairPlan{},
			serial:   "SN-000009",
			wantName: "SN-000009",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, groups := tt.plan.resolve(tt.serial)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantGroups, groups)
		})
	}
}

func TestProgress_SignalsWithoutBlocking(t *testing.T) {
	buf := &bytes.Buffer{}
	p := newProgress(buf)

	for i := 0; i < 5; i++ {
		p.StateChanged(wizard.Snapshot{})
	}
	p.CountdownTick(1, 30)
	p.CountdownTick(1, 0)

	select {
	case <-p.changed:
	default:
		t.Fatal("expected a pending change signal")
	}

	p.Notify(wizard.Notice{Level: wizard.NoticeError, Message: "Issuing pin codes failed", Hint: "check the token"})
	assert.Contains(t, buf.String(), "Issuing pin codes failed")
	assert.Contains(t, buf.String(), "check the token")
}

func TestTroubleshoot(t *testing.T) {
	tips := troubleshoot(pairingapi.NewAuthError(pairingapi.OpStepOne, "unauthorized"))
	require.NotEmpty(t, tips)
	assert.Contains(t, tips, "Sign in again and pass a fresh --token")
	assert.NotContains(t, tips, "Troubleshooting:")

	tips = troubleshoot(wizard.ErrBatchChanged)
	assert.Len(t, tips, 2)
	assert.Contains(t, tips[len(tips)-1], "--log-level debug")
}
