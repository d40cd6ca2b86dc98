package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/countdown"
	"github.com/muurk/batchpair/internal/discovery"
	"github.com/muurk/batchpair/internal/logging"
	"github.com/muurk/batchpair/internal/pairingapi"
	"github.com/muurk/batchpair/internal/ui"
	"github.com/muurk/batchpair/internal/wizard"
)

// Pair command flags
var (
	pairSerials      []string
	pairNames        map[string]string
	pairGroups       []string
	pairTimeout      time.Duration
	pairMaxRefreshes int
	pairDiscover     bool
)

// DefaultPairTimeout bounds how long pair waits for devices to confirm
const DefaultPairTimeout = 10 * time.Minute

var pairCmd = &cobra.Command{
	Use:   "pair [serial...]",
	Short: "Pair a batch of devices without the wizard",
	Long: `Pair a batch of devices from the command line.

Serial numbers are checked with the pairing service, pin codes are issued
and printed, and pair waits until every device has confirmed its pin
code. Expired pin codes are refreshed automatically. Finally the devices
are saved with their names and groups.

Devices without a --name get the name they had the last time they were
paired, or their serial number.`,
	Example: `  # Pair two devices, naming one of them
  batchpair pair SN-000001 SN-000002 --name SN-000001="Hall sensor"

  # Put every device in the same groups
  batchpair pair SN-000001 SN-000002 --group home --group lab

  # Pair whatever is advertising pairing mode on the network
  batchpair pair --discover`,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().StringSliceVar(&pairSerials, "serial", nil, "Serial number to pair (repeatable)")
	pairCmd.Flags().StringToStringVar(&pairNames, "name", nil, "Device name as SERIAL=NAME (repeatable)")
	pairCmd.Flags().StringSliceVar(&pairGroups, "group", nil, "Group for every device (repeatable; default from config)")
	pairCmd.Flags().DurationVar(&pairTimeout, "timeout", DefaultPairTimeout, "How long to wait for devices to confirm")
	pairCmd.Flags().IntVar(&pairMaxRefreshes, "max-refreshes", 3, "Pin code refreshes allowed per device")
	pairCmd.Flags().BoolVar(&pairDiscover, "discover", false, "Add devices found by an mDNS scan")
	pairCmd.Flags().Duration("discover-timeout", 0, "How long the discovery scan runs (default from config)")
}

func runPair(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	serials := append(append([]string{}, args...), pairSerials...)
	if pairDiscover {
		fmt.Println("Scanning for devices in pairing mode...")
		devices, err := discovery.ScanForDevices(ctx, env.settings.DiscoverTimeout)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		fmt.Printf("Found %d device(s)\n", len(devices))
		serials = append(serials, discovery.Serials(devices)...)
	}
	if len(serials) == 0 {
		return errors.New("no serial numbers given; pass them as arguments, with --serial or use --discover")
	}

	groups := pairGroups
	if len(groups) == 0 {
		groups = env.settings.DefaultGroups
	}

	out := &syncWriter{w: os.Stdout}
	progress := newProgress(out)
	ctrl := env.newController(wizard.WithObserver(progress))
	defer ctrl.Close()

	plan := pairPlan{
		Serials:      serials,
		Names:        pairNames,
		Groups:       groups,
		Suggester:    env.registry,
		Timeout:      pairTimeout,
		MaxRefreshes: pairMaxRefreshes,
	}
	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Batch pairing",
		Command: "batchpair pair",
		Params: []ui.Param{
			{Key: "Service", Value: env.settings.ServiceURL},
			{Key: "Devices", Value: fmt.Sprintf("%d", len(serials))},
			{Key: "Groups", Value: strings.Join(groups, ", ")},
		},
		StepNames:       pairSteps,
		Troubleshooting: troubleshoot,
		Output:          out,
	})

	var snap wizard.Snapshot
	err = runner.Run(func(onStep ui.StepCallback) ([]ui.Param, error) {
		var err error
		snap, err = runPairing(ctx, ctrl, progress.changed, plan, out, onStep)
		if err != nil {
			return nil, err
		}
		return []ui.Param{
			{Key: "Paired", Value: fmt.Sprintf("%d device(s)", len(snap.Entries))},
			{Key: "Session", Value: snap.SessionID},
		}, nil
	})
	if err != nil {
		ctrl.Cancel()
		return err
	}
	return env.recordHistory(snap)
}

// Steps of a headless run, as reported to the runner
const (
	stepCheck = iota + 1
	stepIssue
	stepWait
	stepConfirm
	stepSave
)

var pairSteps = []string{
	"Check serial numbers",
	"Issue pin codes",
	"Wait for pin code confirmation",
	"Confirm pairing",
	"Save device settings",
}

// troubleshoot turns the hint of a pairing service error into tips
func troubleshoot(err error) []string {
	var tips []string
	var apiErr *pairingapi.APIError
	if errors.As(err, &apiErr) {
		for _, line := range strings.Split(pairingapi.GetTroubleshootingHint(err), "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
			if line != "" && line != "Troubleshooting:" {
				tips = append(tips, line)
			}
		}
	}
	if errors.Is(err, wizard.ErrBatchChanged) {
		tips = append(tips, "The batch changed while a step was committed; run pair again")
	}
	return append(tips, "Run with --log-level debug --log-file batchpair.log for details")
}

// pairPlan describes one headless batch
type pairPlan struct {
	Serials []string

	// Names maps serial numbers to device names
	Names map[string]string

	// Groups applies to every device that has no remembered groups
	Groups []string

	Suggester interface {
		Suggest(serial string) (string, []string)
	}

	Timeout      time.Duration
	MaxRefreshes int
}

// resolve picks the name and groups for serial: flags first, then the
// device history, then the serial itself
func (p pairPlan) resolve(serial string) (string, []string) {
	var name string
	var groups []string
	if p.Suggester != nil {
		name, groups = p.Suggester.Suggest(serial)
	}
	for sn, n := range p.Names {
		if batch.NormalizeSerial(sn) == serial && strings.TrimSpace(n) != "" {
			name = strings.TrimSpace(n)
		}
	}
	if name == "" {
		name = serial
	}
	if len(p.Groups) > 0 {
		groups = p.Groups
	}
	return name, groups
}

// runPairing drives ctrl through every step of the wizard. changed must
// receive a value whenever the controller state may have moved on.
// onStep may be nil.
func runPairing(ctx context.Context, ctrl *wizard.Controller, changed <-chan struct{}, plan pairPlan, out io.Writer, onStep ui.StepCallback) (wizard.Snapshot, error) {
	if onStep == nil {
		onStep = func(int, ui.StepStatus, string) {}
	}
	fail := func(step int, err error) (wizard.Snapshot, error) {
		onStep(step, ui.StepFailed, pairingapi.GetShortErrorMessage(err))
		return wizard.Snapshot{}, err
	}

	var keys []int
	seen := make(map[string]bool)
	for _, raw := range plan.Serials {
		serial := batch.NormalizeSerial(raw)
		if serial == "" || seen[serial] {
			continue
		}
		seen[serial] = true

		key := ctrl.AddDevice(serial)
		name, groups := plan.resolve(serial)
		if err := ctrl.SetName(key, name); err != nil {
			return fail(stepCheck, err)
		}
		if err := ctrl.SetGroups(key, groups); err != nil {
			return fail(stepCheck, err)
		}
		keys = append(keys, key)
	}

	onStep(stepCheck, ui.StepRunning, fmt.Sprintf("%d device(s)", len(keys)))
	for _, key := range keys {
		if err := ctrl.CheckSerial(ctx, key); err != nil {
			return fail(stepCheck, err)
		}
	}
	if err := invalidSerials(ctrl.Snapshot(), out); err != nil {
		return fail(stepCheck, err)
	}
	onStep(stepCheck, ui.StepComplete, fmt.Sprintf("%d valid", len(keys)))

	onStep(stepIssue, ui.StepRunning, "")
	if err := ctrl.Next(ctx); err != nil {
		_ = invalidSerials(ctrl.Snapshot(), out)
		return fail(stepIssue, err)
	}
	onStep(stepIssue, ui.StepComplete, "")
	printPinCodes(ctrl.Snapshot(), out)

	timeout := plan.Timeout
	if timeout <= 0 {
		timeout = DefaultPairTimeout
	}
	fmt.Fprintln(out, ui.PleaseWait("Waiting for every device to confirm its pin code", "up to "+timeout.String()))
	fmt.Fprintln(out)
	onStep(stepWait, ui.StepRunning, "")
	if err := waitForPairing(ctx, ctrl, changed, plan, timeout, out); err != nil {
		return fail(stepWait, err)
	}
	onStep(stepWait, ui.StepComplete, fmt.Sprintf("%d paired", len(keys)))

	onStep(stepConfirm, ui.StepRunning, "")
	if err := ctrl.Next(ctx); err != nil {
		return fail(stepConfirm, err)
	}
	onStep(stepConfirm, ui.StepComplete, "")

	onStep(stepSave, ui.StepRunning, "")
	if err := ctrl.Next(ctx); err != nil {
		return fail(stepSave, err)
	}

	snap := ctrl.Snapshot()
	if snap.State.Active != wizard.StepFinish {
		return fail(stepSave, fmt.Errorf("batch stopped at %q", snap.State.Active.Title()))
	}
	onStep(stepSave, ui.StepComplete, "")
	return snap, nil
}

// waitForPairing returns once every device paired. Expired pin codes are
// refreshed up to plan.MaxRefreshes times per device.
func waitForPairing(ctx context.Context, ctrl *wizard.Controller, changed <-chan struct{}, plan pairPlan, timeout time.Duration, out io.Writer) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	reported := make(map[int]batch.PairingStatus)
	refreshes := make(map[int]int)

	for {
		snap := ctrl.Snapshot()
		if snap.Exited {
			return errors.New("batch was cancelled")
		}
		if snap.State.Active != wizard.StepConfirmPinCode {
			return fmt.Errorf("batch returned to %q", snap.State.Active.Title())
		}

		var failed []string
		for _, e := range snap.Entries {
			if prev, ok := reported[e.Key]; !ok || prev != e.PairingStatus {
				reported[e.Key] = e.PairingStatus
				if e.PairingStatus != batch.PairingNotStarted {
					fmt.Fprintf(out, "  %-20s %s\n", e.SerialNumber, e.PairingStatus)
				}
			}
			if e.PairingStatus == batch.PairingFailed {
				failed = append(failed, e.SerialNumber)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("pairing failed for %s", strings.Join(failed, ", "))
		}
		if snap.CanAdvance {
			return nil
		}

		for _, e := range snap.Entries {
			secs, ok := snap.Countdowns[e.Key]
			if !ok || secs > 0 || !e.HasPinCode() || !e.AwaitingConfirmation() {
				continue
			}
			if refreshes[e.Key] >= plan.MaxRefreshes {
				return fmt.Errorf("pin code for %s expired", e.SerialNumber)
			}
			refreshes[e.Key]++
			if err := ctrl.RefreshPinCode(ctx, e.Key); err != nil {
				return err
			}
			if fresh, ok := ctrl.Snapshot().Entry(e.Key); ok {
				fmt.Fprintf(out, "  %-20s new pin code %s\n", fresh.SerialNumber, fresh.PinCode)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("devices did not confirm within %s", timeout)
		case <-ctrl.Done():
		case <-changed:
		}
	}
}

func invalidSerials(snap wizard.Snapshot, out io.Writer) error {
	var invalid []string
	for _, e := range snap.Entries {
		if e.SerialValidity == batch.SerialValid {
			continue
		}
		reason := e.SerialError
		if reason == "" {
			reason = "not checked"
		}
		fmt.Fprintf(out, "  %s %-20s %s\n", ui.FailureMarker, e.SerialNumber, reason)
		invalid = append(invalid, e.SerialNumber)
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%d serial number(s) rejected", len(invalid))
	}
	return nil
}

func printPinCodes(snap wizard.Snapshot, out io.Writer) {
	fmt.Fprintln(out, "\nEnter these pin codes on the devices:")
	fmt.Fprintf(out, "  %-20s %-10s %-10s %s\n", "SERIAL", "PIN CODE", "EXPIRES", "TYPE")
	for _, e := range snap.Entries {
		fmt.Fprintf(out, "  %-20s %-10s %-10s %s\n",
			e.SerialNumber, e.PinCode, countdown.Format(snap.Countdowns[e.Key]), e.DeviceType)
	}
	fmt.Fprintln(out)
}

// progress is the observer of a headless run. It prints notices and
// signals state changes to the waiting loop.
type progress struct {
	out     io.Writer
	changed chan struct{}
}

var _ wizard.Observer = (*progress)(nil)

func newProgress(out io.Writer) *progress {
	return &progress{out: out, changed: make(chan struct{}, 1)}
}

func (p *progress) StateChanged(wizard.Snapshot) { p.signal() }

func (p *progress) CountdownTick(key, seconds int) {
	if seconds == 0 {
		p.signal()
	}
}

func (p *progress) Notify(n wizard.Notice) {
	logging.Debug("Notice", zap.String("level", n.Level.String()), zap.String("message", n.Message))
	fmt.Fprintf(p.out, "  [%s] %s\n", n.Level, n.Message)
	if n.Hint != "" {
		fmt.Fprintf(p.out, "         %s\n", n.Hint)
	}
}

func (p *progress) signal() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// syncWriter serializes writes from the observer and the main loop
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}
