package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/countdown"
	"github.com/muurk/batchpair/internal/logging"
	"github.com/muurk/batchpair/internal/pairingapi"
	"github.com/muurk/batchpair/internal/poller"
)

// DefaultRequestTimeout bounds each call to the pairing service
const DefaultRequestTimeout = 10 * time.Second

const msgDuplicateSerial = "serial number already in this batch"

// Option configures a Controller
type Option func(*Controller)

// WithClock sets the clock driving the poller and the countdowns
func WithClock(c clock.WithTicker) Option {
	return func(ctrl *Controller) {
		if c != nil {
			ctrl.clock = c
		}
	}
}

// WithPollInterval sets how often pairing status is polled
func WithPollInterval(d time.Duration) Option {
	return func(ctrl *Controller) {
		if d > 0 {
			ctrl.pollInterval = d
		}
	}
}

// WithRequestTimeout bounds each call to the pairing service
func WithRequestTimeout(d time.Duration) Option {
	return func(ctrl *Controller) {
		if d > 0 {
			ctrl.requestTimeout = d
		}
	}
}

// WithObserver registers the receiver of state updates
func WithObserver(o Observer) Option {
	return func(ctrl *Controller) {
		if o != nil {
			ctrl.observer = o
		}
	}
}

type timerStart struct {
	timer  *countdown.Timer
	onTick func(int)
}

// Controller runs one pairing batch
type Controller struct {
	api            pairingapi.API
	clock          clock.WithTicker
	pollInterval   time.Duration
	requestTimeout time.Duration
	observer       Observer
	sessionID      string

	ctx     context.Context
	cancel  context.CancelFunc
	poller  *poller.Poller
	pending sync.WaitGroup

	mu         sync.Mutex
	store      *batch.Store
	state      State
	revision   uint64
	epoch      uint64
	timers     map[int]*countdown.Timer
	remaining  map[int]int
	committing bool
	exited     bool
	closed     bool
	done       chan struct{}
	doneOnce   sync.Once

	// delivered after the lock is released
	starts  []timerStart
	notices []Notice
}

// New creates a controller for an empty batch
func New(api pairingapi.API, opts ...Option) *Controller {
	c := &Controller{
		api:            api,
		clock:          clock.RealClock{},
		pollInterval:   poller.DefaultInterval,
		requestTimeout: DefaultRequestTimeout,
		observer:       nopObserver{},
		sessionID:      uuid.NewString(),
		store:          batch.NewStore(),
		state:          Initial(),
		timers:         make(map[int]*countdown.Timer),
		remaining:      make(map[int]int),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.poller = poller.New("pairing-status", c.clock, c.pollInterval, c.RefreshStatus)

	logging.Debug("Pairing wizard created",
		zap.String("session", c.sessionID),
		zap.Duration("poll_interval", c.pollInterval),
	)
	return c
}

// SessionID identifies this batch in logs
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Done is closed when the wizard exits or the controller is closed
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// CanAdvance reports whether Next would attempt a commit
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canAdvanceLocked()
}

// AddDevice appends a device and returns its key. The wizard returns to
// serial entry. It returns 0 once the wizard is closed.
func (c *Controller) AddDevice(serial string) int {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return 0
	}

	serial = batch.NormalizeSerial(serial)
	key := c.store.Add(batch.Entry{SerialNumber: serial, Selected: true})
	c.epoch++
	if serial != "" {
		c.validateLocalLocked(key)
	}
	c.transitionLocked(EventItemAdded)
	c.release(true)
	return key
}

// RemoveDevice removes one device and cancels its pairing
func (c *Controller) RemoveDevice(key int) error {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	e, ok := c.store.Get(key)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("remove %d: %w", key, ErrUnknownDevice)
	}

	c.removeLocked(key)
	if pairingStarted(e) {
		c.cancelPairingLocked([]string{e.SerialNumber})
	}
	c.refreshDuplicatesLocked()
	c.transitionLocked(EventItemRemoved)
	c.release(true)
	return nil
}

// RemoveSelected removes every selected device and returns how many
func (c *Controller) RemoveSelected() int {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return 0
	}

	keys := c.store.SelectedKeys()
	if len(keys) == 0 {
		c.release(false)
		return 0
	}

	var serials []string
	for _, key := range keys {
		e, _ := c.store.Get(key)
		if pairingStarted(e) {
			serials = append(serials, e.SerialNumber)
		}
		c.removeLocked(key)
	}
	c.cancelPairingLocked(serials)
	c.refreshDuplicatesLocked()
	c.transitionLocked(EventItemRemoved)
	c.release(true)
	return len(keys)
}

// SetSelected checks or unchecks one device
func (c *Controller) SetSelected(key int, selected bool) error {
	return c.update(key, batch.Patch{Selected: batch.Bool(selected)})
}

// SelectAll checks or unchecks every device
func (c *Controller) SelectAll(selected bool) {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return
	}
	c.store.SelectAll(selected)
	c.transitionLocked(EventItemsChanged)
	c.release(true)
}

// SetName sets the display name sent with the final settings
func (c *Controller) SetName(key int, name string) error {
	return c.update(key, batch.Patch{Name: batch.String(name)})
}

// SetGroups sets the device groups sent with the final settings.
// Blank and repeated group ids are dropped.
func (c *Controller) SetGroups(key int, groups []string) error {
	return c.update(key, batch.Patch{GroupIDs: batch.Strings(cleanGroups(groups))})
}

func (c *Controller) update(key int, p batch.Patch) error {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, err := c.store.Set(key, p); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("update %d: %w", key, ErrUnknownDevice)
	}
	c.transitionLocked(EventItemsChanged)
	c.release(true)
	return nil
}

// SetSerial replaces the serial number of a device. The new serial is
// checked locally; the remote check happens in CheckSerial.
func (c *Controller) SetSerial(key int, serial string) error {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	e, ok := c.store.Get(key)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("set serial %d: %w", key, ErrUnknownDevice)
	}
	if c.state.Active != StepEnterSN {
		c.mu.Unlock()
		return ErrSerialLocked
	}

	serial = batch.NormalizeSerial(serial)
	if serial == e.SerialNumber {
		c.mu.Unlock()
		return nil
	}

	_, _ = c.store.Set(key, batch.Patch{
		SerialNumber:   batch.String(serial),
		SerialValidity: batch.Validity(batch.SerialUnknown),
		SerialError:    batch.String(""),
		DeviceType:     batch.String(""),
	})
	c.epoch++
	if serial != "" {
		c.validateLocalLocked(key)
	}
	c.refreshDuplicatesLocked()
	c.transitionLocked(EventItemsChanged)
	c.release(true)
	return nil
}

// CheckSerial validates the serial of a device, locally first and then
// with the pairing service. The result is dropped if the device was
// removed or its serial changed while the check was in flight.
func (c *Controller) CheckSerial(ctx context.Context, key int) error {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	e, ok := c.store.Get(key)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("check serial %d: %w", key, ErrUnknownDevice)
	}
	if c.state.Active != StepEnterSN {
		c.mu.Unlock()
		return ErrSerialLocked
	}
	if !c.validateLocalLocked(key) {
		c.transitionLocked(EventItemsChanged)
		c.release(true)
		return nil
	}
	serial := e.SerialNumber
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	res, err := c.api.CheckSerial(callCtx, serial)
	cancel()

	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	cur, ok := c.store.Get(key)
	if !ok || cur.SerialNumber != serial || c.state.Active != StepEnterSN {
		logging.Debug("Dropping stale serial check",
			zap.Int("key", key),
			zap.String("serial", serial),
		)
		c.mu.Unlock()
		return nil
	}

	if err != nil {
		if pairingapi.IsAuthError(err) {
			c.sessionErrorLocked(err)
			c.release(true)
			return err
		}
		_, _ = c.store.Set(key, batch.Patch{
			SerialValidity: batch.Validity(batch.SerialUnknown),
			SerialError:    batch.String(pairingapi.GetShortErrorMessage(err)),
		})
		c.transitionLocked(EventItemsChanged)
		c.release(true)
		return fmt.Errorf("check serial %s: %w", serial, err)
	}

	if res.IsSuccess {
		_, _ = c.store.Set(key, batch.Patch{
			SerialValidity: batch.Validity(batch.SerialValid),
			SerialError:    batch.String(""),
			DeviceType:     batch.String(res.DeviceType),
		})
	} else {
		reason := res.ErrorInfo
		if reason == "" {
			reason = "serial number rejected by pairing service"
		}
		_, _ = c.store.Set(key, batch.Patch{
			SerialValidity: batch.Validity(batch.SerialInvalid),
			SerialError:    batch.String(reason),
		})
	}
	c.transitionLocked(EventItemsChanged)
	c.release(true)
	return nil
}

// RefreshPinCode asks for a new pin code for one device. Its pairing
// status starts over and its countdown restarts.
func (c *Controller) RefreshPinCode(ctx context.Context, key int) error {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	e, ok := c.store.Get(key)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("refresh pin code %d: %w", key, ErrUnknownDevice)
	}
	if !e.HasPinCode() || c.state.Active != StepConfirmPinCode {
		c.mu.Unlock()
		return ErrNoPinCode
	}
	serial := e.SerialNumber
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	pin, err := c.api.RefreshPinCode(callCtx, serial)
	cancel()

	var expiry time.Time
	if err == nil {
		var perr error
		if expiry, perr = pin.Expiry(); perr != nil {
			err = pairingapi.NewParseError(pairingapi.OpRefreshPinCode, "invalid pin code expiry", perr)
		}
	}

	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	cur, ok := c.store.Get(key)
	if !ok || cur.SerialNumber != serial || c.state.Active != StepConfirmPinCode {
		logging.Debug("Dropping stale pin code", zap.Int("key", key), zap.String("serial", serial))
		c.mu.Unlock()
		return nil
	}

	if err != nil {
		if pairingapi.IsAuthError(err) {
			c.sessionErrorLocked(err)
		} else {
			c.notices = append(c.notices, errorNotice("Refresh pin code for "+serial, err))
		}
		c.release(true)
		return fmt.Errorf("refresh pin code %s: %w", serial, err)
	}

	_, _ = c.store.Set(key, batch.Patch{
		PinCode:       batch.String(pin.PinCode),
		PinCodeExpiry: batch.Time(expiry),
		PairingStatus: batch.Status(batch.PairingNotStarted),
	})
	c.startCountdownLocked(key, expiry)
	c.transitionLocked(EventItemsChanged)
	c.release(true)
	return nil
}

// Next commits the active step and, on success, moves to the next one.
// A failed commit leaves the wizard state unchanged and is reported both
// as the returned error and as a Notice.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.committing {
		c.mu.Unlock()
		return ErrCommitInProgress
	}
	if !c.canAdvanceLocked() {
		c.mu.Unlock()
		return ErrCannotAdvance
	}

	from := c.state.Active
	epoch := c.epoch
	entries := c.store.Values()
	c.committing = true
	c.release(true)

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	switch from {
	case StepEnterSN:
		return c.commitStepOne(callCtx, epoch, entries)
	case StepConfirmPinCode:
		return c.commitStepTwo(callCtx, epoch, entries)
	default:
		return c.commitStepThree(callCtx, epoch, entries)
	}
}

type issuedPin struct {
	code       string
	expiry     time.Time
	deviceType string
}

func (c *Controller) commitStepOne(ctx context.Context, epoch uint64, entries []batch.Entry) error {
	serials := serialsOf(entries)
	results, err := c.api.StepOne(ctx, serials)

	var pins map[string]issuedPin
	if err == nil {
		pins, err = collectPins(serials, results)
	}

	c.mu.Lock()
	if ferr := c.endCommitLocked(StepEnterSN, epoch); ferr != nil {
		if errors.Is(ferr, ErrBatchChanged) {
			c.cancelPairingLocked(issuedSerials(results))
		}
		c.release(true)
		return ferr
	}

	if err != nil {
		c.cancelPairingLocked(issuedSerials(results))
		c.failCommitLocked(StepEnterSN, err)
		for _, r := range results {
			if r.ErrorInfo == "" {
				continue
			}
			if e, ok := c.store.FindBySerial(r.DeviceSN); ok {
				_, _ = c.store.Set(e.Key, batch.Patch{
					SerialValidity: batch.Validity(batch.SerialInvalid),
					SerialError:    batch.String(r.ErrorInfo),
				})
			}
		}
		c.transitionLocked(EventItemsChanged)
		c.release(true)
		return fmt.Errorf("step 1: %w", err)
	}

	for _, e := range entries {
		pin := pins[e.SerialNumber]
		p := batch.Patch{
			PinCode:       batch.String(pin.code),
			PinCodeExpiry: batch.Time(pin.expiry),
			PairingStatus: batch.Status(batch.PairingNotStarted),
		}
		if pin.deviceType != "" {
			p.DeviceType = batch.String(pin.deviceType)
		}
		_, _ = c.store.Set(e.Key, p)
		c.startCountdownLocked(e.Key, pin.expiry)
	}
	c.transitionLocked(EventAdvanced)
	c.release(true)
	return nil
}

// collectPins checks that every serial received a usable pin code
func collectPins(serials []string, results []pairingapi.PinCodeResult) (map[string]issuedPin, error) {
	pins := make(map[string]issuedPin, len(results))
	for _, r := range results {
		if r.Failed() {
			return nil, pairingapi.NewRejectedError(pairingapi.OpStepOne, r.ErrorInfo)
		}
		expiry, err := r.Expiry()
		if err != nil {
			return nil, pairingapi.NewParseError(pairingapi.OpStepOne, "invalid pin code expiry for "+r.DeviceSN, err)
		}
		pins[r.DeviceSN] = issuedPin{code: r.PinCode, expiry: expiry, deviceType: r.DeviceType}
	}
	for _, sn := range serials {
		if _, ok := pins[sn]; !ok {
			return nil, pairingapi.NewParseError(pairingapi.OpStepOne, "no pin code issued for "+sn, nil)
		}
	}
	return pins, nil
}

func (c *Controller) commitStepTwo(ctx context.Context, epoch uint64, entries []batch.Entry) error {
	err := c.api.StepTwo(ctx, serialsOf(entries))

	c.mu.Lock()
	if ferr := c.endCommitLocked(StepConfirmPinCode, epoch); ferr != nil {
		c.release(true)
		return ferr
	}
	if err != nil {
		c.failCommitLocked(StepConfirmPinCode, err)
		c.release(true)
		return fmt.Errorf("step 2: %w", err)
	}
	c.transitionLocked(EventAdvanced)
	c.release(true)
	return nil
}

func (c *Controller) commitStepThree(ctx context.Context, epoch uint64, entries []batch.Entry) error {
	settings := make([]pairingapi.DeviceSettings, 0, len(entries))
	for _, e := range entries {
		groups := e.GroupIDs
		if groups == nil {
			groups = []string{}
		}
		settings = append(settings, pairingapi.DeviceSettings{
			DeviceSN: e.SerialNumber,
			Name:     strings.TrimSpace(e.Name),
			GroupIDs: groups,
		})
	}
	err := c.api.StepThree(ctx, settings)

	c.mu.Lock()
	if ferr := c.endCommitLocked(StepDevicesSetting, epoch); ferr != nil {
		c.release(true)
		return ferr
	}
	if err != nil {
		c.failCommitLocked(StepDevicesSetting, err)
		c.release(true)
		return fmt.Errorf("step 3: %w", err)
	}
	c.transitionLocked(EventAdvanced)
	c.exitLocked()
	logging.Info("Pairing batch committed",
		zap.String("session", c.sessionID),
		zap.Int("devices", len(settings)),
	)
	c.release(true)
	return nil
}

// endCommitLocked clears the busy flag and reports whether the commit
// result still applies to the batch
func (c *Controller) endCommitLocked(from Step, epoch uint64) error {
	c.committing = false
	if c.inactiveLocked() {
		return ErrClosed
	}
	if c.state.Active != from || c.epoch != epoch {
		c.notices = append(c.notices, Notice{
			Level:   NoticeWarning,
			Message: commitLabel(from) + " was interrupted because the batch changed. Try again.",
		})
		return ErrBatchChanged
	}
	return nil
}

func (c *Controller) failCommitLocked(from Step, err error) {
	if pairingapi.IsAuthError(err) {
		c.sessionErrorLocked(err)
		return
	}
	logging.Warn("Step commit failed",
		zap.String("session", c.sessionID),
		zap.String("step", from.String()),
		zap.Error(err),
	)
	c.notices = append(c.notices, errorNotice(commitLabel(from)+" failed", err))
}

func commitLabel(step Step) string {
	switch step {
	case StepEnterSN:
		return "Issuing pin codes"
	case StepConfirmPinCode:
		return "Confirming pairing"
	default:
		return "Saving device settings"
	}
}

// RefreshStatus polls the pairing status of every device still awaiting a
// result. It is the poller tick and may also be called directly. Results
// only move a device forward and are dropped for devices whose pin code
// changed while the poll was in flight.
func (c *Controller) RefreshStatus(ctx context.Context) error {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Active != StepConfirmPinCode {
		c.mu.Unlock()
		return nil
	}
	asked := make(map[string]string)
	var serials []string
	for _, e := range c.store.Values() {
		if e.HasPinCode() && e.AwaitingConfirmation() {
			asked[e.SerialNumber] = e.PinCode
			serials = append(serials, e.SerialNumber)
		}
	}
	c.mu.Unlock()

	if len(serials) == 0 {
		return nil
	}

	callCtx, cancel := c.callContext(ctx)
	results, err := c.api.PollStatus(callCtx, serials)
	cancel()

	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		if pairingapi.IsAuthError(err) {
			c.sessionErrorLocked(err)
			c.release(true)
			return err
		}
		c.mu.Unlock()
		return fmt.Errorf("poll status: %w", err)
	}
	if c.state.Active != StepConfirmPinCode {
		c.mu.Unlock()
		return nil
	}

	changed := false
	for _, r := range results {
		pinCode, ok := asked[r.DeviceSN]
		if !ok {
			continue
		}
		e, ok := c.store.FindBySerial(r.DeviceSN)
		if !ok || e.PinCode != pinCode {
			continue
		}
		status := batch.PairingStatus(r.ResultCode)
		if !e.PairingStatus.Advances(status) {
			continue
		}
		_, _ = c.store.Set(e.Key, batch.Patch{PairingStatus: batch.Status(status)})
		if status == batch.PairingSuccess {
			c.stopCountdownLocked(e.Key)
		}
		changed = true
	}

	var pending, paired, failed int
	for _, e := range c.store.Values() {
		switch e.PairingStatus {
		case batch.PairingSuccess:
			paired++
		case batch.PairingFailed:
			failed++
		default:
			pending++
		}
	}
	logging.LogPollResult(pending, paired, failed)

	if changed {
		c.transitionLocked(EventItemsChanged)
	}
	c.release(changed)
	return nil
}

// Cancel abandons the whole batch: pairing is cancelled for every device
// that started it and the wizard exits
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return
	}
	c.cancelPairingLocked(c.store.Serials(pairingStarted))
	c.exitLocked()
	logging.Info("Pairing batch cancelled", zap.String("session", c.sessionID))
	c.release(true)
}

// SessionError reports that the session backing the batch is no longer
// valid. The wizard returns to its initial state.
func (c *Controller) SessionError(err error) {
	c.mu.Lock()
	if c.inactiveLocked() {
		c.mu.Unlock()
		return
	}
	c.sessionErrorLocked(err)
	c.release(true)
}

// Close stops the poller and every countdown and waits for outstanding
// cancel calls. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.poller.Stop()
	c.stopCountdownsLocked()
	c.doneOnce.Do(func() { close(c.done) })
	c.mu.Unlock()

	c.cancel()
	c.pending.Wait()
}

func (c *Controller) sessionErrorLocked(err error) {
	logging.Warn("Pairing session rejected, resetting wizard",
		zap.String("session", c.sessionID),
		zap.Error(err),
	)
	c.transitionLocked(EventSessionError)
	notice := Notice{Level: NoticeWarning, Message: "Session error", Err: err}
	if err != nil {
		notice.Message = pairingapi.GetShortErrorMessage(err)
		notice.Hint = pairingapi.GetTroubleshootingHint(err)
	}
	c.notices = append(c.notices, notice)
}

// transitionLocked runs the reducer for ev and applies its effects
func (c *Controller) transitionLocked(ev Event) {
	prev := c.state
	next, fx := Reduce(prev, ev, batch.Evaluate(c.store.Values()))
	c.state = next
	if next != prev {
		logging.LogStepTransition(ev.String(), prev.String(), next.String())
	}

	if fx.StopCountdowns {
		c.stopCountdownsLocked()
	}
	if fx.ClearPairing {
		c.clearPairingLocked()
	}
	switch {
	case fx.StopPoller:
		c.poller.Stop()
	case fx.RestartPoller:
		c.poller.Start(c.ctx)
	case fx.StartPoller:
		c.poller.EnsureRunning(c.ctx)
	}
}

// clearPairingLocked discards issued pin codes and results. The service
// is told to cancel those pairings first, since afterwards nothing marks
// them as started.
func (c *Controller) clearPairingLocked() {
	c.epoch++
	c.cancelPairingLocked(c.store.Serials(pairingStarted))
	for _, e := range c.store.Values() {
		if !pairingStarted(e) {
			continue
		}
		_, _ = c.store.Set(e.Key, batch.Patch{
			PinCode:       batch.String(""),
			PinCodeExpiry: batch.Time(time.Time{}),
			PairingStatus: batch.Status(batch.PairingNotStarted),
		})
	}
}

func (c *Controller) exitLocked() {
	c.exited = true
	c.poller.Stop()
	c.stopCountdownsLocked()
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Controller) removeLocked(key int) {
	c.stopCountdownLocked(key)
	delete(c.remaining, key)
	c.store.Remove(key)
	c.epoch++
}

// validateLocalLocked applies the local serial rules to one entry and
// reports whether it passed
func (c *Controller) validateLocalLocked(key int) bool {
	e, ok := c.store.Get(key)
	if !ok {
		return false
	}
	msg := batch.ValidateSerialFormat(e.SerialNumber)
	if msg == "" && c.store.DuplicateSerial(key, e.SerialNumber) {
		msg = msgDuplicateSerial
	}
	if msg == "" {
		return true
	}
	_, _ = c.store.Set(key, batch.Patch{
		SerialValidity: batch.Validity(batch.SerialInvalid),
		SerialError:    batch.String(msg),
	})
	return false
}

// refreshDuplicatesLocked clears duplicate flags that no longer apply
func (c *Controller) refreshDuplicatesLocked() {
	for _, e := range c.store.Values() {
		if e.SerialError == msgDuplicateSerial && !c.store.DuplicateSerial(e.Key, e.SerialNumber) {
			_, _ = c.store.Set(e.Key, batch.Patch{
				SerialValidity: batch.Validity(batch.SerialUnknown),
				SerialError:    batch.String(""),
			})
		}
	}
}

func (c *Controller) startCountdownLocked(key int, expiry time.Time) {
	c.stopCountdownLocked(key)
	t := countdown.New(c.clock, expiry)
	c.timers[key] = t
	c.remaining[key] = countdown.RemainingSeconds(expiry, c.clock.Now())
	c.starts = append(c.starts, timerStart{timer: t, onTick: c.countdownTick(key, t)})
}

func (c *Controller) countdownTick(key int, t *countdown.Timer) func(int) {
	return func(seconds int) {
		c.mu.Lock()
		if c.timers[key] != t {
			c.mu.Unlock()
			t.Stop()
			return
		}
		c.remaining[key] = seconds
		if seconds == 0 {
			delete(c.timers, key)
		}
		c.mu.Unlock()
		c.observer.CountdownTick(key, seconds)
	}
}

func (c *Controller) stopCountdownLocked(key int) {
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
}

func (c *Controller) stopCountdownsLocked() {
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
	}
	clear(c.remaining)
}

// cancelPairingLocked sends a best-effort cancel for serials. Local state
// never waits for it; Close does.
func (c *Controller) cancelPairingLocked(serials []string) {
	if len(serials) == 0 {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		if err := c.api.CancelPairing(ctx, serials); err != nil {
			logging.Debug("Cancel pairing failed",
				zap.Strings("serials", serials),
				zap.Error(err),
			)
		}
	}()
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = c.ctx
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func (c *Controller) inactiveLocked() bool {
	return c.closed || c.exited
}

func (c *Controller) canAdvanceLocked() bool {
	if c.inactiveLocked() {
		return false
	}
	return CanAdvance(c.state, batch.Evaluate(c.store.Values()), c.store.AnySelected())
}

func (c *Controller) snapshotLocked() Snapshot {
	entries := c.store.Values()
	gate := batch.Evaluate(entries)
	countdowns := make(map[int]int, len(c.remaining))
	for k, v := range c.remaining {
		countdowns[k] = v
	}
	return Snapshot{
		Revision:   c.revision,
		SessionID:  c.sessionID,
		State:      c.state,
		Entries:    entries,
		Gate:       gate,
		CanAdvance: !c.inactiveLocked() && CanAdvance(c.state, gate, c.store.AnySelected()),
		Countdowns: countdowns,
		Polling:    c.poller.Running(),
		Busy:       c.committing,
		Exited:     c.exited,
	}
}

// release unlocks the controller and delivers queued work. With changed
// set, a new revision is published to the observer.
func (c *Controller) release(changed bool) {
	var snap Snapshot
	if changed {
		c.revision++
		snap = c.snapshotLocked()
	}
	starts, notices := c.starts, c.notices
	c.starts, c.notices = nil, nil
	c.mu.Unlock()

	if changed {
		c.observer.StateChanged(snap)
	}
	for _, n := range notices {
		c.observer.Notify(n)
	}
	for _, s := range starts {
		s.timer.Start(s.onTick)
	}
}

// pairingStarted reports whether the service may hold pairing state for e
func pairingStarted(e batch.Entry) bool {
	return e.SerialNumber != "" && (e.HasPinCode() || e.PairingStatus != batch.PairingNotStarted)
}

// issuedSerials lists the devices a step-one response gave a pin code
func issuedSerials(results []pairingapi.PinCodeResult) []string {
	var serials []string
	for _, r := range results {
		if r.PinCode != "" && r.ErrorInfo == "" {
			serials = append(serials, r.DeviceSN)
		}
	}
	return serials
}

func serialsOf(entries []batch.Entry) []string {
	serials := make([]string, 0, len(entries))
	for _, e := range entries {
		serials = append(serials, e.SerialNumber)
	}
	return serials
}

func cleanGroups(groups []string) []string {
	seen := make(map[string]bool, len(groups))
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}
