package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/wizard"
)

// Controller is the part of the pairing wizard the UI drives.
// *wizard.Controller implements it.
type Controller interface {
	Snapshot() wizard.Snapshot
	AddDevice(serial string) int
	RemoveDevice(key int) error
	RemoveSelected() int
	SetSelected(key int, selected bool) error
	SelectAll(selected bool)
	SetSerial(key int, serial string) error
	SetName(key int, name string) error
	SetGroups(key int, groups []string) error
	CheckSerial(ctx context.Context, key int) error
	RefreshPinCode(ctx context.Context, key int) error
	Next(ctx context.Context) error
	Cancel()
}

var _ Controller = (*wizard.Controller)(nil)

// Suggester pre-fills the name and groups of a serial seen before
type Suggester interface {
	Suggest(serial string) (name string, groups []string)
}

// Options configures the batch screen
type Options struct {
	// Context bounds every controller call made by the UI
	Context context.Context

	Suggester Suggester

	// Scan discovers serials of devices waiting to be paired. Nil
	// disables the discover key.
	Scan ScanFunc

	// AutoDiscover starts a scan when the screen opens
	AutoDiscover bool

	// Initial terminal size, until the first tea.WindowSizeMsg
	Width  int
	Height int
}

// field is an editable column of the batch table
type field int

const (
	fieldSerial field = iota
	fieldName
	fieldGroups
)

func (f field) String() string {
	switch f {
	case fieldSerial:
		return "Serial"
	case fieldName:
		return "Name"
	default:
		return "Groups"
	}
}

// opDoneMsg reports the end of an asynchronous controller call
type opDoneMsg struct {
	label string
	err   error
}

// Model is the batch pairing screen
type Model struct {
	ctrl      Controller
	ctx       context.Context
	suggester Suggester
	scan      ScanFunc

	snap wizard.Snapshot

	// cursor indexes snap.Entries; cursorKey keeps it on the same device
	// when entries come and go
	cursor    int
	cursorKey int
	field     field

	editing bool
	editKey int
	input   textinput.Model

	pending   int
	busyLabel string
	scanning  bool

	notice *wizard.Notice

	finished bool
	quitting bool

	Width  int
	Height int

	Spinner  spinner.Model
	Help     help.Model
	Keys     keyMap
	EditKeys editKeyMap

	autoDiscover bool
}

// NewModel creates the batch screen over ctrl
func NewModel(ctrl Controller, opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Prompt = "› "
	input.PromptStyle = FocusedInputStyle
	input.Width = 40

	width, height := opts.Width, opts.Height
	if width == 0 {
		width = DefaultWidth
	}
	if height == 0 {
		height = DefaultHeight
	}

	m := Model{
		ctrl:         ctrl,
		ctx:          ctx,
		suggester:    opts.Suggester,
		scan:         opts.Scan,
		input:        input,
		Width:        width,
		Height:       height,
		Spinner:      s,
		Help:         help.New(),
		Keys:         newKeyMap(),
		EditKeys:     newEditKeyMap(),
		autoDiscover: opts.AutoDiscover,
	}
	m.refresh()
	return m
}

// Init starts the spinner and, when configured, a discovery scan
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.Spinner.Tick}
	if m.autoDiscover && m.scan != nil {
		cmds = append(cmds, func() tea.Msg { return startScanMsg{} })
	}
	return tea.Batch(cmds...)
}

// Finished reports whether the wizard completed its final step
func (m Model) Finished() bool {
	return m.finished
}

// Snapshot returns the last controller state the screen rendered
func (m Model) Snapshot() wizard.Snapshot {
	return m.snap
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width - 4
		return m, nil

	case snapshotMsg:
		if msg.snap.Revision < m.snap.Revision {
			return m, nil
		}
		m.apply(msg.snap)
		return m, m.exitCmd()

	case countdownMsg:
		if m.snap.Countdowns == nil {
			m.snap.Countdowns = make(map[int]int)
		}
		m.snap.Countdowns[msg.key] = msg.seconds
		return m, nil

	case noticeMsg:
		n := msg.notice
		m.notice = &n
		return m, nil

	case opDoneMsg:
		if m.pending > 0 {
			m.pending--
		}
		if m.pending == 0 {
			m.busyLabel = ""
		}
		if n, ok := localNotice(msg.label, msg.err); ok {
			m.notice = &n
		}
		m.refresh()
		return m, m.exitCmd()

	case startScanMsg:
		return m.startScan()

	case scanDoneMsg:
		return m.scanDone(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateNormal(msg)
	}

	return m, nil
}

// updateNormal handles keyboard input while browsing the batch
func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.Keys.Quit) {
		m.quitting = true
		if !m.snap.Exited {
			m.ctrl.Cancel()
		}
		return m, tea.Quit
	}
	if m.snap.Exited {
		return m, nil
	}

	entry, hasEntry := m.current()

	switch {
	case key.Matches(msg, m.Keys.Up):
		m.move(-1)

	case key.Matches(msg, m.Keys.Down):
		m.move(1)

	case key.Matches(msg, m.Keys.Column):
		m.field = m.nextField(m.field)

	case key.Matches(msg, m.Keys.Add):
		k := m.ctrl.AddDevice("")
		if k == 0 {
			return m, nil
		}
		m.cursorKey = k
		m.field = fieldSerial
		m.refresh()
		cmd := m.startEdit(k, fieldSerial)
		return m, cmd

	case key.Matches(msg, m.Keys.Edit):
		if hasEntry {
			f := m.field
			if !m.editable(f) {
				f = m.nextField(f)
			}
			if m.editable(f) {
				cmd := m.startEdit(entry.Key, f)
				return m, cmd
			}
		}

	case key.Matches(msg, m.Keys.Toggle):
		if hasEntry {
			m.report(m.ctrl.SetSelected(entry.Key, !entry.Selected))
		}

	case key.Matches(msg, m.Keys.ToggleAll):
		m.ctrl.SelectAll(!allSelected(m.snap.Entries))
		m.refresh()

	case key.Matches(msg, m.Keys.Remove):
		if hasEntry {
			m.report(m.ctrl.RemoveDevice(entry.Key))
		}

	case key.Matches(msg, m.Keys.RemoveSelected):
		if n := m.ctrl.RemoveSelected(); n > 0 {
			m.info(fmt.Sprintf("Removed %d device(s)", n))
		}
		m.refresh()

	case key.Matches(msg, m.Keys.Check):
		if hasEntry {
			cmd := m.run("Checking "+entry.SerialNumber, func(ctx context.Context) error {
				return m.ctrl.CheckSerial(ctx, entry.Key)
			})
			return m, cmd
		}

	case key.Matches(msg, m.Keys.CheckAll):
		cmd := m.checkAll()
		return m, cmd

	case key.Matches(msg, m.Keys.Refresh):
		if hasEntry {
			cmd := m.run("Requesting a new pin code for "+entry.SerialNumber, func(ctx context.Context) error {
				return m.ctrl.RefreshPinCode(ctx, entry.Key)
			})
			return m, cmd
		}

	case key.Matches(msg, m.Keys.Next):
		if !m.snap.CanAdvance {
			n := wizard.Notice{Level: wizard.NoticeInfo, Message: blockedReason(m.snap)}
			m.notice = &n
			return m, nil
		}
		cmd := m.run(commitLabel(m.snap.State.Active), m.ctrl.Next)
		return m, cmd

	case key.Matches(msg, m.Keys.Discover):
		return m.startScan()

	case key.Matches(msg, m.Keys.Dismiss):
		m.notice = nil

	case key.Matches(msg, m.Keys.Help):
		m.Help.ShowAll = !m.Help.ShowAll
	}

	return m, nil
}

// updateEditing handles keyboard input while a field is being edited
func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.editing = false
		m.input.Blur()
		return m.updateNormal(msg)

	case key.Matches(msg, m.EditKeys.Cancel):
		m.editing = false
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.EditKeys.Confirm):
		cmd := m.commitEdit()
		return m, cmd

	case key.Matches(msg, m.EditKeys.Next):
		cmd := m.commitEdit()
		next := m.nextField(m.field)
		if next != m.field && m.editable(next) {
			if _, ok := m.snap.Entry(m.editKey); ok {
				editCmd := m.startEdit(m.editKey, next)
				return m, tea.Batch(cmd, editCmd)
			}
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// startEdit opens the inline editor for one field of an entry
func (m *Model) startEdit(entryKey int, f field) tea.Cmd {
	e, ok := m.snap.Entry(entryKey)
	if !ok {
		return nil
	}
	m.editing = true
	m.editKey = entryKey
	m.field = f

	m.input.Reset()
	switch f {
	case fieldSerial:
		m.input.Placeholder = "SN-000123"
		m.input.CharLimit = batch.MaxSerialLength
		m.input.SetValue(e.SerialNumber)
	case fieldName:
		m.input.Placeholder = "Living room sensor"
		m.input.CharLimit = 64
		m.input.SetValue(e.Name)
	case fieldGroups:
		m.input.Placeholder = "group-a, group-b"
		m.input.CharLimit = 256
		m.input.SetValue(strings.Join(e.GroupIDs, ", "))
	}
	m.input.CursorEnd()
	return m.input.Focus()
}

// commitEdit writes the edited value back to the controller. A changed
// serial is checked with the pairing service right away.
func (m *Model) commitEdit() tea.Cmd {
	m.editing = false
	m.input.Blur()
	value := m.input.Value()
	entryKey := m.editKey

	var cmd tea.Cmd
	switch m.field {
	case fieldSerial:
		if err := m.ctrl.SetSerial(entryKey, value); err != nil {
			m.report(err)
			return nil
		}
		serial := batch.NormalizeSerial(value)
		m.prefill(entryKey, serial)
		if serial != "" {
			cmd = m.run("Checking "+serial, func(ctx context.Context) error {
				return m.ctrl.CheckSerial(ctx, entryKey)
			})
		}
	case fieldName:
		m.report(m.ctrl.SetName(entryKey, strings.TrimSpace(value)))
	case fieldGroups:
		m.report(m.ctrl.SetGroups(entryKey, strings.Split(value, ",")))
	}
	m.refresh()
	return cmd
}

// prefill copies the remembered name and groups of serial onto an entry
// that has none yet
func (m *Model) prefill(entryKey int, serial string) {
	if m.suggester == nil || serial == "" {
		return
	}
	name, groups := m.suggester.Suggest(serial)
	e, ok := m.ctrl.Snapshot().Entry(entryKey)
	if !ok {
		return
	}
	if e.Name == "" && name != "" {
		_ = m.ctrl.SetName(entryKey, name)
	}
	if len(e.GroupIDs) == 0 && len(groups) > 0 {
		_ = m.ctrl.SetGroups(entryKey, groups)
	}
}

func (m *Model) checkAll() tea.Cmd {
	var cmds []tea.Cmd
	for _, e := range m.snap.Entries {
		if e.SerialNumber == "" || e.SerialValidity != batch.SerialUnknown {
			continue
		}
		entryKey := e.Key
		cmds = append(cmds, m.run("Checking serial numbers", func(ctx context.Context) error {
			return m.ctrl.CheckSerial(ctx, entryKey)
		}))
	}
	if len(cmds) == 0 {
		m.info("No unchecked serial numbers")
		return nil
	}
	return tea.Batch(cmds...)
}

// run executes a controller call off the event loop
func (m *Model) run(label string, fn func(context.Context) error) tea.Cmd {
	m.pending++
	m.busyLabel = label
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{label: label, err: fn(ctx)}
	}
}

// refresh pulls the current controller state
func (m *Model) refresh() {
	m.apply(m.ctrl.Snapshot())
}

func (m *Model) apply(snap wizard.Snapshot) {
	m.snap = snap
	if snap.Exited && snap.State.Active == wizard.StepFinish {
		m.finished = true
	}

	// Keep the cursor on the same device, else clamp it
	idx := -1
	for i, e := range snap.Entries {
		if e.Key == m.cursorKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = m.cursor
		if idx >= len(snap.Entries) {
			idx = len(snap.Entries) - 1
		}
		if idx < 0 {
			idx = 0
		}
	}
	m.cursor = idx
	if idx < len(snap.Entries) {
		m.cursorKey = snap.Entries[idx].Key
	}

	if m.editing {
		if _, ok := snap.Entry(m.editKey); !ok || !m.editable(m.field) {
			m.editing = false
			m.input.Blur()
		}
	}
	if !m.editable(m.field) {
		m.field = m.nextField(m.field)
	}
	m.syncKeys()
}

// exitCmd quits once the wizard has exited
func (m Model) exitCmd() tea.Cmd {
	if m.snap.Exited {
		return tea.Quit
	}
	return nil
}

func (m *Model) move(delta int) {
	if len(m.snap.Entries) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.snap.Entries) {
		m.cursor = len(m.snap.Entries) - 1
	}
	m.cursorKey = m.snap.Entries[m.cursor].Key
}

func (m Model) current() (batch.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Entries) {
		return batch.Entry{}, false
	}
	return m.snap.Entries[m.cursor], true
}

// editable reports whether f can be edited in the active step
func (m Model) editable(f field) bool {
	switch m.snap.State.Active {
	case wizard.StepEnterSN:
		return true
	case wizard.StepFinish:
		return false
	default:
		return f != fieldSerial
	}
}

func (m Model) nextField(f field) field {
	for i := 1; i <= 3; i++ {
		next := field((int(f) + i) % 3)
		if m.editable(next) {
			return next
		}
	}
	return f
}

// syncKeys enables the bindings that apply to the active step
func (m *Model) syncKeys() {
	step := m.snap.State.Active
	m.Keys.Check.SetEnabled(step == wizard.StepEnterSN)
	m.Keys.CheckAll.SetEnabled(step == wizard.StepEnterSN)
	m.Keys.Discover.SetEnabled(step == wizard.StepEnterSN && m.scan != nil)
	m.Keys.Refresh.SetEnabled(step == wizard.StepConfirmPinCode)
	m.Keys.Next.SetEnabled(step != wizard.StepFinish)
}

// report shows a synchronous controller error as a notice
func (m *Model) report(err error) {
	if n, ok := localNotice("", err); ok {
		m.notice = &n
	}
	m.refresh()
}

func (m *Model) info(msg string) {
	m.notice = &wizard.Notice{Level: wizard.NoticeInfo, Message: msg}
}

// localNotice turns errors the controller does not announce itself into a
// notice. Commit and session failures arrive through the observer, and
// serial check failures show inline.
func localNotice(label string, err error) (wizard.Notice, bool) {
	var msg string
	switch {
	case err == nil:
		return wizard.Notice{}, false
	case errors.Is(err, wizard.ErrSerialLocked):
		msg = "Serial numbers are locked once pin codes are issued"
	case errors.Is(err, wizard.ErrNoPinCode):
		msg = "This device has no pin code to refresh"
	case errors.Is(err, wizard.ErrCommitInProgress):
		msg = "Still working on the previous step"
	case errors.Is(err, wizard.ErrCannotAdvance):
		msg = "The batch cannot move to the next step yet"
	case errors.Is(err, wizard.ErrUnknownDevice):
		msg = "That device is no longer in the batch"
	default:
		return wizard.Notice{}, false
	}
	if label != "" {
		msg = label + ": " + msg
	}
	return wizard.Notice{Level: wizard.NoticeWarning, Message: msg, Err: err}, true
}

// blockedReason explains why the next step is not available
func blockedReason(s wizard.Snapshot) string {
	switch {
	case s.Gate.Empty:
		return "Add at least one device"
	case !anySelected(s.Entries):
		return "Select at least one device"
	case !s.Gate.AllSerialsValid:
		return "Every serial number must be checked and valid"
	case s.Busy:
		return "Still working on the previous step"
	case s.State.Active == wizard.StepConfirmPinCode && !s.Gate.AllPaired:
		return "Waiting for every device to confirm its pin code"
	case s.State.Active == wizard.StepDevicesSetting && !s.Gate.AllNamed:
		return "Every device needs a name"
	default:
		return "The batch cannot move to the next step yet"
	}
}

func commitLabel(step wizard.Step) string {
	switch step {
	case wizard.StepEnterSN:
		return "Issuing pin codes"
	case wizard.StepConfirmPinCode:
		return "Confirming pairing"
	default:
		return "Saving device settings"
	}
}

func anySelected(entries []batch.Entry) bool {
	for _, e := range entries {
		if e.Selected {
			return true
		}
	}
	return false
}

func allSelected(entries []batch.Entry) bool {
	for _, e := range entries {
		if !e.Selected {
			return false
		}
	}
	return len(entries) > 0
}
