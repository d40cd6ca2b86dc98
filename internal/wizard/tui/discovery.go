package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/discovery"
	"github.com/muurk/batchpair/internal/wizard"
)

// ScanFunc discovers the serials of devices waiting to be paired
type ScanFunc func(ctx context.Context) ([]string, error)

// MDNSScan returns a ScanFunc browsing the local network for scanner.Timeout
func MDNSScan(scanner *discovery.Scanner) ScanFunc {
	return func(ctx context.Context) ([]string, error) {
		devices, err := scanner.Scan(ctx)
		if err != nil {
			return nil, err
		}
		return discovery.Serials(devices), nil
	}
}

type startScanMsg struct{}

type scanDoneMsg struct {
	serials []string
	err     error
}

// startScan launches a discovery scan. Devices are only added while
// serial numbers are being entered, since adding one later resets the
// batch.
func (m Model) startScan() (tea.Model, tea.Cmd) {
	switch {
	case m.scan == nil:
		m.info("Discovery is not available")
		return m, nil
	case m.scanning:
		return m, nil
	case m.snap.State.Active != wizard.StepEnterSN:
		m.info("Discovered devices can only be added while entering serial numbers")
		return m, nil
	}

	m.scanning = true
	scan, ctx := m.scan, m.ctx
	return m, tea.Batch(m.Spinner.Tick, func() tea.Msg {
		serials, err := scan(ctx)
		return scanDoneMsg{serials: serials, err: err}
	})
}

// scanDone adds every newly discovered serial to the batch and checks it
func (m Model) scanDone(msg scanDoneMsg) (tea.Model, tea.Cmd) {
	m.scanning = false
	if msg.err != nil {
		m.notice = &wizard.Notice{
			Level:   wizard.NoticeError,
			Message: "Discovery failed: " + msg.err.Error(),
			Hint:    "mDNS needs multicast on this network; enter serial numbers by hand instead",
			Err:     msg.err,
		}
		return m, nil
	}
	if m.snap.Exited || m.snap.State.Active != wizard.StepEnterSN {
		return m, nil
	}

	known := make(map[string]bool, len(m.snap.Entries))
	for _, e := range m.snap.Entries {
		known[e.SerialNumber] = true
	}

	var cmds []tea.Cmd
	added := 0
	for _, sn := range msg.serials {
		sn = batch.NormalizeSerial(sn)
		if sn == "" || known[sn] {
			continue
		}
		known[sn] = true

		entryKey := m.ctrl.AddDevice(sn)
		if entryKey == 0 {
			break
		}
		added++
		m.prefill(entryKey, sn)
		cmds = append(cmds, m.run("Checking serial numbers", func(ctx context.Context) error {
			return m.ctrl.CheckSerial(ctx, entryKey)
		}))
	}

	m.info(fmt.Sprintf("Discovered %d device(s), %d new", len(msg.serials), added))
	m.refresh()
	return m, tea.Batch(cmds...)
}
