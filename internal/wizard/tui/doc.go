// Package tui implements the terminal user interface of the pairing wizard.
//
// The screen is a single Bubble Tea model over a wizard controller. It
// shows the batch as a table whose columns follow the active step:
// serial checks while entering serial numbers, pin codes with their
// countdowns while devices confirm, and names and groups while the
// device settings are edited.
//
// # Architecture
//
// The controller owns all state. The model keeps the last Snapshot it
// received and redraws from it; it never edits entries itself.
//
//   - Quick edits (selection, names, serials) call the controller directly
//     from Update and re-read the snapshot.
//   - Network calls (serial checks, step commits, pin refreshes, mDNS
//     discovery) run as tea.Cmds and report back with a message.
//   - Controller callbacks (state changes, countdown ticks, notices)
//     arrive through a Bridge, which queues them and feeds them to the
//     program in order without blocking the controller.
//
// # Usage Example
//
//	bridge := tui.NewBridge()
//	ctrl := wizard.New(client, wizard.WithObserver(bridge))
//	defer ctrl.Close()
//
//	model := tui.NewModel(ctrl, tui.Options{Suggester: registry})
//	program := tea.NewProgram(model, tea.WithAltScreen())
//	bridge.Attach(program.Send)
//	defer bridge.Close()
//
//	final, err := program.Run()
//
// # Key Bindings
//
// a adds a device, enter edits the focused field, tab moves between
// fields, c checks a serial, d discovers devices in pairing mode, r asks
// for a new pin code, n commits the step and q cancels the batch. ? shows
// every binding.
package tui
