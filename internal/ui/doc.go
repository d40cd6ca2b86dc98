// Package ui renders the styled output of batchpair's non-interactive
// commands.
//
// Unlike the wizard in internal/wizard/tui, these components follow a
// "run once and exit" pattern: they print a header, a line per step as the
// command progresses, and a result box, and never wait for input.
//
// # Components
//
//   - Header: command banner showing the operation and its parameters
//   - Progress: step list with a progress bar
//   - Result: success, failure or warning box with details and
//     troubleshooting tips
//   - Runner: drives header, steps and result for one operation
//
// # Usage Pattern
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:     "Batch pairing",
//	    Command:   "batchpair pair",
//	    Params:    []ui.Param{{Key: "Devices", Value: "3"}},
//	    StepNames: []string{"Check serial numbers", "Issue pin codes"},
//	})
//
//	err := runner.Run(func(onStep ui.StepCallback) ([]ui.Param, error) {
//	    onStep(1, ui.StepRunning, "")
//	    // ... do work ...
//	    onStep(1, ui.StepComplete, "3 valid")
//	    return nil, nil
//	})
//
// # Logging Integration
//
// Logging is silent unless BATCHPAIR_LOG_LEVEL or --log-level is set, so
// the curated output is displayed cleanly. Use --log-file to keep logs
// out of the way of the output entirely.
package ui
