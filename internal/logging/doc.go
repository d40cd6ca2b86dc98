// Package logging provides structured logging for batchpair.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the pairing wizard. Logging is silent unless a
// level is configured, so the interactive wizard never has log lines drawn
// over it.
//
// # Log Levels
//
//   - Debug: Poll ticks, countdown scheduling, stale response drops
//   - Info: Step transitions, remote API calls, batch lifecycle
//   - Warn: Failed commits, cancellation failures
//   - Error: Startup failures
//
// # Structured Logging
//
//	logging.Info("Batch started",
//	    zap.String("session", sessionID),
//	    zap.Int("devices", 3),
//	)
//
// # Domain Helpers
//
//	logging.LogStepTransition("next", "1/1", "2/2")
//	logging.LogAPICall("step1", serials, elapsed, err)
//	logging.LogPollResult(pending, paired, failed)
//
// # Configuration
//
//	if err := logging.Initialize(logging.Options{Level: "debug", File: "pair.log"}); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When File is set, entries are written as JSON to a size-rotated file
// instead of the console.
package logging
