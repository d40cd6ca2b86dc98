package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// RunnerConfig describes one command execution
type RunnerConfig struct {
	Title     string  // e.g., "Batch pairing"
	Command   string  // e.g., "batchpair pair"
	Params    []Param // shown in the header
	StepNames []string

	// SuccessTitle heads the result box when the operation succeeds
	SuccessTitle string

	// Troubleshooting returns tips for a failed operation
	Troubleshooting func(err error) []string

	Output io.Writer // default: os.Stdout
	Width  int       // default: terminal width
}

// Runner prints the header, a line per step and the result of one
// operation. Step updates may come from any goroutine.
type Runner struct {
	config   RunnerConfig
	progress *Progress
	out      io.Writer
	width    int

	mu sync.Mutex
}

// NewRunner creates a runner for config
func NewRunner(config RunnerConfig) *Runner {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	width := config.Width
	if width == 0 {
		width = GetTerminalWidth()
	}
	return &Runner{
		config:   config,
		progress: NewProgress("", config.StepNames).SetWidth(width),
		out:      out,
		width:    width,
	}
}

// Operation does the work of a command, reporting progress through
// onStep. The returned params are shown in the success box.
type Operation func(onStep StepCallback) ([]Param, error)

// Run prints the header, executes operation and prints its result
func (r *Runner) Run(operation Operation) error {
	start := time.Now()

	header := NewHeader(r.config.Title, r.config.Command, r.config.Params).SetWidth(r.width)
	_, _ = fmt.Fprintln(r.out, header.Render())
	_, _ = fmt.Fprintln(r.out)

	details, err := operation(r.onStep)
	elapsed := time.Since(start).Round(100 * time.Millisecond)

	_, _ = fmt.Fprintln(r.out)
	if err != nil {
		var tips []string
		if r.config.Troubleshooting != nil {
			tips = r.config.Troubleshooting(err)
		}
		result := NewFailureResult(r.config.Title+" failed", err, tips).SetWidth(r.width)
		_, _ = fmt.Fprintln(r.out, result.Render())
		return err
	}

	title := r.config.SuccessTitle
	if title == "" {
		title = r.config.Title + " complete"
	}
	result := NewSuccessResult(title, details).SetWidth(r.width)
	result.AddDetail("Duration", elapsed.String())
	_, _ = fmt.Fprintln(r.out, result.Render())
	return nil
}

// Printf writes a plain line between step lines
func (r *Runner) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *Runner) onStep(stepNumber int, status StepStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stepNumber < 1 || stepNumber > r.progress.Total() {
		return
	}
	r.progress.UpdateStep(stepNumber, status, message)
	step := r.progress.Steps[stepNumber-1]

	// A running line is overwritten when the step finishes
	if status.Finished() {
		_, _ = fmt.Fprintln(r.out, r.progress.RenderStepLine(step))
	} else if status == StepRunning {
		_, _ = fmt.Fprint(r.out, r.progress.RenderStepLine(step)+"\r")
	}
}

// Progress returns the step state of the runner
func (r *Runner) Progress() *Progress {
	return r.progress
}

// PleaseWait renders a notice for a long-running step, e.g.
// "Waiting for devices" with the hint "up to 10m0s"
func PleaseWait(message, durationHint string) string {
	style := lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true).
		PaddingLeft(2)
	hintStyle := lipgloss.NewStyle().
		Foreground(MutedColor).
		Italic(true)

	line := style.Render("⏳ " + message)
	if durationHint != "" {
		line += " " + hintStyle.Render("("+durationHint+")")
	}
	return line + style.Render("...")
}
