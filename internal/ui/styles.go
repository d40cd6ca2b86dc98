package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Colors adapt to light and dark terminal backgrounds. The dark variants
// match the interactive wizard.
var (
	PrimaryColor = lipgloss.AdaptiveColor{Light: "#5A3FD1", Dark: "#7D56F4"}
	SuccessColor = lipgloss.AdaptiveColor{Light: "#2E8B4F", Dark: "#43BF6D"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF5555"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#B86E00", Dark: "#FFA500"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#626262"}
	TextColor    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#FFFFFF"}
)

// Output never gets narrower than MinTerminalWidth or wider than
// MaxContentWidth, whatever the terminal reports
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

var (
	text  = lipgloss.NewStyle().Foreground(TextColor)
	muted = lipgloss.NewStyle().Foreground(MutedColor)
)

// Header styles
var (
	HeaderTitleStyle      = text.Bold(true).PaddingLeft(2)
	HeaderCommandStyle    = muted.PaddingLeft(2)
	HeaderParamKeyStyle   = muted.PaddingLeft(2)
	HeaderParamValueStyle = text
)

// Step list styles
var (
	ProgressLabelStyle = text.PaddingLeft(2)
	StepCompleteStyle  = lipgloss.NewStyle().Foreground(SuccessColor)
	StepRunningStyle   = lipgloss.NewStyle().Foreground(WarningColor)
	StepPendingStyle   = muted
	StepNoteStyle      = muted.Italic(true)
)

// Result box styles
var (
	SuccessTitleStyle = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	ErrorTitleStyle   = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	WarningTitleStyle = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	ErrorMessageStyle = lipgloss.NewStyle().Foreground(ErrorColor)
	ResultKeyStyle    = muted.Width(18)
	ResultValueStyle  = text

	TroubleshootingTitleStyle = muted.Bold(true)
	TroubleshootingItemStyle  = muted
)

// Markers
const (
	StepMarkerComplete = "✓"
	StepMarkerRunning  = "●"
	StepMarkerPending  = "·"
	StepMarkerSkipped  = "⊘"
	SuccessMarker      = "✓"
	FailureMarker      = "✗"
	WarningMarker      = "⚠"
)

// Param is one labelled value in a header or result box. Params keep
// their order, unlike a map.
type Param struct {
	Key   string
	Value string
}

// GetTerminalWidth returns the width of stdout clamped to
// [MinTerminalWidth, MaxContentWidth]. Pipes and files get the minimum.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth
	}
	return min(max(width, MinTerminalWidth), MaxContentWidth)
}

func clampWidth(width int) int {
	return max(width, MinTerminalWidth)
}
