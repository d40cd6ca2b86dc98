package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/version"
	"github.com/muurk/batchpair/internal/wizard"
)

// Application branding constants
const (
	AppName   = "BATCHPAIR"
	GitHubURL = "github.com/muurk/batchpair"
)

// AppVersion returns the application version from the centralized version package
func AppVersion() string {
	return version.Version
}

// Layout constants for responsive terminal width
const (
	MinTerminalWidth  = 72
	MinTerminalHeight = 16
	DefaultWidth      = 100
	DefaultHeight     = 30
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF0000") // Red

	TextColor      = lipgloss.Color("#FFFFFF")
	SubtleColor    = lipgloss.Color("#626262")
	BorderColor    = lipgloss.Color("#7D56F4")
	HighlightColor = lipgloss.Color("#43BF6D")
)

// Common styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	// Header row of the batch table
	ColumnHeaderStyle = lipgloss.NewStyle().
				Foreground(SubtleColor).
				Bold(true)

	RowStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	CursorRowStyle = lipgloss.NewStyle().
			Foreground(HighlightColor).
			Bold(true)

	ActiveStepStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(PrimaryColor).
			Bold(true).
			Padding(0, 1)

	ReachableStepStyle = lipgloss.NewStyle().
				Foreground(HighlightColor).
				Padding(0, 1)

	PendingStepStyle = lipgloss.NewStyle().
				Foreground(SubtleColor).
				Padding(0, 1)

	OKStyle = lipgloss.NewStyle().
		Foreground(SecondaryColor).
		Bold(true)

	WarnStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	ErrStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	FocusedInputStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)

	// Notice box border colours follow the notice level
	NoticeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// RenderTitle renders a title with consistent styling
func RenderTitle(text string) string {
	return TitleStyle.Render(text)
}

// RenderStepper renders the four wizard steps, highlighting the active
// one and the steps the batch qualifies for
func RenderStepper(state wizard.State) string {
	steps := []wizard.Step{wizard.StepEnterSN, wizard.StepConfirmPinCode, wizard.StepDevicesSetting, wizard.StepFinish}
	parts := make([]string, 0, len(steps))
	for i, step := range steps {
		label := string(rune('1'+i)) + " " + step.Title()
		switch {
		case step == state.Active:
			parts = append(parts, ActiveStepStyle.Render(label))
		case step <= state.Next:
			parts = append(parts, ReachableStepStyle.Render(label))
		default:
			parts = append(parts, PendingStepStyle.Render(label))
		}
	}
	return strings.Join(parts, MutedStyle.Render("›"))
}

// RenderValidity renders the serial check badge
func RenderValidity(v batch.SerialValidity) string {
	switch v {
	case batch.SerialValid:
		return OKStyle.Render("✓")
	case batch.SerialInvalid:
		return ErrStyle.Render("✗")
	default:
		return MutedStyle.Render("?")
	}
}

// RenderStatus renders the pairing status badge
func RenderStatus(s batch.PairingStatus) string {
	switch s {
	case batch.PairingSuccess:
		return OKStyle.Render("✓ " + s.String())
	case batch.PairingFailed:
		return ErrStyle.Render("✗ " + s.String())
	case batch.PairingProcessing:
		return WarnStyle.Render("… " + s.String())
	default:
		return MutedStyle.Render(s.String())
	}
}

// RenderNotice renders a controller notice with its hint
func RenderNotice(n wizard.Notice, width int) string {
	color := SubtleColor
	prefix := "ℹ "
	switch n.Level {
	case wizard.NoticeWarning:
		color, prefix = WarningColor, "⚠ "
	case wizard.NoticeError:
		color, prefix = ErrorColor, "✗ "
	}
	text := lipgloss.NewStyle().Foreground(color).Bold(true).Render(prefix + n.Message)
	if n.Hint != "" {
		text += "\n" + MutedStyle.Render(n.Hint)
	}
	style := NoticeBoxStyle.BorderForeground(color)
	if width > 4 {
		style = style.Width(width - 4)
	}
	return style.Render(text)
}

// BuildHeaderContent creates header content with app name and session step
func BuildHeaderContent(state wizard.State) string {
	left := lipgloss.NewStyle().
		Foreground(TextColor).
		Bold(true).
		Render(AppName + " v" + AppVersion())

	right := MutedStyle.Render(GitHubURL)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
		RenderStepper(state),
	)
}

// RenderApplicationContainer wraps a screen with the header, a footer
// holding the help text and an outer border filling the terminal.
func RenderApplicationContainer(state wizard.State, content, footerText string, terminalWidth, terminalHeight int) string {
	if terminalWidth < MinTerminalWidth {
		terminalWidth = MinTerminalWidth
	}
	if terminalHeight < MinTerminalHeight {
		terminalHeight = MinTerminalHeight
	}

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(BorderColor).
		Width(terminalWidth-4).
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(BorderColor).
		Width(terminalWidth-4).
		Padding(0, 1)

	contentStyle := lipgloss.NewStyle().
		Width(terminalWidth-4).
		Padding(0, 1)

	inner := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(BuildHeaderContent(state)),
		contentStyle.Render(content),
		footerStyle.Render(MutedStyle.Render(footerText)),
	)

	bordered := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(terminalWidth - 2).
		Height(terminalHeight - 2).
		AlignVertical(lipgloss.Top).
		Render(inner)

	return lipgloss.Place(terminalWidth, terminalHeight, lipgloss.Left, lipgloss.Top, bordered)
}
