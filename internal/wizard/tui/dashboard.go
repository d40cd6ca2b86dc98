package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/countdown"
	"github.com/muurk/batchpair/internal/wizard"
)

// column is one cell position of the batch table
type column struct {
	title string
	width int
	field field
	// editable columns highlight under the cursor
	editable bool
	render   func(m Model, e batch.Entry) string
}

// View renders the batch screen
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var helpText string
	if m.editing {
		helpText = m.Help.View(m.EditKeys)
	} else {
		helpText = m.Help.View(m.Keys)
	}
	return RenderApplicationContainer(m.snap.State, m.buildContent(), helpText, m.Width, m.Height)
}

func (m Model) buildContent() string {
	var b strings.Builder

	step := m.snap.State.Active
	selected := 0
	for _, e := range m.snap.Entries {
		if e.Selected {
			selected++
		}
	}
	b.WriteString(RenderTitle(fmt.Sprintf("%s  %s", step.Title(),
		MutedStyle.Render(fmt.Sprintf("%d device(s), %d selected", len(m.snap.Entries), selected)))))
	b.WriteString("\n")

	if len(m.snap.Entries) == 0 {
		b.WriteString(SubtitleStyle.Render("The batch is empty. Press a to add a device"))
		if m.scan != nil {
			b.WriteString(SubtitleStyle.Render(" or d to discover devices in pairing mode"))
		}
		b.WriteString(".\n")
	} else {
		b.WriteString(m.renderTable())
	}

	if m.editing {
		b.WriteString("\n")
		b.WriteString(FocusedInputStyle.Render(m.field.String() + ":"))
		b.WriteString(" ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if status := m.statusLine(); status != "" {
		b.WriteString("\n")
		b.WriteString(status)
		b.WriteString("\n")
	}

	if m.notice != nil {
		b.WriteString("\n")
		b.WriteString(RenderNotice(*m.notice, m.Width-4))
		b.WriteString("\n")
	}

	return b.String()
}

// statusLine shows in-flight work, polling and scanning
func (m Model) statusLine() string {
	var parts []string
	if m.pending > 0 && m.busyLabel != "" {
		parts = append(parts, m.Spinner.View()+" "+m.busyLabel+"…")
	} else if m.snap.Busy {
		parts = append(parts, m.Spinner.View()+" "+commitLabel(m.snap.State.Active)+"…")
	}
	if m.scanning {
		parts = append(parts, m.Spinner.View()+" Discovering devices…")
	}
	if m.snap.Polling {
		parts = append(parts, MutedStyle.Render("Waiting for devices to confirm their pin codes"))
	}
	if m.snap.CanAdvance && m.snap.State.Active != wizard.StepFinish {
		parts = append(parts, OKStyle.Render("Ready: press n to continue"))
	}
	return strings.Join(parts, "   ")
}

func (m Model) columns() []column {
	cols := []column{
		{title: "", width: 4, render: func(_ Model, e batch.Entry) string {
			if e.Selected {
				return "[x]"
			}
			return "[ ]"
		}},
		{title: "SERIAL", width: 22, field: fieldSerial, editable: m.editable(fieldSerial),
			render: func(_ Model, e batch.Entry) string {
				if e.SerialNumber == "" {
					return MutedStyle.Render("(empty)")
				}
				return RenderValidity(e.SerialValidity) + " " + e.SerialNumber
			}},
		{title: "TYPE", width: 10, render: func(_ Model, e batch.Entry) string {
			return e.DeviceType
		}},
	}

	switch m.snap.State.Active {
	case wizard.StepEnterSN:
		cols = append(cols, column{title: "CHECK", width: 36, render: func(_ Model, e batch.Entry) string {
			if e.SerialError != "" {
				return ErrStyle.Render(e.SerialError)
			}
			if e.SerialValidity == batch.SerialUnknown && e.SerialNumber != "" {
				return MutedStyle.Render("not checked")
			}
			return ""
		}})

	case wizard.StepConfirmPinCode:
		cols = append(cols,
			column{title: "PIN CODE", width: 10, render: func(_ Model, e batch.Entry) string {
				return e.PinCode
			}},
			column{title: "EXPIRES", width: 8, render: func(m Model, e batch.Entry) string {
				secs, ok := m.snap.Countdowns[e.Key]
				if !ok {
					return MutedStyle.Render("-")
				}
				if secs <= 0 {
					return ErrStyle.Render("expired")
				}
				if secs < 60 {
					return WarnStyle.Render(countdown.Format(secs))
				}
				return countdown.Format(secs)
			}},
			column{title: "STATUS", width: 14, render: func(_ Model, e batch.Entry) string {
				return RenderStatus(e.PairingStatus)
			}},
		)

	default:
		cols = append(cols,
			column{title: "STATUS", width: 14, render: func(_ Model, e batch.Entry) string {
				return RenderStatus(e.PairingStatus)
			}},
			column{title: "NAME", width: 22, field: fieldName, editable: m.editable(fieldName),
				render: func(_ Model, e batch.Entry) string {
					if e.Name == "" {
						return WarnStyle.Render("(name required)")
					}
					return e.Name
				}},
			column{title: "GROUPS", width: 24, field: fieldGroups, editable: m.editable(fieldGroups),
				render: func(_ Model, e batch.Entry) string {
					return strings.Join(e.GroupIDs, ", ")
				}},
		)
	}
	return cols
}

func (m Model) renderTable() string {
	cols := m.columns()

	var b strings.Builder
	header := make([]string, 0, len(cols)+1)
	header = append(header, "  ")
	for _, c := range cols {
		header = append(header, cell(ColumnHeaderStyle.Render(c.title), c.width))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...))
	b.WriteString("\n")

	for i, e := range m.snap.Entries {
		isCursor := i == m.cursor
		row := make([]string, 0, len(cols)+1)
		if isCursor {
			row = append(row, CursorRowStyle.Render("→ "))
		} else {
			row = append(row, "  ")
		}
		for _, c := range cols {
			text := c.render(m, e)
			if isCursor && c.editable && c.field == m.field {
				text = FocusedInputStyle.Underline(true).Render(stripForFocus(text, e, c.field))
			}
			row = append(row, cell(text, c.width))
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top, row...)
		if isCursor {
			line = CursorRowStyle.Render(line)
		} else {
			line = RowStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// stripForFocus returns the plain value of a focused field so the focus
// style is not mixed with badge colours
func stripForFocus(rendered string, e batch.Entry, f field) string {
	switch f {
	case fieldSerial:
		if e.SerialNumber == "" {
			return "(empty)"
		}
		return e.SerialNumber
	case fieldName:
		if e.Name == "" {
			return "(name required)"
		}
		return e.Name
	case fieldGroups:
		if len(e.GroupIDs) == 0 {
			return "(none)"
		}
		return strings.Join(e.GroupIDs, ", ")
	}
	return rendered
}

// cell pads or cuts styled text to width, keeping one column of gap
func cell(text string, width int) string {
	if lipgloss.Width(text) > width-1 {
		text = ansi.Truncate(text, width-1, "…")
	}
	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(text)
}
