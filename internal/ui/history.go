package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/localota/internal/history"
)

// HistoryTable renders journal entries as a table.
func HistoryTable(entries []history.Entry) string {
	if len(entries) == 0 {
		return StepNoteStyle.Render("  No sessions recorded yet.")
	}

	columns := []table.Column{
		{Title: "When", Width: 16},
		{Title: "Device", Width: 14},
		{Title: "Outcome", Width: 16},
		{Title: "Version", Width: 11},
		{Title: "Took", Width: 8},
		{Title: "Detail", Width: 28},
	}

	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			e.Device,
			e.Outcome,
			e.Version,
			e.Duration().Round(time.Second).String(),
			entryDetail(e),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(PrimaryColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)

	return t.View()
}

func entryDetail(e history.Entry) string {
	switch {
	case e.DeviceError != "":
		return e.DeviceError
	case e.Error != "":
		return e.Error
	case e.CurrentVersion != "":
		return "running " + e.CurrentVersion
	case len(e.Warnings) > 0:
		return fmt.Sprintf("%d warning(s)", len(e.Warnings))
	default:
		return ""
	}
}
