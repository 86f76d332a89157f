package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// LogBox shows raw text such as the device Wi-Fi log or build output.
type LogBox struct {
	Title    string
	Content  string
	Width    int
	MaxLines int // keep only the last MaxLines lines; 0 keeps all
}

// NewLogBox creates a log box sized to the terminal.
func NewLogBox(title, content string) *LogBox {
	return &LogBox{Title: title, Content: content, Width: GetTerminalWidth()}
}

// SetWidth sets the width for rendering
func (l *LogBox) SetWidth(width int) *LogBox {
	l.Width = width
	return l
}

// SetMaxLines limits the box to the last n lines
func (l *LogBox) SetMaxLines(n int) *LogBox {
	l.MaxLines = n
	return l
}

// Render returns the styled box
func (l *LogBox) Render() string {
	content := strings.TrimRight(l.Content, "\n")
	lines := strings.Split(content, "\n")
	if l.MaxLines > 0 && len(lines) > l.MaxLines {
		omitted := len(lines) - l.MaxLines
		lines = append([]string{StepNoteStyle.Render("… " + strconv.Itoa(omitted) + " earlier lines omitted")}, lines[omitted:]...)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		LogTitleStyle.Render(l.Title),
		LogContentStyle.Render(strings.Join(lines, "\n")),
	)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(clampWidth(l.Width)-4).
		Padding(0, 1).
		Render(body)
}

// String implements fmt.Stringer
func (l *LogBox) String() string {
	return l.Render()
}
