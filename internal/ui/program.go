package ui

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// RunOnceModel is a Bubble Tea model that renders once and exits.
type RunOnceModel struct {
	content string
	width   int
	height  int
}

// NewRunOnceModel creates a model that will render the given content and exit
func NewRunOnceModel(content string) RunOnceModel {
	width, height := GetTerminalSize()
	return RunOnceModel{content: content, width: width, height: height}
}

// Init implements tea.Model
func (m RunOnceModel) Init() tea.Cmd {
	return tea.Quit
}

// Update implements tea.Model
func (m RunOnceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.width, m.height = size.Width, size.Height
	}
	return m, nil
}

// View implements tea.Model
func (m RunOnceModel) View() string {
	return m.content
}

// RenderOnce renders content through Bubble Tea and exits. When stdout is
// not a terminal the content is printed as is.
func RenderOnce(content string) error {
	if !IsTerminal() {
		_, err := fmt.Fprintln(os.Stdout, content)
		return err
	}
	p := tea.NewProgram(NewRunOnceModel(content), tea.WithOutput(os.Stdout), tea.WithInput(nil))
	_, err := p.Run()
	return err
}

// Printer writes UI components to a writer.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer. A nil writer means os.Stdout.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Width returns the width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params []Param) {
	p.Println(NewHeader(title, command, params).SetWidth(p.width).Render())
	p.Newline()
}

// PrintResult prints a result box
func (p *Printer) PrintResult(r *Result) {
	p.Newline()
	p.Println(r.SetWidth(p.width).Render())
}

// PrintLog prints a log box
func (p *Printer) PrintLog(title, content string, maxLines int) {
	p.Println(NewLogBox(title, content).SetWidth(p.width).SetMaxLines(maxLines).Render())
}

// PrintNote prints a muted indented line
func (p *Printer) PrintNote(line string) {
	p.Println(StepNoteStyle.Render("  " + line))
}
