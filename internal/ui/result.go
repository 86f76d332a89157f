package ui

import (
	"fmt"
	"strings"
)

// ResultType selects the box color and title.
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Detail is one "Key: Value" line in a result box.
type Detail struct {
	Key   string
	Value string
}

// Result is a success, failure or warning box.
type Result struct {
	Type            ResultType
	Title           string
	Details         []Detail
	Error           error
	Warnings        []string
	Troubleshooting []string
	Width           int
}

// NewSuccessResult creates a success box
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning box
func NewWarningResult(title string, warnings []string, details ...Detail) *Result {
	return &Result{Type: ResultWarning, Title: title, Warnings: warnings, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the width for rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a detail line. Empty values are skipped.
func (r *Result) AddDetail(key, value string) *Result {
	if value != "" {
		r.Details = append(r.Details, Detail{Key: key, Value: value})
	}
	return r
}

// Render returns the styled box
func (r *Result) Render() string {
	width := clampWidth(r.Width)

	var (
		title string
		box   = ResultBoxStyle(width, SuccessColor)
	)
	switch r.Type {
	case ResultFailure:
		title = ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title))
		box = ResultBoxStyle(width, ErrorColor)
	case ResultWarning:
		title = WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title))
		box = ResultBoxStyle(width, WarningColor)
	default:
		title = SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
	}

	lines := []string{"", title, ""}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	for _, w := range r.Warnings {
		lines = append(lines, WarningTitleStyle.Render("   • ")+ResultValueStyle.Render(w))
	}
	if len(r.Warnings) > 0 {
		lines = append(lines, "")
	}

	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}

	if len(r.Troubleshooting) > 0 {
		lines = append(lines, renderTroubleshooting(r.Troubleshooting, width), "")
	}

	return box.Render(strings.Join(lines, "\n"))
}

func renderTroubleshooting(tips []string, width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range tips {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}
	return TroubleshootingBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
