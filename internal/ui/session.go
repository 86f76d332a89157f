package ui

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/session"
)

// SessionView renders an update session: header, one line per step as
// events arrive, and a result box for the report.
type SessionView struct {
	out      io.Writer
	header   *Header
	progress *Progress
	index    map[session.State]int
	width    int
	live     bool // overwrite running lines with \r
}

// NewSessionView prepares a view for a session that walks session.Steps.
func NewSessionView(out io.Writer, command string, params []Param, skipStatus bool) *SessionView {
	steps := session.Steps(skipStatus)
	names := make([]string, len(steps))
	index := make(map[session.State]int, len(steps))
	for i, s := range steps {
		names[i] = s.Description()
		index[s] = i + 1
	}

	width := GetTerminalWidth()
	return &SessionView{
		out:      out,
		header:   NewHeader("Local OTA update", command, params).SetWidth(width),
		progress: NewProgress("", names).SetWidth(width),
		index:    index,
		width:    width,
		live:     IsTerminal(),
	}
}

// SetLive controls whether running steps are redrawn in place.
func (v *SessionView) SetLive(live bool) *SessionView {
	v.live = live
	return v
}

// Start prints the header.
func (v *SessionView) Start() {
	_, _ = fmt.Fprintln(v.out, v.header.Render())
	_, _ = fmt.Fprintln(v.out)
}

// Observe is a session.Observer.
func (v *SessionView) Observe(e session.Event) {
	n, ok := v.index[e.State]
	if !ok {
		return
	}
	switch e.Kind {
	case session.EventStarted:
		v.progress.StartStep(n, e.Message)
		if v.live {
			_, _ = fmt.Fprint(v.out, v.progress.RenderStep(n)+"\r")
		}
	case session.EventCompleted:
		v.progress.CompleteStep(n, e.Message)
		v.printStep(n)
	case session.EventFailed:
		v.progress.FailStep(n, e.Message)
		v.printStep(n)
	case session.EventInfo:
		_, _ = fmt.Fprintln(v.out, StepNoteStyle.Render("        "+e.Message))
	}
}

func (v *SessionView) printStep(n int) {
	line := v.progress.RenderStep(n)
	if v.live {
		// Clear the running line before printing the final one.
		line = "\x1b[2K" + line
	}
	_, _ = fmt.Fprintln(v.out, line)
}

// Finish prints the result box for a report.
func (v *SessionView) Finish(r *session.Report) {
	_, _ = fmt.Fprintln(v.out)
	_, _ = fmt.Fprintln(v.out, v.progress.RenderBar())
	_, _ = fmt.Fprintln(v.out)
	_, _ = fmt.Fprintln(v.out, ReportResult(r).SetWidth(v.width).Render())
}

// ReportResult builds the result box for a finished session.
func ReportResult(r *session.Report) *Result {
	var res *Result
	switch {
	case r.Outcome == session.OutcomeSuccess && len(r.Warnings) > 0:
		res = NewWarningResult("Update finished with warnings", r.Warnings)
	case r.Outcome == session.OutcomeSuccess:
		res = NewSuccessResult("Firmware update complete")
	default:
		res = NewFailureResult(r.Outcome.Title(), reportError(r), Troubleshooting(r))
		res.Warnings = r.Warnings
	}

	res.AddDetail("Outcome", fmt.Sprintf("%s (exit %d)", r.Outcome, r.ExitCode()))
	res.AddDetail("Device", r.Device)
	res.AddDetail("Version", r.Version)
	res.AddDetail("Running", r.CurrentVersion)
	res.AddDetail("MD5", r.Checksum)
	if r.Size > 0 {
		res.AddDetail("Size", fmt.Sprintf("%d bytes", r.Size))
	}
	res.AddDetail("Image URL", r.BinURL)
	if r.CleanupRan {
		res.AddDetail("Fetches", fmt.Sprintf("manifest %d, image %d", r.ManifestFetches, r.BinaryFetches))
	}
	if r.CleanupErr != nil {
		res.AddDetail("Cleanup", r.CleanupErr.Error())
	}
	res.AddDetail("Duration", r.Duration().Round(time.Millisecond).String())
	res.AddDetail("Session", r.SessionID)
	return res
}

func reportError(r *session.Report) error {
	if r.Outcome == session.OutcomeDeviceReportedError || r.Err == nil {
		return errors.New(r.Message())
	}
	return r.Err
}

// Troubleshooting returns tips for a failed session.
func Troubleshooting(r *session.Report) []string {
	var tips []string
	if r.Err != nil {
		if hint := device.GetTroubleshootingHint(r.Err); hint != "" {
			tips = append(tips, hint)
		}
	}
	switch r.Outcome {
	case session.OutcomeDownloadTimeout:
		tips = append(tips,
			"Check the device can reach "+orDefault(r.Host, "this machine")+" (firewall, client isolation)",
			"Read /api/ota/status or the serial console for the download error",
			"Try: localota status")
	case session.OutcomeStatusTimeout:
		tips = append(tips,
			"The device may have rebooted onto a different network or address",
			"Reconnect to its hotspot and run: localota status")
	case session.OutcomeNetworkError:
		tips = append(tips,
			"Make sure this machine is joined to the device hotspot or the same LAN",
			"Pass the address explicitly with --device")
	case session.OutcomeDeviceReportedError:
		tips = append(tips,
			"Compare the MD5 above with the device's error",
			"Rebuild and retry; a partial download leaves the old image running")
	case session.OutcomeFatal:
		tips = append(tips,
			"Check the firmware was built (or pass --no-build with an existing image)",
			"Pick a free port with --port if the default is taken")
	}
	return tips
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
