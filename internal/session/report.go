package session

import (
	"fmt"
	"strings"
	"time"
)

// Report describes a finished session.
type Report struct {
	SessionID string
	Device    string
	Outcome   Outcome
	// State is the last state entered before the session terminated.
	State State

	Version     string
	ManifestURL string
	BinURL      string
	Host        string
	Checksum    string
	Size        int64

	// CurrentVersion is the firmware version the device reported after reboot.
	CurrentVersion string
	// DeviceError is the device's own error string, verbatim.
	DeviceError string
	// Warnings are surfaced to the operator even on success.
	Warnings []string

	ManifestFetches int64
	BinaryFetches   int64

	// Err is the error that ended the session, if any.
	Err error
	// CleanupErr collects failures while restoring the device and stopping
	// the server. It never changes Outcome.
	CleanupErr error
	// CleanupRan is set once cleanup has executed.
	CleanupRan bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time the session took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode is the process exit code for the session.
func (r *Report) ExitCode() int {
	return r.Outcome.ExitCode()
}

// Message is a one-paragraph human summary of the outcome.
func (r *Report) Message() string {
	switch r.Outcome {
	case OutcomeSuccess:
		msg := fmt.Sprintf("Device fetched firmware %s and is back online", r.Version)
		if r.CurrentVersion != "" {
			msg += fmt.Sprintf(" (running %s)", r.CurrentVersion)
		}
		return msg
	case OutcomeDownloadTimeout:
		return "Timed out waiting for the device to download firmware.bin. Check the device logs (/api/ota/status or serial)."
	case OutcomeStatusTimeout:
		return "The device downloaded the firmware but did not answer status requests before the deadline."
	case OutcomeDeviceReportedError:
		return fmt.Sprintf("Device reported: %s", r.DeviceError)
	case OutcomeNetworkError:
		if r.Err != nil {
			return fmt.Sprintf("Network error: %v", r.Err)
		}
		return "Network error"
	default:
		if r.Err != nil {
			return r.Err.Error()
		}
		return r.Outcome.Title()
	}
}

// Warning joins all warnings into one string.
func (r *Report) Warning() string {
	return strings.Join(r.Warnings, "\n")
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
