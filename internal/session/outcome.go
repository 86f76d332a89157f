package session

import "fmt"

// Outcome is the terminal result of a session.
type Outcome int

const (
	// OutcomeUnknown is the zero value: the session never reached a
	// terminal state. It exits like a fatal error.
	OutcomeUnknown Outcome = iota
	// OutcomeSuccess means the device fetched the image and came back.
	OutcomeSuccess
	// OutcomeFatal covers errors before or outside the update itself:
	// missing artifact, busy port, malformed device answers, interruption.
	OutcomeFatal
	// OutcomeDownloadTimeout means the device never fetched the image.
	OutcomeDownloadTimeout
	// OutcomeNetworkError means the device could not be reached.
	OutcomeNetworkError
	// OutcomeStatusTimeout means the device did not come back after reboot.
	OutcomeStatusTimeout
	// OutcomeDeviceReportedError means the device reported an update error.
	OutcomeDeviceReportedError
)

// ExitCode is the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomeDownloadTimeout:
		return 2
	case OutcomeNetworkError:
		return 3
	case OutcomeStatusTimeout:
		return 4
	case OutcomeDeviceReportedError:
		return 5
	default:
		return 1
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeSuccess:
		return "success"
	case OutcomeFatal:
		return "fatal"
	case OutcomeDownloadTimeout:
		return "download-timeout"
	case OutcomeNetworkError:
		return "network-error"
	case OutcomeStatusTimeout:
		return "status-timeout"
	case OutcomeDeviceReportedError:
		return "device-error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Title is a short human description of the outcome.
func (o Outcome) Title() string {
	switch o {
	case OutcomeUnknown:
		return "Session did not finish"
	case OutcomeSuccess:
		return "Update delivered"
	case OutcomeFatal:
		return "Update aborted"
	case OutcomeDownloadTimeout:
		return "Device never downloaded the firmware"
	case OutcomeNetworkError:
		return "Device unreachable"
	case OutcomeStatusTimeout:
		return "Device did not come back after reboot"
	case OutcomeDeviceReportedError:
		return "Device reported an update error"
	default:
		return o.String()
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	for o := OutcomeUnknown; o <= OutcomeDeviceReportedError; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return OutcomeFatal, fmt.Errorf("unknown outcome %q", s)
}
