package wifi

import "github.com/muurk/localota/internal/device"

// Outcome is how an association attempt ended.
type Outcome int

const (
	// OutcomeConnected means the station is associated and has an address.
	OutcomeConnected Outcome = iota
	// OutcomeStopped means the device stopped trying, or refused the save.
	OutcomeStopped
	// OutcomeTimeout means the deadline passed while still connecting.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeStopped:
		return "stopped"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ExitCode is the process exit status for the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeConnected:
		return 0
	case OutcomeStopped:
		return 2
	case OutcomeTimeout:
		return 3
	default:
		return 1
	}
}

// Result is what Connect and Save report back.
type Result struct {
	Outcome Outcome
	// Network is the scan entry used for hints, nil when none matched.
	Network *device.Network
	// Connect is the device's answer to the connect request.
	Connect *device.ConnectResponse
	// Save is the device's answer to a save request.
	Save *device.SaveResponse
	// Status is the last status read, if any succeeded.
	Status *device.WifiStatus
	// Log holds /api/wifi/log when the device stopped trying.
	Log map[string]any
	// LogErr is set when fetching the log failed.
	LogErr error
	// Polls counts status reads, failed ones included.
	Polls int
}
