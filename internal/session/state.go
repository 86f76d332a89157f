package session

// State is a phase of the update session.
type State int

const (
	StateStaging State = iota
	StateServing
	StateDiscovering
	StateManifestWritten
	StateTriggering
	StateAwaitingDownload
	StateAwaitingStatus
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateStaging:
		return "Staging"
	case StateServing:
		return "Serving"
	case StateDiscovering:
		return "Discovering"
	case StateManifestWritten:
		return "ManifestWritten"
	case StateTriggering:
		return "Triggering"
	case StateAwaitingDownload:
		return "AwaitingDownload"
	case StateAwaitingStatus:
		return "AwaitingStatus"
	case StateTerminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// Description is the operator-facing label for the state.
func (s State) Description() string {
	switch s {
	case StateStaging:
		return "Staging firmware image"
	case StateServing:
		return "Starting manifest server"
	case StateDiscovering:
		return "Discovering address seen by device"
	case StateManifestWritten:
		return "Writing manifest"
	case StateTriggering:
		return "Triggering update check and install"
	case StateAwaitingDownload:
		return "Waiting for device to download firmware"
	case StateAwaitingStatus:
		return "Waiting for device to come back"
	case StateTerminal:
		return "Done"
	default:
		return s.String()
	}
}

// Steps lists the non-terminal states a session walks through.
func Steps(skipStatus bool) []State {
	steps := []State{
		StateStaging,
		StateServing,
		StateDiscovering,
		StateManifestWritten,
		StateTriggering,
		StateAwaitingDownload,
	}
	if !skipStatus {
		steps = append(steps, StateAwaitingStatus)
	}
	return steps
}

// EventKind distinguishes observer notifications.
type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventFailed
	EventInfo
)

// Event is delivered to the Observer as the session progresses.
type Event struct {
	State   State
	Kind    EventKind
	Message string
}

// Observer receives session events. It is called from the goroutine
// running Run and must not block for long.
type Observer func(Event)
