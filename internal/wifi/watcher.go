package wifi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/logging"
	"github.com/muurk/localota/internal/poll"
)

const (
	// DefaultConnectTimeout bounds the status loop after a connect request.
	DefaultConnectTimeout = 120 * time.Second
	// DefaultSaveTimeout bounds the status loop after save with connect.
	DefaultSaveTimeout = 30 * time.Second
	// DefaultPollInterval is the pause between status reads.
	DefaultPollInterval = time.Second
)

// Device is the part of device.Client the watcher needs.
type Device interface {
	WifiScan(ctx context.Context) ([]device.Network, error)
	WifiConnect(ctx context.Context, req device.ConnectRequest) (*device.ConnectResponse, error)
	WifiStatus(ctx context.Context) (*device.WifiStatus, error)
	WifiLog(ctx context.Context) (map[string]any, error)
	WifiSave(ctx context.Context, req device.SaveRequest) (*device.SaveResponse, error)
}

// EventKind tells observers what happened.
type EventKind int

const (
	EventScan EventKind = iota
	EventConnect
	EventStatus
	EventFetchFailed
	EventLog
	EventSave
)

// Event is one line of progress. Message is ready to print.
type Event struct {
	Kind    EventKind
	Message string
	Status  *device.WifiStatus
	Err     error
}

// Request names the network to join.
type Request struct {
	SSID     string
	Password string
	// Simple asks the device to drop its hotspot while connecting.
	Simple bool
	// SkipScan connects without channel and BSSID hints.
	SkipScan bool
}

// Watcher runs association attempts against one device.
type Watcher struct {
	Device   Device
	Interval time.Duration
	Deadline time.Duration
	Observer func(Event)
}

// NewWatcher returns a watcher with the default timings. A zero Deadline
// selects DefaultConnectTimeout for Connect and DefaultSaveTimeout for Save.
func NewWatcher(dev Device) *Watcher {
	return &Watcher{
		Device:   dev,
		Interval: DefaultPollInterval,
	}
}

// Connect asks the device to join req.SSID and follows the attempt.
// A non-nil error means the connect request itself could not be made.
func (w *Watcher) Connect(ctx context.Context, req Request) (*Result, error) {
	if req.SSID == "" {
		return nil, errors.New("ssid is required")
	}
	result := &Result{}

	var hint device.Network
	if !req.SkipScan {
		nets, err := w.Device.WifiScan(ctx)
		if err != nil {
			// Hints are optional; the device scans on its own without them.
			logging.Warn("Wi-Fi scan failed, connecting without hints", zap.Error(err))
			w.emit(Event{Kind: EventScan, Message: fmt.Sprintf("scan: failed: %v", err), Err: err})
		} else {
			result.Network = pickNetwork(nets, req.SSID)
			if result.Network != nil {
				hint = *result.Network
			}
			w.emit(Event{Kind: EventScan, Message: scanLine(req, result.Network)})
		}
	}

	resp, err := w.Device.WifiConnect(ctx, device.ConnectRequest{
		SSID:     req.SSID,
		Password: req.Password,
		Channel:  hint.Channel,
		BSSID:    hint.BSSID,
		Simple:   req.Simple,
	})
	if err != nil {
		return nil, fmt.Errorf("connect request failed: %w", err)
	}
	result.Connect = resp
	w.emit(Event{Kind: EventConnect, Message: fmt.Sprintf("connect: ok=%t started=%t connecting=%t status=%s(%d)",
		resp.OK, resp.Started, resp.Connecting, resp.StatusText, resp.Status)})

	w.follow(ctx, w.deadline(DefaultConnectTimeout), result, true)
	return result, nil
}

// follow polls station status until connected, stopped, or the deadline.
func (w *Watcher) follow(ctx context.Context, deadline time.Duration, result *Result, fetchLog bool) {
	var (
		last    statusKey
		hasLast bool
		stopped bool
	)
	err := poll.Until(ctx, poll.Policy{
		Interval:  w.interval(),
		Deadline:  deadline,
		Retryable: func(error) bool { return true },
		OnRetry: func(attempt int, err error) {
			w.emit(Event{Kind: EventFetchFailed, Message: fmt.Sprintf("status: fetch failed: %v", err), Err: err})
		},
	}, func(ctx context.Context) (bool, error) {
		result.Polls++
		st, err := w.Device.WifiStatus(ctx)
		if err != nil {
			return false, err
		}
		result.Status = st

		key := keyOf(st)
		if !hasLast || key != last {
			w.emit(Event{Kind: EventStatus, Message: StatusLine(st), Status: st})
			last, hasLast = key, true
		}

		if st.Connected() {
			return true, nil
		}
		if !st.Connecting {
			stopped = true
			return true, nil
		}
		return false, nil
	})

	switch {
	case err == nil && !stopped:
		result.Outcome = OutcomeConnected
	case err == nil && stopped:
		result.Outcome = OutcomeStopped
		if fetchLog {
			w.fetchLog(ctx, result)
		}
	default:
		// Deadline or cancellation: the attempt did not finish in time.
		result.Outcome = OutcomeTimeout
	}
	logging.Info("Wi-Fi attempt finished",
		zap.String("outcome", result.Outcome.String()),
		zap.Int("polls", result.Polls))
}

func (w *Watcher) fetchLog(ctx context.Context, result *Result) {
	log, err := w.Device.WifiLog(ctx)
	if err != nil {
		result.LogErr = err
		w.emit(Event{Kind: EventLog, Message: fmt.Sprintf("wifi log: failed to fetch: %v", err), Err: err})
		return
	}
	result.Log = log
	w.emit(Event{Kind: EventLog, Message: "wifi log: " + compactJSON(log)})
}

func (w *Watcher) emit(e Event) {
	if w.Observer != nil {
		w.Observer(e)
	}
}

func (w *Watcher) interval() time.Duration {
	if w.Interval > 0 {
		return w.Interval
	}
	return DefaultPollInterval
}

func (w *Watcher) deadline(def time.Duration) time.Duration {
	if w.Deadline > 0 {
		return w.Deadline
	}
	return def
}

// pickNetwork returns the strongest scan entry whose SSID matches exactly.
func pickNetwork(nets []device.Network, ssid string) *device.Network {
	var best *device.Network
	for i := range nets {
		n := &nets[i]
		if n.SSID != ssid {
			continue
		}
		if best == nil || n.RSSI > best.RSSI {
			best = n
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

func scanLine(req Request, n *device.Network) string {
	if n == nil {
		return fmt.Sprintf("scan: ssid=%q not seen, channel=0 bssid=\"\" passwordLen=%d", req.SSID, len(req.Password))
	}
	return fmt.Sprintf("scan: ssid=%q channel=%d bssid=%q rssi=%d passwordLen=%d",
		req.SSID, n.Channel, n.BSSID, n.RSSI, len(req.Password))
}

// statusKey holds the fields whose change is worth a new status line.
type statusKey struct {
	connectStage  string
	targetChannel int
	apChannel     int
	staStatusCode int
	discReason    int
	discReasonRaw int
	discExpected  bool
	sdkStaStatus  int
	staSSID       string
	staIP         string
	connecting    bool
	lastFailCode  int
}

func keyOf(st *device.WifiStatus) statusKey {
	return statusKey{
		connectStage:  st.ConnectStage,
		targetChannel: st.TargetChannel,
		apChannel:     st.APChannel,
		staStatusCode: st.STAStatusCode,
		discReason:    st.DiscReason,
		discReasonRaw: st.DiscReasonRaw,
		discExpected:  st.DiscExpected,
		sdkStaStatus:  st.SDKStaStatus,
		staSSID:       st.STASSID,
		staIP:         st.STAIP,
		connecting:    st.Connecting,
		lastFailCode:  st.LastFailCode,
	}
}

// StatusLine renders one status read the way the watcher prints it.
func StatusLine(st *device.WifiStatus) string {
	return fmt.Sprintf("status: stage=%s apCh=%d targetCh=%d sta=%s(%d) ssid=%q ip=%q connecting=%t lastFail=%d disc=%d(%s) raw=%d(%s) exp=%t sdk=%d(%s)",
		st.ConnectStage, st.APChannel, st.TargetChannel,
		st.STAStatus, st.STAStatusCode, st.STASSID, st.STAIP,
		st.Connecting, st.LastFailCode,
		st.DiscReason, ReasonName(st.DiscReason),
		st.DiscReasonRaw, ReasonName(st.DiscReasonRaw),
		st.DiscExpected, st.SDKStaStatus, st.SDKStaStatusText)
}
