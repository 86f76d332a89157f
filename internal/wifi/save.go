package wifi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/logging"
)

// SaveRequest stores credentials. Connect additionally starts an attempt
// and follows it like Connect does.
type SaveRequest struct {
	SSID     string
	Password string
	// MakeLast marks the network as the one to rejoin at boot.
	MakeLast bool
	Connect  bool
	Simple   bool
}

// Save stores credentials on the device. Without Connect the outcome is
// Connected when the device accepted them and Stopped otherwise.
func (w *Watcher) Save(ctx context.Context, req SaveRequest) (*Result, error) {
	if req.SSID == "" {
		return nil, errors.New("ssid is required")
	}

	resp, err := w.Device.WifiSave(ctx, device.SaveRequest{
		SSID:     req.SSID,
		Password: req.Password,
		MakeLast: req.MakeLast,
		Connect:  req.Connect,
		Simple:   req.Simple,
	})
	if err != nil {
		return nil, fmt.Errorf("save request failed: %w", err)
	}
	result := &Result{Save: resp}
	w.emit(Event{Kind: EventSave, Message: "save: " + compactJSON(resp.Raw)})
	logging.Info("Wi-Fi credentials saved",
		zap.String("ssid", req.SSID),
		zap.Bool("ok", resp.OK),
		zap.Bool("connect", req.Connect))

	if !req.Connect {
		if resp.OK {
			result.Outcome = OutcomeConnected
		} else {
			result.Outcome = OutcomeStopped
		}
		return result, nil
	}

	w.follow(ctx, w.deadline(DefaultSaveTimeout), result, false)
	return result, nil
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
