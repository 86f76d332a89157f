package device

import (
	"encoding/json"
	"strconv"
	"strings"
)

// decodeStatus builds a snapshot from a decoded /api/ota/status document.
// Numbers given as strings and the reverse are converted; anything else
// that does not fit reads as the zero value. Raw keeps the whole document.
func decodeStatus(raw map[string]any) *StatusSnapshot {
	if raw == nil {
		raw = map[string]any{}
	}
	cfg := objectField(raw, "config")
	state := objectField(raw, "state")

	return &StatusSnapshot{
		OK:             boolField(raw, "ok"),
		CurrentVersion: stringField(raw, "currentVersion"),
		Config: OTAConfig{
			ManifestURL: stringField(cfg, "manifestUrl"),
			Auto:        boolField(cfg, "auto"),
			CheckHours:  int(intField(cfg, "checkHours")),
		},
		TimeValid:         boolField(raw, "timeValid"),
		WifiConnected:     boolField(raw, "wifiConnected"),
		BlockedByHolyTime: boolField(raw, "blockedByHolyTime"),
		State: OTAState{
			LastCheckUtc:     intField(state, "lastCheckUtc"),
			LastAttemptUtc:   intField(state, "lastAttemptUtc"),
			Available:        boolField(state, "available"),
			AvailableVersion: stringField(state, "availableVersion"),
			Notes:            stringField(state, "notes"),
			Error:            stringField(state, "error"),
		},
		Raw: raw,
	}
}

func objectField(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// stringField renders scalars as text. Objects and lists are kept as
// compact JSON so an error reported in an unexpected shape still surfaces.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
