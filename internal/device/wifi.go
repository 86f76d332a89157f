package device

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

const (
	pathWifiScan    = "/api/wifi/scan"
	pathWifiConnect = "/api/wifi/connect"
	pathWifiStatus  = "/api/wifi/status"
	pathWifiLog     = "/api/wifi/log"
	pathWifiSave    = "/api/wifi/save"
)

// WifiScan lists the access points the device can see.
func (c *Client) WifiScan(ctx context.Context) ([]Network, error) {
	var nets []Network
	body, err := c.doJSON(ctx, http.MethodGet, pathWifiScan, nil, &nets)
	if err != nil {
		// An empty body decodes as {} which is not a list.
		if IsProtocolError(err) && len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		return nil, err
	}
	return nets, nil
}

// WifiConnect starts a station connection.
func (c *Client) WifiConnect(ctx context.Context, req ConnectRequest) (*ConnectResponse, error) {
	var resp ConnectResponse
	if _, err := c.doJSON(ctx, http.MethodPost, pathWifiConnect, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WifiStatus reads the station status.
func (c *Client) WifiStatus(ctx context.Context) (*WifiStatus, error) {
	var st WifiStatus
	if _, err := c.doJSON(ctx, http.MethodGet, pathWifiStatus, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WifiLog fetches the device's free-form connection diagnostics.
func (c *Client) WifiLog(ctx context.Context) (map[string]any, error) {
	var log any
	if _, err := c.doJSON(ctx, http.MethodGet, pathWifiLog, nil, &log); err != nil {
		return nil, err
	}
	if m, ok := log.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"log": log}, nil
}

// WifiSave stores credentials on the device.
func (c *Client) WifiSave(ctx context.Context, req SaveRequest) (*SaveResponse, error) {
	var resp SaveResponse
	body, err := c.doJSON(ctx, http.MethodPost, pathWifiSave, req, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		_ = json.Unmarshal(body, &resp.Raw)
	}
	return &resp, nil
}
