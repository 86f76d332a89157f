package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/localota/internal/logging"
	"github.com/muurk/localota/internal/version"
)

const (
	// DefaultAddress is the device's address on its own access point
	DefaultAddress = "192.168.4.1"

	// DefaultPort is the device web server port
	DefaultPort = 80

	// DefaultTimeout bounds each OTA control call
	DefaultTimeout = 8 * time.Second

	// DefaultWifiTimeout bounds each Wi-Fi control call
	DefaultWifiTimeout = 4 * time.Second

	// maxBodySize caps how much of a response body is read
	maxBodySize = 1 << 20
)

const (
	pathDiscover = "/api/ota/manifest_from_client"
	pathConfig   = "/api/config"
	pathCheck    = "/api/ota/check"
	pathUpdate   = "/api/ota/update"
	pathStatus   = "/api/ota/status"
)

// Client represents an HTTP client for the device control API
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.4.1")
	BaseURL string

	// HTTPClient is the underlying HTTP client; its Timeout bounds every call
	HTTPClient *http.Client

	// UserAgent is sent with every request
	UserAgent string
}

// NewClient creates a client for the device at host:port.
// Port 80 is left out of the base URL.
func NewClient(host string, port int) *Client {
	hostport := host
	if port != 0 && port != DefaultPort {
		hostport = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return NewClientWithURL("http://" + hostport)
}

// NewClientWithURL creates a new client with a full base URL
// baseURL: Full base URL (e.g., "http://192.168.4.1:80")
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		UserAgent:  version.UserAgent(),
	}
}

// ParseAddress turns a --device value ("192.168.4.1", "host:8080" or a
// full URL) into a client.
func ParseAddress(addr string) (*Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = DefaultAddress
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid device address %q: %w", addr, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid device address %q: missing host", addr)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid device address %q: unsupported scheme %s", addr, u.Scheme)
	}
	return NewClientWithURL(u.Scheme + "://" + u.Host), nil
}

// SetTimeout sets the per-call timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// Timeout returns the per-call timeout
func (c *Client) Timeout() time.Duration {
	return c.HTTPClient.Timeout
}

// Host returns the device host name or IP from BaseURL
func (c *Client) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL
	}
	return u.Hostname()
}

// DiscoverManifestURL asks the device for the manifest URL it would use to
// reach this machine on port at path. The returned URL always has a host.
func (c *Client) DiscoverManifestURL(ctx context.Context, port int, path string) (*url.URL, error) {
	var resp discoverResponse
	body, err := c.doJSON(ctx, http.MethodPost, pathDiscover, DiscoverRequest{Port: port, Path: path}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.ManifestURL == "" {
		return nil, c.badResponse(pathDiscover, "response has no manifestUrl", body)
	}
	u, err := url.Parse(resp.ManifestURL)
	if err != nil || u.Hostname() == "" {
		return nil, c.badResponse(pathDiscover, fmt.Sprintf("manifestUrl %q has no usable host", resp.ManifestURL), body)
	}
	return u, nil
}

// SetManifestSource persists manifestURL as the device's update source.
func (c *Client) SetManifestSource(ctx context.Context, manifestURL string) error {
	_, err := c.doJSON(ctx, http.MethodPost, pathConfig, configUpdate{OTA: otaConfigUpdate{ManifestURL: manifestURL}}, nil)
	return err
}

// CheckNow asks the device to fetch its manifest now. When the device
// answers with an HTTP error the decoded result is still returned if the
// body had one.
func (c *Client) CheckNow(ctx context.Context) (*CheckResult, error) {
	var result CheckResult
	_, err := c.doJSON(ctx, http.MethodPost, pathCheck, struct{}{}, &result)
	if err != nil {
		if IsHTTPError(err) {
			devErr, _ := asDeviceError(err)
			if decodeErr := json.Unmarshal([]byte(devErr.Body), &result); decodeErr == nil {
				return &result, err
			}
		}
		return nil, err
	}
	return &result, nil
}

// ApplyNow asks the device to install the available update. The answer is
// returned decoded but has no required shape.
func (c *Client) ApplyNow(ctx context.Context) (map[string]any, error) {
	result := map[string]any{}
	if _, err := c.doJSON(ctx, http.MethodPost, pathUpdate, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Status reads the device's current OTA status. Any JSON object is
// accepted; fields of an unexpected type read as their zero value so a
// firmware change in one field cannot hide state.error.
func (c *Client) Status(ctx context.Context) (*StatusSnapshot, error) {
	var raw map[string]any
	if _, err := c.doJSON(ctx, http.MethodGet, pathStatus, nil, &raw); err != nil {
		return nil, err
	}
	return decodeStatus(raw), nil
}

// doJSON performs one request. in is encoded as the JSON body when non-nil.
// An empty response body decodes as an empty object. The raw body is
// returned for callers that need it.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	start := time.Now()

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, c.networkError(path, "failed to create request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		devErr := c.networkError(path, fmt.Sprintf("%s request failed", method), err)
		logging.LogDeviceCall(method, path, 0, time.Since(start), devErr)
		return nil, devErr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		devErr := c.networkError(path, "failed to read response body", err)
		logging.LogDeviceCall(method, path, resp.StatusCode, time.Since(start), devErr)
		return nil, devErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		devErr := NewHTTPError(resp.StatusCode, httpErrorMessage(resp.StatusCode, body), body)
		devErr.Endpoint = path
		devErr.DeviceIP = c.Host()
		logging.LogDeviceCall(method, path, resp.StatusCode, time.Since(start), devErr)
		return body, devErr
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}
	if !json.Valid(trimmed) {
		logging.LogRawBytes("Malformed device response", body)
		devErr := NewProtocolError("response is not valid JSON", body, nil)
		devErr.Endpoint = path
		devErr.DeviceIP = c.Host()
		logging.LogDeviceCall(method, path, resp.StatusCode, time.Since(start), devErr)
		return body, devErr
	}

	if out != nil {
		if err := json.Unmarshal(trimmed, out); err != nil {
			devErr := NewProtocolError("unexpected response shape", body, err)
			devErr.Endpoint = path
			devErr.DeviceIP = c.Host()
			logging.LogDeviceCall(method, path, resp.StatusCode, time.Since(start), devErr)
			return body, devErr
		}
	}

	logging.LogDeviceCall(method, path, resp.StatusCode, time.Since(start), nil)
	return body, nil
}

func (c *Client) networkError(path, message string, err error) *DeviceError {
	devErr := NewNetworkError(message, err)
	devErr.Endpoint = path
	devErr.DeviceIP = c.Host()
	return devErr
}

func (c *Client) badResponse(path, message string, body []byte) *DeviceError {
	devErr := NewBadResponseError(message, body)
	devErr.Endpoint = path
	devErr.DeviceIP = c.Host()
	return devErr
}

// httpErrorMessage prefers the device's own {"error": "..."} text.
func httpErrorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return fmt.Sprintf("status %d: %s", status, payload.Error)
		}
		if payload.Message != "" {
			return fmt.Sprintf("status %d: %s", status, payload.Message)
		}
	}
	return fmt.Sprintf("unexpected status code: %d", status)
}
