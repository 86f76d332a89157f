// Package device provides an HTTP client for the OTA and Wi-Fi control API
// exposed by the device's embedded web server.
//
// # Endpoints
//
// OTA control:
//   - POST /api/ota/manifest_from_client: device builds a manifest URL from
//     the caller's address as it sees it
//   - POST /api/config: persist a new manifest source
//   - POST /api/ota/check, POST /api/ota/update: trigger a check or install
//   - GET /api/ota/status: current version and updater state
//
// Wi-Fi control:
//   - GET /api/wifi/scan, GET /api/wifi/status, GET /api/wifi/log
//   - POST /api/wifi/connect, POST /api/wifi/save
//
// # Error Handling
//
// Every call returns a *DeviceError on failure. Network-level failures are
// classified (timeout, connection refused, DNS, unreachable) so callers can
// decide whether to keep polling:
//
//	status, err := client.Status(ctx)
//	if device.IsNetworkError(err) {
//	    // device is probably rebooting
//	}
//
// The client never retries on its own. Each call is bounded by the client
// timeout and by the context passed in.
package device
