// Package logging provides structured logging for localota.
//
// The package wraps a package-level zap logger. It stays silent until
// Initialize is called with a level or LOCALOTA_LOG_LEVEL is set, so
// operator-facing output from internal/ui is not interleaved with log
// lines by default.
//
// # Log Levels
//
//   - Debug: device request/response exchanges, raw body excerpts
//   - Info: manifest server requests, session phase changes
//   - Warn: cleanup failures, unexpected device answers
//   - Error: fatal session errors
//
// # Specialized Logging
//
//	logging.LogHTTPRequest(remoteAddr, "GET", "/firmware.bin", 200, n, elapsed)
//	logging.LogDeviceCall("POST", "/api/ota/check", 503, elapsed, err)
//	logging.LogRawBytes("Malformed device response", body)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Logs are written to stderr in console format.
package logging
