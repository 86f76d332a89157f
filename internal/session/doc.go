// Package session runs one local OTA update against a device.
//
// A session walks a fixed sequence of states:
//
//	Staging → Serving → Discovering → ManifestWritten → Triggering →
//	AwaitingDownload → AwaitingStatus → Terminal
//
// and ends in exactly one Outcome, each with its own process exit code.
// Once the manifest server is serving, a single deferred cleanup is
// registered: it points the device back at the default manifest source
// and stops the server. It runs exactly once on every exit path. Cleanup
// failures are logged and recorded in the Report but never change the
// outcome.
//
// Only the post-reboot status wait tolerates network errors; the device
// is expected to drop off the network while it flashes and restarts.
package session
