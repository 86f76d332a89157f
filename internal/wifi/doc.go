// Package wifi drives station association on the device while the
// operator is attached to its hotspot.
//
// Watcher.Connect scans for the target SSID to pass channel and BSSID
// hints, asks the device to connect, then follows /api/wifi/status until
// the station has an address, the device gives up, or the deadline passes.
// Save stores credentials and can optionally follow the same status loop.
//
// Both report an Outcome whose ExitCode is what the CLI exits with.
package wifi
