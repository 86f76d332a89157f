// Package otaserver serves the staging directory to the device during an
// update session.
//
// The server exposes two well-known resources, the manifest (/ota.json)
// and the firmware image (/firmware.bin). Every GET for either one bumps a
// counter in a Counters handle shared with the session orchestrator, which
// polls it to learn that the device has actually fetched the image.
//
// # Lifecycle
//
//	counters := &otaserver.Counters{}
//	srv := otaserver.New(otaserver.Config{Port: 8000, Dir: "ota-local"}, counters)
//	if err := srv.Start(); err != nil {
//	    return err // wraps ErrPortUnavailable
//	}
//	defer srv.Shutdown(context.Background())
//
// Start returns once the listener is bound; requests are served from a
// separate goroutine. Shutdown waits for in-flight responses up to the
// configured grace window, then closes remaining connections.
//
// # Thread Safety
//
// Counters use atomic integers and may be read from any goroutine while
// the server is handling requests.
package otaserver
