package otaserver

import "sync/atomic"

// Counters records how often the device fetched each served resource.
// The zero value is ready to use. Counts only grow.
type Counters struct {
	manifest atomic.Int64
	binary   atomic.Int64
}

// Manifest returns the number of GET requests for the manifest.
func (c *Counters) Manifest() int64 {
	return c.manifest.Load()
}

// Binary returns the number of GET requests for the firmware image.
func (c *Counters) Binary() int64 {
	return c.binary.Load()
}

func (c *Counters) addManifest() {
	c.manifest.Add(1)
}

func (c *Counters) addBinary() {
	c.binary.Add(1)
}
