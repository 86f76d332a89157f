package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Device is one device seen during a browse.
type Device struct {
	// Name is the matched hostname label, e.g. "SmartShabat-1a2b".
	Name string

	// Hostname is the full mDNS hostname, e.g. "SmartShabat-1a2b.local."
	Hostname string

	// IP prefers IPv4 when the device advertises both families.
	IP string

	// Port is the HTTP port, 80 when not advertised.
	Port int

	// Metadata holds TXT record key/value pairs.
	Metadata map[string]string

	DiscoveredAt time.Time
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.Name, d.Hostname, d.Address())
}

// Address is the host[:port] form accepted by device.ParseAddress.
func (d *Device) Address() string {
	if d.Port == DefaultPort {
		if strings.Contains(d.IP, ":") {
			return "[" + d.IP + "]"
		}
		return d.IP
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata returns a TXT value, or "".
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
