package discovery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/localota/internal/logging"
)

const (
	// ServiceType is browsed for device web servers.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a browse.
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is assumed when an entry carries no port.
	DefaultPort = 80
)

// DefaultHostPattern matches the firmware's default station hostname.
var DefaultHostPattern = regexp.MustCompile(`(?i)^(SmartShabat-[0-9a-f]{4})\.local\.?$`)

// ErrNotFound is returned by Find when no matching device answered.
var ErrNotFound = errors.New("device not found")

// browseFunc matches zeroconf.Resolver.Browse.
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Scanner browses for devices.
type Scanner struct {
	Timeout time.Duration
	// HostPattern selects device hostnames. The first capture group, when
	// present, becomes Device.Name.
	HostPattern *regexp.Regexp

	browse browseFunc
}

// NewScanner returns a scanner with default settings.
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:     DefaultScanTimeout,
		HostPattern: DefaultHostPattern,
	}
}

func (s *Scanner) browser() (browseFunc, error) {
	if s.browse != nil {
		return s.browse, nil
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return resolver.Browse, nil
}

// Scan browses for the full timeout and returns every matching device,
// sorted by name.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	var devices []*Device
	err := s.run(ctx, func(d *Device) bool {
		devices = append(devices, d)
		return false
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// Find returns the first device whose name matches name, case-insensitively.
// An empty name accepts any device.
func (s *Scanner) Find(ctx context.Context, name string) (*Device, error) {
	var found *Device
	err := s.run(ctx, func(d *Device) bool {
		if name == "" || strings.EqualFold(d.Name, name) || strings.EqualFold(d.IP, name) {
			found = d
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		if name == "" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return found, nil
}

// run browses until the timeout or until visit returns true. Each hostname
// is visited once.
func (s *Scanner) run(ctx context.Context, visit func(*Device) bool) error {
	browse, err := s.browser()
	if err != nil {
		return err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		seen := make(map[string]bool)
		for {
			select {
			case <-gctx.Done():
				return nil
			case entry, ok := <-entries:
				if !ok {
					return nil
				}
				d := s.parseServiceEntry(entry)
				if d == nil || seen[d.Hostname] {
					continue
				}
				seen[d.Hostname] = true
				logging.Debug("mDNS device found",
					zap.String("name", d.Name),
					zap.String("ip", d.IP),
					zap.Int("port", d.Port))
				if visit(d) {
					cancel()
					return nil
				}
			}
		}
	})

	if err := browse(gctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return g.Wait()
}

// parseServiceEntry converts an entry to a Device, or nil when the
// hostname does not match or no address was advertised.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil || entry.HostName == "" {
		return nil
	}
	pattern := s.HostPattern
	if pattern == nil {
		pattern = DefaultHostPattern
	}

	matches := pattern.FindStringSubmatch(entry.HostName)
	if matches == nil {
		return nil
	}
	name := strings.TrimSuffix(strings.TrimSuffix(entry.HostName, "."), ".local")
	if len(matches) > 1 && matches[1] != "" {
		name = matches[1]
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Device{
		Name:         name,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
