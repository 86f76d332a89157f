package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/muurk/localota/internal/config"
	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/discovery"
	"github.com/muurk/localota/internal/env"
	"github.com/muurk/localota/internal/ui"
)

// target is the resolved device a command talks to.
type target struct {
	profile string
	address string
	client  *device.Client
}

// resolveProfileName picks the profile: flag, environment, preferences.
func resolveProfileName(reg *config.Registry) string {
	if profileName != "" {
		return profileName
	}
	def := config.DefaultProfileName
	if reg.Preferences != nil && reg.Preferences.DefaultProfile != "" {
		def = reg.Preferences.DefaultProfile
	}
	return env.String(env.Profile, def)
}

// resolveAddress picks the device address: flag, environment, profile,
// then the hotspot default.
func resolveAddress(p *config.Profile) string {
	if deviceAddr != "" {
		return deviceAddr
	}
	if v := env.String(env.Device, ""); v != "" {
		return v
	}
	if p != nil && p.Address != "" {
		return p.Address
	}
	return device.DefaultAddress
}

// resolveHTTPTimeout picks the per-call timeout: flag, profile, fallback.
func resolveHTTPTimeout(p *config.Profile, fallback time.Duration) (time.Duration, error) {
	if httpTimeout != "" {
		d, err := time.ParseDuration(httpTimeout)
		if err != nil {
			return 0, fmt.Errorf("invalid --http-timeout: %w", err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("invalid --http-timeout: must be positive")
		}
		return d, nil
	}
	if p != nil && p.HTTPTimeout > 0 {
		return time.Duration(p.HTTPTimeout) * time.Second, nil
	}
	return fallback, nil
}

// resolveTarget builds the device client for a command. When discover is
// set the device is looked up over mDNS: by name when --device was given,
// otherwise by browsing for any device.
func resolveTarget(ctx context.Context, discover bool, fallbackTimeout time.Duration) (*target, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, err
	}
	name := resolveProfileName(reg)
	p := reg.Profile(name)

	addr := resolveAddress(p)
	if discover {
		found, err := discoverDevice(ctx, newFinder(reg), deviceAddr)
		if err != nil {
			return nil, err
		}
		addr = found.Address()
	}

	client, err := device.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	timeout, err := resolveHTTPTimeout(p, fallbackTimeout)
	if err != nil {
		return nil, err
	}
	client.SetTimeout(timeout)

	return &target{profile: name, address: addr, client: client}, nil
}

// deviceFinder is the part of discovery.Scanner used to locate devices.
type deviceFinder interface {
	Scan(ctx context.Context) ([]*discovery.Device, error)
	Find(ctx context.Context, name string) (*discovery.Device, error)
}

var newFinder = func(reg *config.Registry) deviceFinder {
	return newScanner(reg)
}

// newScanner returns an mDNS scanner using the preferred browse window.
func newScanner(reg *config.Registry) *discovery.Scanner {
	scanner := discovery.NewScanner()
	if reg != nil && reg.Preferences != nil && reg.Preferences.DiscoverTimeout > 0 {
		scanner.Timeout = time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
	}
	return scanner
}

// discoverDevice resolves name (an instance name such as SmartShabat-0a1b,
// or an address) over mDNS. An empty name browses for every device and
// lets the operator pick when more than one answers.
func discoverDevice(ctx context.Context, f deviceFinder, name string) (*discovery.Device, error) {
	if name != "" {
		fmt.Fprintf(os.Stderr, "Looking up %s over mDNS...\n", name)
		d, err := f.Find(ctx, name)
		if errors.Is(err, discovery.ErrNotFound) {
			return nil, fmt.Errorf("device %q did not answer over mDNS; drop --discover to use it as an address", name)
		}
		if err != nil {
			return nil, fmt.Errorf("discovery failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Found %s\n", d)
		return d, nil
	}

	fmt.Fprintln(os.Stderr, "No --device given, browsing mDNS...")
	devices, err := f.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no devices found; use --device to give the address")
	case 1:
		fmt.Fprintf(os.Stderr, "Found %s\n", devices[0])
		return devices[0], nil
	default:
		d, err := ui.PickDevice(devices)
		if errors.Is(err, ui.ErrNotTerminal) {
			for i, d := range devices {
				fmt.Fprintf(os.Stderr, "%d. %s\n", i+1, d)
			}
			return nil, fmt.Errorf("multiple devices found; use --device to pick one")
		}
		return d, err
	}
}
