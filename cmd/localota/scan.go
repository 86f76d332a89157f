package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/localota/internal/config"
	"github.com/muurk/localota/internal/discovery"
	"github.com/muurk/localota/internal/ui"
)

var (
	scanTimeout time.Duration
	scanPattern string
)

var scanCmd = &cobra.Command{
	Use:   "scan [name]",
	Short: "Find devices on the local network over mDNS",
	Long: `Browse for HTTP services announced over mDNS and list the ones whose
host name looks like a device. With a name (for example SmartShabat-0a1b)
only that device is looked up, and the scan stops as soon as it answers.

Use --pattern to match a different host name, or --pattern '.*' to list
every HTTP service on the network.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVarP(&scanTimeout, "timeout", "t", 0, "Browse window (default: preferences, 5s)")
	scanCmd.Flags().StringVar(&scanPattern, "pattern", "", "Host name regular expression (default: "+discovery.DefaultHostPattern.String()+")")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	reg, _ := config.LoadRegistry()
	scanner := newScanner(reg)
	if scanTimeout > 0 {
		scanner.Timeout = scanTimeout
	}
	if scanPattern != "" {
		re, err := regexp.Compile(scanPattern)
		if err != nil {
			return fmt.Errorf("invalid --pattern: %w", err)
		}
		scanner.HostPattern = re
	}

	p := ui.NewPrinter(os.Stdout)
	if len(args) == 1 {
		fmt.Printf("Looking up %s (%s)...\n\n", args[0], scanner.Timeout)
		d, err := scanner.Find(cmd.Context(), args[0])
		if errors.Is(err, discovery.ErrNotFound) {
			p.PrintResult(notFoundResult(args[0] + " did not answer"))
			return &exitError{code: 1}
		}
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		res := ui.NewSuccessResult("Found " + d.Name)
		res.AddDetail("Address", d.Address()).
			AddDetail("Host", d.Hostname).
			AddDetail("Firmware", d.GetMetadata("version"))
		p.PrintResult(res)
		return nil
	}

	fmt.Printf("Scanning for devices (%s)...\n\n", scanner.Timeout)
	devices, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if len(devices) == 0 {
		p.PrintResult(notFoundResult("No devices found"))
		return nil
	}

	res := ui.NewSuccessResult(fmt.Sprintf("Found %d device(s)", len(devices)))
	for _, d := range devices {
		res.AddDetail(d.Name, deviceSummary(d))
	}
	p.PrintResult(res)
	p.PrintNote("Use: localota update --device <address>")
	return nil
}

// deviceSummary is the address plus the advertised firmware version.
func deviceSummary(d *discovery.Device) string {
	if v := d.GetMetadata("version"); v != "" {
		return d.Address() + " (firmware " + v + ")"
	}
	return d.Address()
}

func notFoundResult(title string) *ui.Result {
	return ui.NewFailureResult(title, nil, []string{
		"The device must be on the same network as this machine",
		"Most firmware builds do not announce themselves; use --device with the address instead",
		"On the device hotspot the address is 192.168.4.1",
	})
}
