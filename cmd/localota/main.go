// Localota pushes a locally built firmware image to a device over Wi-Fi.
//
// It builds the firmware, serves it with a one-shot manifest from this
// machine, points the device at that manifest, triggers the update and
// watches the device come back. The device's manifest source is always
// restored afterwards.
//
// Usage:
//
//	localota [command] [flags]
//
// See 'localota --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/localota/internal/config"
	"github.com/muurk/localota/internal/env"
	"github.com/muurk/localota/internal/logging"
	"github.com/muurk/localota/internal/version"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// Persistent flags
var (
	deviceAddr  string
	profileName string
	httpTimeout string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "localota",
	Short: "Local over-the-air firmware updates",
	Long: `Build firmware, serve it from this machine and have the device install it.

The device must be reachable over HTTP, either through its own hotspot
(default address 192.168.4.1) or on a shared network.

Profiles in the config file remember a device address, build environment
and the last update outcome. Flags override the profile; the profile
overrides built-in defaults.`,
	Version:       version.Version,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := env.Ensure(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
		}
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		if _, err := config.LoadRegistry(); err != nil {
			return fmt.Errorf("failed to load config %s: %w", config.GetConfigPath(), err)
		}
		return nil
	},
	Example: `  # Build, serve and flash the device on its hotspot
  localota update

  # Flash a device on the LAN without rebuilding
  localota update --device 10.0.0.42 --no-build

  # Join the device to a network and watch the attempt
  localota wifi connect --ssid home --ask-password`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&deviceAddr, "device", "", "Device address, host[:port], or mDNS instance name with --discover (default: profile, $LOCALOTA_DEVICE, 192.168.4.1)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Profile name in the config file (default: $LOCALOTA_PROFILE or preferences)")
	rootCmd.PersistentFlags().StringVar(&httpTimeout, "http-timeout", "", "Per-request timeout for device calls (e.g., 4s)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOCALOTA_LOG_LEVEL, silent)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("localota %s\n", version.Full())
	},
}
