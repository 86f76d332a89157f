package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/ui"
	"github.com/muurk/localota/internal/wifi"
)

// Wi-Fi command flags
var (
	wifiSSID        string
	wifiPassword    string
	wifiAskPassword bool
	wifiSimple      bool
	wifiTimeout     time.Duration
	wifiInterval    time.Duration
	wifiNoScan      bool
	wifiMakeLast    bool
	wifiConnect     bool
)

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Join the device to a Wi-Fi network",
	Long: `Drive the device's station interface through its HTTP API.

These commands are usually run from the device's own hotspot
(192.168.4.1), which stays up while the station connects unless
--simple is given.

Exit codes:
  0  connected (or credentials saved)
  2  device stopped trying (or rejected the credentials)
  3  timed out`,
}

var wifiConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a network and watch the attempt",
	Long: `Scan for the network, ask the device to connect and poll its
status until it gets an address, gives up or the timeout expires.

The strongest access point with a matching SSID is passed to the device
as a channel and BSSID hint. When the device gives up, its connection
log is printed along with the disconnect reason.`,
	Example: `  localota wifi connect --ssid home --ask-password
  localota wifi connect --ssid office --password secret --simple`,
	RunE: runWifiConnect,
}

var wifiSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store network credentials on the device",
	Long: `Save credentials in the device's network list. With --connect the
device also starts connecting and the attempt is watched like
'wifi connect' does.`,
	RunE: runWifiSave,
}

func init() {
	for _, c := range []*cobra.Command{wifiConnectCmd, wifiSaveCmd} {
		c.Flags().StringVar(&wifiSSID, "ssid", "", "Network name (required)")
		c.Flags().StringVar(&wifiPassword, "password", "", "Network password")
		c.Flags().BoolVar(&wifiAskPassword, "ask-password", false, "Prompt for the password without echo")
		c.Flags().BoolVar(&wifiSimple, "simple", false, "Let the device drop its hotspot while connecting")
		c.Flags().DurationVar(&wifiTimeout, "timeout", 0, "Give up after this long (default: 120s for connect, 30s for save)")
		c.Flags().DurationVar(&wifiInterval, "interval", wifi.DefaultPollInterval, "Status poll interval")
		_ = c.MarkFlagRequired("ssid")
	}
	wifiConnectCmd.Flags().BoolVar(&wifiNoScan, "no-scan", false, "Connect without scanning for channel hints")
	wifiSaveCmd.Flags().BoolVar(&wifiMakeLast, "make-last", true, "Rejoin this network at boot")
	wifiSaveCmd.Flags().BoolVar(&wifiConnect, "connect", false, "Connect after saving and watch the attempt")

	wifiCmd.AddCommand(wifiConnectCmd)
	wifiCmd.AddCommand(wifiSaveCmd)
	rootCmd.AddCommand(wifiCmd)
}

func runWifiConnect(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	w, tgt, err := newWifiWatcher(cmd)
	if err != nil {
		return err
	}
	password, err := wifiPasswordValue()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Wi-Fi connect", "localota wifi connect", []ui.Param{
		{Key: "Device", Value: tgt.address},
		{Key: "SSID", Value: wifiSSID},
		{Key: "Simple", Value: strconv.FormatBool(wifiSimple)},
		{Key: "HTTP timeout", Value: tgt.client.Timeout().String()},
	})

	result, err := w.Connect(ctx, wifi.Request{
		SSID:     wifiSSID,
		Password: password,
		Simple:   wifiSimple,
		SkipScan: wifiNoScan,
	})
	if err != nil {
		return wifiFailure(p, err)
	}
	printWifiResult(p, result)
	return wifiExit(result)
}

func runWifiSave(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	w, tgt, err := newWifiWatcher(cmd)
	if err != nil {
		return err
	}
	password, err := wifiPasswordValue()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Wi-Fi save", "localota wifi save", []ui.Param{
		{Key: "Device", Value: tgt.address},
		{Key: "SSID", Value: wifiSSID},
		{Key: "Make last", Value: strconv.FormatBool(wifiMakeLast)},
		{Key: "Connect", Value: strconv.FormatBool(wifiConnect)},
		{Key: "HTTP timeout", Value: tgt.client.Timeout().String()},
	})

	result, err := w.Save(ctx, wifi.SaveRequest{
		SSID:     wifiSSID,
		Password: password,
		MakeLast: wifiMakeLast,
		Connect:  wifiConnect,
		Simple:   wifiSimple,
	})
	if err != nil {
		return wifiFailure(p, err)
	}
	printWifiResult(p, result)
	return wifiExit(result)
}

func newWifiWatcher(cmd *cobra.Command) (*wifi.Watcher, *target, error) {
	tgt, err := resolveTarget(cmd.Context(), false, device.DefaultWifiTimeout)
	if err != nil {
		return nil, nil, err
	}
	w := wifi.NewWatcher(tgt.client)
	w.Interval = wifiInterval
	w.Deadline = wifiTimeout
	w.Observer = func(e wifi.Event) {
		fmt.Printf("%s %s\n", time.Now().Format("15:04:05"), e.Message)
	}
	return w, tgt, nil
}

func wifiPasswordValue() (string, error) {
	if !wifiAskPassword {
		return wifiPassword, nil
	}
	pw, err := ui.ReadPassword("Password for " + wifiSSID + ": ")
	if errors.Is(err, ui.ErrNotTerminal) {
		return "", fmt.Errorf("--ask-password needs a terminal; use --password instead")
	}
	return pw, err
}

func printWifiResult(p *ui.Printer, r *wifi.Result) {
	var details []ui.Detail
	if r.Status != nil {
		details = append(details,
			ui.Detail{Key: "Station", Value: r.Status.STASSID},
			ui.Detail{Key: "Address", Value: r.Status.STAIP},
			ui.Detail{Key: "Status", Value: wifi.StatusLine(r.Status)},
		)
	}
	if r.Network != nil {
		details = append(details, ui.Detail{Key: "Access point", Value: fmt.Sprintf("%s ch%d %ddBm", r.Network.BSSID, r.Network.Channel, r.Network.RSSI)})
	}
	if r.Polls > 0 {
		details = append(details, ui.Detail{Key: "Polls", Value: strconv.Itoa(r.Polls)})
	}

	switch r.Outcome {
	case wifi.OutcomeConnected:
		title := "Connected"
		if r.Connect == nil && r.Status == nil {
			title = "Credentials saved"
		}
		p.PrintResult(ui.NewSuccessResult(title, details...))
	case wifi.OutcomeStopped:
		res := ui.NewFailureResult("Device stopped trying", stoppedError(r), []string{
			"Check the password and that the network is 2.4 GHz",
			"Move the device closer to the access point",
			"Retry with --simple if the hotspot channel conflicts with the network",
		})
		for _, d := range details {
			res.AddDetail(d.Key, d.Value)
		}
		p.PrintResult(res)
		switch {
		case r.Log != nil:
			if b, err := json.MarshalIndent(r.Log, "", "  "); err == nil {
				p.Newline()
				p.PrintLog("Device Wi-Fi log", string(b), 60)
			}
		case r.LogErr != nil:
			p.PrintNote("Could not fetch the device log: " + r.LogErr.Error())
		}
	default:
		res := ui.NewFailureResult("Timed out", errors.New("the device did not connect before the deadline"), []string{
			"Raise --timeout; the first association after a reboot can be slow",
			"The device may have moved to the network's channel; rejoin its hotspot to check",
		})
		for _, d := range details {
			res.AddDetail(d.Key, d.Value)
		}
		p.PrintResult(res)
	}
}

func stoppedError(r *wifi.Result) error {
	switch {
	case r.Save != nil && r.Status == nil:
		if r.Save.Error != "" {
			return fmt.Errorf("save rejected: %s", r.Save.Error)
		}
		return errors.New("save rejected")
	case r.Status != nil && r.Status.DiscReason != 0:
		return fmt.Errorf("disconnect reason %d (%s)", r.Status.DiscReason, wifi.ReasonName(r.Status.DiscReason))
	default:
		return errors.New("connection attempt ended")
	}
}

func wifiFailure(p *ui.Printer, err error) error {
	tips := []string{"Join the device's hotspot and use --device 192.168.4.1"}
	if hint := device.GetTroubleshootingHint(err); hint != "" {
		tips = append([]string{hint}, tips...)
	}
	p.PrintResult(ui.NewFailureResult("Wi-Fi request failed", err, tips))
	return &exitError{code: 1}
}

func wifiExit(r *wifi.Result) error {
	if code := r.Outcome.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
