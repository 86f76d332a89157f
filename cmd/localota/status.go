package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/session"
	"github.com/muurk/localota/internal/ui"
)

var (
	statusJSON     bool
	statusDiscover bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the device's OTA status once",
	Long: `Read /api/ota/status from the device and print it.

With --json the document is printed exactly as the device sent it,
including fields this tool does not know about.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status document as JSON")
	statusCmd.Flags().BoolVar(&statusDiscover, "discover", false, "Find the device over mDNS; with --device, look that instance name up")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	tgt, err := resolveTarget(ctx, statusDiscover, device.DefaultTimeout)
	if err != nil {
		return err
	}

	snap, err := tgt.client.Status(ctx)
	if err != nil {
		tips := []string{"Check that this machine can reach " + tgt.address}
		if hint := device.GetTroubleshootingHint(err); hint != "" {
			tips = append([]string{hint}, tips...)
		}
		ui.NewPrinter(os.Stderr).PrintResult(ui.NewFailureResult("Status request failed", err, tips))
		code := session.OutcomeFatal.ExitCode()
		if device.IsNetworkError(err) {
			code = session.OutcomeNetworkError.ExitCode()
		}
		return &exitError{code: code}
	}

	if statusJSON {
		doc := snap.Raw
		if doc == nil {
			doc = map[string]any{}
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Device status", "localota status", []ui.Param{
		{Key: "Device", Value: tgt.address},
		{Key: "HTTP timeout", Value: tgt.client.Timeout().String()},
	})
	p.Println(statusResult(snap).SetWidth(p.Width()).Render())
	return nil
}

// statusResult renders a snapshot as a result box. An update error or a
// holy time block turns it into a warning.
func statusResult(s *device.StatusSnapshot) *ui.Result {
	details := []ui.Detail{
		{Key: "Firmware", Value: s.CurrentVersion},
		{Key: "Manifest", Value: s.Config.ManifestURL},
		{Key: "Auto update", Value: yesNo(s.Config.Auto)},
		{Key: "Check every", Value: hours(s.Config.CheckHours)},
		{Key: "Wi-Fi", Value: connected(s.WifiConnected)},
		{Key: "Clock", Value: valid(s.TimeValid)},
		{Key: "Last check", Value: unixTime(s.State.LastCheckUtc)},
		{Key: "Last attempt", Value: unixTime(s.State.LastAttemptUtc)},
	}
	if s.State.Available {
		details = append(details, ui.Detail{Key: "Available", Value: s.State.AvailableVersion})
	}
	if s.State.Notes != "" {
		details = append(details, ui.Detail{Key: "Notes", Value: s.State.Notes})
	}

	var warnings []string
	if s.State.Error != "" {
		warnings = append(warnings, "Last update error: "+s.State.Error)
	}
	if s.BlockedByHolyTime {
		warnings = append(warnings, "Updates are blocked right now (holy time)")
	}
	if len(warnings) > 0 {
		return ui.NewWarningResult("Device answered with warnings", warnings, details...)
	}
	return ui.NewSuccessResult("Device is online", details...)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func connected(b bool) string {
	if b {
		return "connected"
	}
	return "not connected"
}

func valid(b bool) string {
	if b {
		return "synchronised"
	}
	return "not set"
}

func hours(h int) string {
	if h <= 0 {
		return ""
	}
	return strconv.Itoa(h) + "h"
}

func unixTime(sec int64) string {
	if sec <= 0 {
		return ""
	}
	return time.Unix(sec, 0).Local().Format("2006-01-02 15:04:05")
}
