package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/localota/internal/artifact"
	"github.com/muurk/localota/internal/config"
	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/env"
	"github.com/muurk/localota/internal/history"
	"github.com/muurk/localota/internal/logging"
	"github.com/muurk/localota/internal/otaserver"
	"github.com/muurk/localota/internal/session"
	"github.com/muurk/localota/internal/ui"
)

// Update command flags
var (
	updatePort               int
	updateBind               string
	updateNoBuild            bool
	updateEnv                string
	updateProjectDir         string
	updateBuildCmd           string
	updateSource             string
	updateStagingDir         string
	updateDefaultManifestURL string
	updateDownloadTimeout    time.Duration
	updateStatusTimeout      time.Duration
	updateRebootGrace        time.Duration
	updateNoStatusWait       bool
	updateYes                bool
	updateDiscover           bool
	updateNoHistory          bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Build, serve and flash firmware over the local network",
	Long: `Run one local OTA update session against the device.

Steps:
  1. Build the firmware (skipped with --no-build)
  2. Stage firmware.bin and serve it with a fresh ota.json manifest
  3. Ask the device which address it sees this machine on
  4. Point the device at the local manifest and trigger the update
  5. Wait for the device to download firmware.bin
  6. Wait for the device to answer status requests after rebooting

Whatever happens, the device's manifest source is reset to the default
release manifest before the command exits.

Exit codes:
  0  success
  1  fatal error (build, artifact, port, usage, interrupted)
  2  device never downloaded the firmware
  3  network error talking to the device
  4  device did not come back after the download
  5  device reported an update error`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().IntVarP(&updatePort, "port", "p", 0, "Local manifest server port (default: profile, $LOCALOTA_PORT, 8000)")
	updateCmd.Flags().StringVar(&updateBind, "bind", "", "Local address to listen on (default: all interfaces)")
	updateCmd.Flags().BoolVar(&updateNoBuild, "no-build", false, "Skip the firmware build and use the existing binary")
	updateCmd.Flags().StringVar(&updateEnv, "env", "", "Build environment (default: profile or "+artifact.DefaultEnv+")")
	updateCmd.Flags().StringVar(&updateProjectDir, "project-dir", "", "Firmware project directory (default: profile or current directory)")
	updateCmd.Flags().StringVar(&updateBuildCmd, "build-cmd", "", "Build command line (default: pio run -e <env>)")
	updateCmd.Flags().StringVar(&updateSource, "source", "", "Firmware binary to serve (default: <project>/.pio/build/<env>/firmware.bin)")
	updateCmd.Flags().StringVar(&updateStagingDir, "staging-dir", artifact.DefaultStagingDir, "Directory served to the device")
	updateCmd.Flags().StringVar(&updateDefaultManifestURL, "default-manifest-url", "", "Manifest URL restored on the device afterwards")
	updateCmd.Flags().DurationVar(&updateDownloadTimeout, "download-timeout", 0, "How long to wait for the device to fetch the firmware (default: preferences, 90s)")
	updateCmd.Flags().DurationVar(&updateStatusTimeout, "status-timeout", 0, "How long to wait for the device after the download (default: preferences, 120s)")
	updateCmd.Flags().DurationVar(&updateRebootGrace, "reboot-grace", session.DefaultRebootGrace, "Pause after the download before polling status")
	updateCmd.Flags().BoolVar(&updateNoStatusWait, "no-status-wait", false, "Stop after the download and reboot grace period")
	updateCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "Skip the confirmation prompt")
	updateCmd.Flags().BoolVar(&updateDiscover, "discover", false, "Find the device over mDNS; with --device, look that instance name up")
	updateCmd.Flags().BoolVar(&updateNoHistory, "no-history", false, "Do not record the session in the history database")

	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	tgt, err := resolveTarget(ctx, updateDiscover, device.DefaultTimeout)
	if err != nil {
		return err
	}
	profile := reg.Profile(tgt.profile)

	buildEnv := firstNonEmpty(updateEnv, profileField(profile, func(p *config.Profile) string { return p.Env }), artifact.DefaultEnv)
	projectDir := firstNonEmpty(updateProjectDir, profileField(profile, func(p *config.Profile) string { return p.ProjectDir }), ".")
	source := firstNonEmpty(updateSource, artifact.DefaultSourcePath(projectDir, buildEnv))
	port := resolvePort(cmd, profile)
	manifestURL := firstNonEmpty(
		updateDefaultManifestURL,
		env.String(env.DefaultManifestURL, ""),
		profileField(profile, func(p *config.Profile) string { return p.DefaultManifestURL }),
		session.DefaultManifestURL,
	)

	params := []ui.Param{
		{Key: "Device", Value: tgt.address},
		{Key: "Profile", Value: tgt.profile},
		{Key: "Firmware", Value: source},
		{Key: "Serving", Value: fmt.Sprintf("%s:%d", orAll(updateBind), port)},
	}

	if !updateNoBuild {
		if err := buildFirmware(ctx, projectDir, buildEnv); err != nil {
			ui.NewPrinter(os.Stderr).PrintResult(ui.NewFailureResult("Build failed", err, []string{
				"Run the build by hand in " + projectDir + " to see the full output",
				"Use --build-cmd to override the build command",
				"Use --no-build with --source to serve an existing binary",
			}))
			return &exitError{code: session.OutcomeFatal.ExitCode()}
		}
	}

	if reg.Preferences != nil && reg.Preferences.ConfirmFlash && !updateYes {
		if !ui.ConfirmFlash(os.Stdin, os.Stdout, tgt.address, source) {
			return &exitError{code: session.OutcomeFatal.ExitCode(), err: errors.New("update cancelled")}
		}
	}

	view := ui.NewSessionView(os.Stdout, "localota update", params, updateNoStatusWait)
	view.Start()

	sess := session.New(session.Config{
		Device:             tgt.client,
		DeviceName:         tgt.address,
		StagingDir:         updateStagingDir,
		SourcePath:         source,
		BindHost:           updateBind,
		Port:               port,
		DefaultManifestURL: manifestURL,
		PreviousVersion:    profileField(profile, func(p *config.Profile) string { return p.LastVersion }),
		DownloadDeadline:   pickDuration(updateDownloadTimeout, prefSeconds(reg, func(p *config.Preferences) int { return p.DownloadTimeout })),
		RebootGrace:        updateRebootGrace,
		StatusDeadline:     pickDuration(updateStatusTimeout, prefSeconds(reg, func(p *config.Preferences) int { return p.StatusTimeout })),
		SkipStatus:         updateNoStatusWait,
		Observer:           view.Observe,
	})
	report := sess.Run(ctx)
	view.Finish(report)

	// Bookkeeping must survive an interrupted session.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	recordHistory(bookCtx, tgt.profile, report)
	recordProfile(tgt.profile, tgt.address, report)

	if code := report.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func buildFirmware(ctx context.Context, projectDir, buildEnv string) error {
	cfg := artifact.DefaultBuildConfig(projectDir, buildEnv)
	if updateBuildCmd != "" {
		cfg.Command = strings.Fields(updateBuildCmd)
	}
	builder := artifact.NewBuilder(cfg, logging.GetLogger())
	if err := builder.Validate(); err != nil {
		return err
	}
	fmt.Printf("Building firmware (%s) in %s...\n\n", strings.Join(cfg.Command, " "), projectDir)
	return builder.Build(ctx)
}

func recordHistory(ctx context.Context, name string, report *session.Report) {
	if updateNoHistory {
		return
	}
	store, err := history.Open(history.DefaultPath())
	if err != nil {
		logging.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	if err := store.Record(ctx, report); err != nil {
		logging.Warn("failed to record session", zap.String("profile", name), zap.Error(err))
	}
}

// recordProfile stores the session result on the device profile. The file is
// read again first so edits made while the session ran are kept.
func recordProfile(name, address string, report *session.Report) {
	reg, err := config.ReloadRegistry()
	if err != nil {
		logging.Warn("failed to reload config", zap.String("path", config.GetConfigPath()), zap.Error(err))
		return
	}
	p := reg.EnsureProfile(name)
	if p.Address == "" {
		p.Address = address
	}
	reg.RecordSession(name, report.SessionID, report.Version, report.Outcome.String(), report.FinishedAt)
	if err := config.SaveGlobal(); err != nil {
		logging.Warn("failed to save config", zap.String("path", config.GetConfigPath()), zap.Error(err))
	}
}

// resolvePort picks the manifest server port: flag, environment, profile,
// then the default.
func resolvePort(cmd *cobra.Command, p *config.Profile) int {
	if cmd.Flags().Changed("port") {
		return updatePort
	}
	if v := env.Int(env.Port, 0); v > 0 {
		return v
	}
	if p != nil && p.Port > 0 {
		return p.Port
	}
	return otaserver.DefaultPort
}

func profileField(p *config.Profile, get func(*config.Profile) string) string {
	if p == nil {
		return ""
	}
	return get(p)
}

func prefSeconds(reg *config.Registry, get func(*config.Preferences) int) time.Duration {
	if reg.Preferences == nil {
		return 0
	}
	return time.Duration(get(reg.Preferences)) * time.Second
}

func pickDuration(values ...time.Duration) time.Duration {
	for _, d := range values {
		if d > 0 {
			return d
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orAll(host string) string {
	if host == "" {
		return "0.0.0.0"
	}
	return host
}
