package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/muurk/localota/internal/artifact"
	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/logging"
	"github.com/muurk/localota/internal/manifest"
	"github.com/muurk/localota/internal/otaserver"
	"github.com/muurk/localota/internal/poll"
	"go.uber.org/zap"
)

// DefaultManifestURL is the release manifest the device is pointed back at
// when a session ends.
const DefaultManifestURL = "https://github.com/yk8-git/smart-shabat/releases/latest/download/ota.json"

const (
	DefaultDownloadDeadline = 90 * time.Second
	DefaultDownloadPoll     = 250 * time.Millisecond
	DefaultRebootGrace      = 10 * time.Second
	DefaultStatusDeadline   = 120 * time.Second
	DefaultStatusPoll       = time.Second
	DefaultCleanupTimeout   = 10 * time.Second
)

// Device is the part of the device API a session drives.
// *device.Client implements it.
type Device interface {
	DiscoverManifestURL(ctx context.Context, port int, path string) (*url.URL, error)
	SetManifestSource(ctx context.Context, manifestURL string) error
	CheckNow(ctx context.Context) (*device.CheckResult, error)
	ApplyNow(ctx context.Context) (map[string]any, error)
	Status(ctx context.Context) (*device.StatusSnapshot, error)
}

// Config holds the session configuration
type Config struct {
	// Device is the control client for the target device.
	Device Device
	// DeviceName labels the device in reports (address or profile name).
	DeviceName string

	// StagingDir is served to the device. Default: "ota-local"
	StagingDir string
	// SourcePath is the built firmware image.
	SourcePath string

	// BindHost is the listen address. Empty binds all interfaces.
	BindHost string
	// Port is the manifest server port. 0 picks an ephemeral port.
	Port int
	// ShutdownGrace bounds manifest server shutdown.
	ShutdownGrace time.Duration

	// DefaultManifestURL is restored on the device during cleanup.
	DefaultManifestURL string
	// PreviousVersion is the version token of the last session against
	// this device, used to flag collisions.
	PreviousVersion string

	DownloadDeadline time.Duration
	DownloadPoll     time.Duration
	RebootGrace      time.Duration
	StatusDeadline   time.Duration
	StatusPoll       time.Duration
	CleanupTimeout   time.Duration

	// SkipStatus ends the session after the reboot grace period without
	// waiting for the device to answer status requests.
	SkipStatus bool

	// Observer receives progress events. Optional.
	Observer Observer
	// Now is the clock used for version tokens. Default: time.Now
	Now func() time.Time
}

// Session is one update attempt. It must not be run more than once.
type Session struct {
	cfg Config
}

// New creates a session, filling unset durations with defaults.
func New(cfg Config) *Session {
	if cfg.StagingDir == "" {
		cfg.StagingDir = artifact.DefaultStagingDir
	}
	if cfg.DefaultManifestURL == "" {
		cfg.DefaultManifestURL = DefaultManifestURL
	}
	if cfg.DownloadDeadline <= 0 {
		cfg.DownloadDeadline = DefaultDownloadDeadline
	}
	if cfg.DownloadPoll <= 0 {
		cfg.DownloadPoll = DefaultDownloadPoll
	}
	if cfg.RebootGrace < 0 {
		cfg.RebootGrace = 0
	}
	if cfg.StatusDeadline <= 0 {
		cfg.StatusDeadline = DefaultStatusDeadline
	}
	if cfg.StatusPoll <= 0 {
		cfg.StatusPoll = DefaultStatusPoll
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{cfg: cfg}
}

// Run executes the session and returns its report. It never returns nil.
func (s *Session) Run(ctx context.Context) *Report {
	report := &Report{
		SessionID: uuid.NewString(),
		Device:    s.cfg.DeviceName,
		StartedAt: time.Now(),
	}
	defer func() {
		report.FinishedAt = time.Now()
		logging.Info("Session finished",
			zap.String("session", report.SessionID),
			zap.String("outcome", report.Outcome.String()),
			zap.String("state", report.State.String()),
			zap.Duration("duration", report.Duration()),
		)
	}()

	log := logging.GetLogger().With(zap.String("session", report.SessionID))
	log.Info("Session started",
		zap.String("device", s.cfg.DeviceName),
		zap.String("source", s.cfg.SourcePath),
	)

	// Staging
	s.enter(report, StateStaging)
	desc, err := artifact.Stage(s.cfg.StagingDir, s.cfg.SourcePath)
	if err != nil {
		return s.fail(report, OutcomeFatal, err)
	}
	report.Checksum = desc.Checksum
	report.Size = desc.Size
	s.complete(report, fmt.Sprintf("%d bytes, md5 %s", desc.Size, desc.Checksum))

	// Serving
	s.enter(report, StateServing)
	counters := &otaserver.Counters{}
	srv := otaserver.New(otaserver.Config{
		Host:          s.cfg.BindHost,
		Port:          s.cfg.Port,
		Dir:           s.cfg.StagingDir,
		ShutdownGrace: s.cfg.ShutdownGrace,
	}, counters)
	if err := srv.Start(); err != nil {
		return s.fail(report, OutcomeFatal, err)
	}
	defer s.cleanup(ctx, srv, counters, report)
	s.complete(report, fmt.Sprintf("listening on %s", srv.Addr()))

	// Discovering
	s.enter(report, StateDiscovering)
	manifestURL, err := s.cfg.Device.DiscoverManifestURL(ctx, srv.Port(), manifest.Path)
	if err != nil {
		return s.fail(report, classify(err), err)
	}
	report.ManifestURL = manifestURL.String()
	report.Host = manifestURL.Hostname()
	s.complete(report, fmt.Sprintf("device reaches us at %s", report.Host))

	// ManifestWritten
	s.enter(report, StateManifestWritten)
	now := s.cfg.Now()
	version := manifest.NewVersion(now)
	if manifest.SameSecond(s.cfg.PreviousVersion, now) {
		report.warn("version %s was already used by the previous session; the device may treat this build as installed", version)
		log.Warn("Version token collision", zap.String("version", version))
	}
	m := manifest.New(version, report.Host, srv.Port(), desc.Checksum)
	if err := manifest.Write(s.cfg.StagingDir, m); err != nil {
		return s.fail(report, OutcomeFatal, err)
	}
	report.Version = m.Version
	report.BinURL = m.Bin
	s.complete(report, fmt.Sprintf("version %s, bin %s", m.Version, m.Bin))

	// Triggering
	s.enter(report, StateTriggering)
	check, err := s.cfg.Device.CheckNow(ctx)
	if device.IsNetworkError(err) {
		return s.fail(report, OutcomeNetworkError, err)
	}
	if err != nil {
		log.Warn("Update check failed, triggering anyway", zap.Error(err))
		s.info(report, fmt.Sprintf("check: %s", device.GetShortErrorMessage(err)))
	} else {
		log.Info("Update check", zap.Any("result", check))
		s.info(report, fmt.Sprintf("check: available=%v %s", check.Available, check.AvailableVersion))
	}

	applied, err := s.cfg.Device.ApplyNow(ctx)
	if device.IsNetworkError(err) {
		return s.fail(report, OutcomeNetworkError, err)
	}
	if err != nil {
		log.Warn("Update trigger failed, waiting for download anyway", zap.Error(err))
		report.warn("update trigger: %s", device.GetShortErrorMessage(err))
	} else {
		log.Info("Update triggered", zap.Any("result", applied))
	}
	s.complete(report, "")

	// AwaitingDownload
	s.enter(report, StateAwaitingDownload)
	err = poll.Until(ctx, poll.Policy{
		Interval: s.cfg.DownloadPoll,
		Deadline: s.cfg.DownloadDeadline,
	}, func(context.Context) (bool, error) {
		return counters.Binary() > 0, nil
	})
	if errors.Is(err, poll.ErrDeadline) {
		return s.fail(report, OutcomeDownloadTimeout,
			fmt.Errorf("firmware not downloaded within %s", s.cfg.DownloadDeadline))
	}
	if err != nil {
		return s.fail(report, OutcomeFatal, err)
	}
	s.info(report, "firmware.bin downloaded; waiting for reboot")
	if err := sleep(ctx, s.cfg.RebootGrace); err != nil {
		return s.fail(report, OutcomeFatal, err)
	}
	s.complete(report, "")

	if s.cfg.SkipStatus {
		report.warn("status check skipped; the install result was not confirmed")
		return s.succeed(report)
	}

	// AwaitingStatus
	s.enter(report, StateAwaitingStatus)
	var snap *device.StatusSnapshot
	err = poll.Until(ctx, poll.Policy{
		Interval:  s.cfg.StatusPoll,
		Deadline:  s.cfg.StatusDeadline,
		Retryable: statusRetryable,
		OnRetry: func(attempt int, err error) {
			log.Debug("Device not answering yet", zap.Int("attempt", attempt), zap.Error(err))
		},
	}, func(pctx context.Context) (bool, error) {
		st, err := s.cfg.Device.Status(pctx)
		if err != nil {
			return false, err
		}
		snap = st
		return true, nil
	})
	if errors.Is(err, poll.ErrDeadline) {
		return s.fail(report, OutcomeStatusTimeout,
			fmt.Errorf("device status not available within %s: %w", s.cfg.StatusDeadline, err))
	}
	if err != nil {
		return s.fail(report, OutcomeFatal, err)
	}

	report.CurrentVersion = snap.CurrentVersion
	if snap.State.Error != "" {
		report.DeviceError = snap.State.Error
		return s.fail(report, OutcomeDeviceReportedError, fmt.Errorf("device reported: %s", snap.State.Error))
	}
	if snap.State.Available {
		report.warn("device still reports an update available (%s); the new image may not have been applied",
			snap.State.AvailableVersion)
		log.Warn("Device still reports update available",
			zap.String("available_version", snap.State.AvailableVersion))
	}
	s.complete(report, fmt.Sprintf("running %s", snap.CurrentVersion))

	return s.succeed(report)
}

// cleanup restores the default manifest source and stops the server.
// It runs once, from a defer registered as soon as the server is serving.
func (s *Session) cleanup(ctx context.Context, srv *otaserver.Server, counters *otaserver.Counters, report *Report) {
	report.CleanupRan = true
	report.ManifestFetches = counters.Manifest()
	report.BinaryFetches = counters.Binary()

	// The session context may already be cancelled; cleanup still runs.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CleanupTimeout)
	defer cancel()

	var result *multierror.Error
	if err := s.cfg.Device.SetManifestSource(cctx, s.cfg.DefaultManifestURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("reset manifest source: %w", err))
	}
	if err := srv.Shutdown(cctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop manifest server: %w", err))
	}

	report.CleanupErr = result.ErrorOrNil()
	if report.CleanupErr != nil {
		logging.Warn("Cleanup incomplete",
			zap.String("session", report.SessionID),
			zap.Error(report.CleanupErr),
		)
		return
	}
	logging.Info("Device manifest source restored",
		zap.String("session", report.SessionID),
		zap.String("manifest_url", s.cfg.DefaultManifestURL),
	)
}

// statusRetryable swallows everything a rebooting device can produce:
// unreachable, 5xx, or a half-started web server answering garbage.
func statusRetryable(err error) bool {
	return device.IsTransient(err) || device.IsProtocolError(err)
}

func classify(err error) Outcome {
	if device.IsNetworkError(err) {
		return OutcomeNetworkError
	}
	return OutcomeFatal
}

func (s *Session) enter(report *Report, state State) {
	report.State = state
	logging.Debug("Session state", zap.String("session", report.SessionID), zap.String("state", state.String()))
	s.notify(Event{State: state, Kind: EventStarted, Message: state.Description()})
}

func (s *Session) complete(report *Report, msg string) {
	s.notify(Event{State: report.State, Kind: EventCompleted, Message: msg})
}

func (s *Session) info(report *Report, msg string) {
	s.notify(Event{State: report.State, Kind: EventInfo, Message: msg})
}

func (s *Session) fail(report *Report, outcome Outcome, err error) *Report {
	report.Outcome = outcome
	report.Err = err
	logging.Error("Session failed",
		zap.String("session", report.SessionID),
		zap.String("state", report.State.String()),
		zap.String("outcome", outcome.String()),
		zap.Error(err),
	)
	s.notify(Event{State: report.State, Kind: EventFailed, Message: err.Error()})
	return report
}

func (s *Session) succeed(report *Report) *Report {
	report.Outcome = OutcomeSuccess
	return report
}

func (s *Session) notify(e Event) {
	if s.cfg.Observer != nil {
		s.cfg.Observer(e)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
