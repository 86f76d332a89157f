package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/localota/internal/artifact"
	"github.com/muurk/localota/internal/device"
	"github.com/muurk/localota/internal/manifest"
	"github.com/muurk/localota/internal/otaserver"
)

// fakeDevice implements Device in memory. When fetch is set, ApplyNow
// downloads firmware.bin from the manifest server the way a real device
// would after reading the manifest.
type fakeDevice struct {
	t *testing.T

	discoverURL string
	discoverErr error
	checkErr    error
	applyErr    error
	applyPanic  bool
	resetErr    error
	fetch       bool
	fetchDelay  time.Duration
	status      func(call int) (*device.StatusSnapshot, error)

	mu          sync.Mutex
	port        int
	resets      []string
	applyCalls  int
	statusCalls int
	wg          sync.WaitGroup
}

func (f *fakeDevice) DiscoverManifestURL(ctx context.Context, port int, path string) (*url.URL, error) {
	f.mu.Lock()
	f.port = port
	f.mu.Unlock()
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	raw := f.discoverURL
	if raw == "" {
		raw = fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	}
	return url.Parse(raw)
}

func (f *fakeDevice) SetManifestSource(ctx context.Context, manifestURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, manifestURL)
	return f.resetErr
}

func (f *fakeDevice) CheckNow(ctx context.Context) (*device.CheckResult, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &device.CheckResult{OK: true, Available: true, AvailableVersion: "x"}, nil
}

func (f *fakeDevice) ApplyNow(ctx context.Context) (map[string]any, error) {
	f.mu.Lock()
	f.applyCalls++
	port := f.port
	f.mu.Unlock()

	if f.applyPanic {
		panic("device exploded")
	}
	if f.fetch {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			time.Sleep(f.fetchDelay)
			resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/firmware.bin", port))
			if err != nil {
				f.t.Errorf("device fetch failed: %v", err)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
	}
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return map[string]any{"ok": true, "started": true}, nil
}

func (f *fakeDevice) Status(ctx context.Context) (*device.StatusSnapshot, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	f.mu.Unlock()
	if f.status == nil {
		return &device.StatusSnapshot{}, nil
	}
	return f.status(call)
}

func (f *fakeDevice) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resets)
}

func newFake(t *testing.T) *fakeDevice {
	f := &fakeDevice{t: t, fetch: true}
	t.Cleanup(f.wg.Wait)
	return f
}

func writeFirmware(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "firmware.bin")
	if err := os.WriteFile(path, []byte("\xe9firmware image"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, dev Device) Config {
	t.Helper()
	return Config{
		Device:           dev,
		DeviceName:       "test-device",
		StagingDir:       filepath.Join(t.TempDir(), "ota-local"),
		SourcePath:       writeFirmware(t),
		BindHost:         "127.0.0.1",
		Port:             0,
		DownloadDeadline: 2 * time.Second,
		DownloadPoll:     10 * time.Millisecond,
		RebootGrace:      10 * time.Millisecond,
		StatusDeadline:   2 * time.Second,
		StatusPoll:       10 * time.Millisecond,
		ShutdownGrace:    time.Second,
	}
}

func networkErr() error {
	return device.NewNetworkError("request failed", errors.New("connection reset"))
}

func assertCleanupOnce(t *testing.T, f *fakeDevice, r *Report) {
	t.Helper()
	if got := f.resetCount(); got != 1 {
		t.Errorf("manifest source reset %d times, want exactly 1", got)
	}
	if f.resets[0] != DefaultManifestURL {
		t.Errorf("reset to %s, want %s", f.resets[0], DefaultManifestURL)
	}
	if !r.CleanupRan {
		t.Error("report should record that cleanup ran")
	}
}

func TestRunSuccess(t *testing.T) {
	f := newFake(t)
	f.discoverURL = "http://192.168.4.1/"
	f.fetchDelay = 50 * time.Millisecond
	f.status = func(int) (*device.StatusSnapshot, error) {
		return &device.StatusSnapshot{CurrentVersion: "1.4.0"}, nil
	}
	cfg := testConfig(t, f)

	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeSuccess || r.ExitCode() != 0 {
		t.Fatalf("Outcome = %v (%v), want success", r.Outcome, r.Err)
	}
	if r.SessionID == "" {
		t.Error("SessionID should be set")
	}
	if r.Host != "192.168.4.1" {
		t.Errorf("Host = %s", r.Host)
	}
	if r.BinaryFetches != 1 {
		t.Errorf("BinaryFetches = %d, want 1", r.BinaryFetches)
	}
	if r.CurrentVersion != "1.4.0" {
		t.Errorf("CurrentVersion = %s", r.CurrentVersion)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", r.Warnings)
	}
	assertCleanupOnce(t, f, r)

	m, err := manifest.Read(cfg.StagingDir)
	if err != nil {
		t.Fatalf("manifest.Read() error = %v", err)
	}
	u, err := url.Parse(m.Bin)
	if err != nil {
		t.Fatal(err)
	}
	if u.Hostname() != "192.168.4.1" {
		t.Errorf("manifest bin host = %s, want the discovered host", u.Hostname())
	}
	if m.MD5 != r.Checksum || m.Version != r.Version {
		t.Errorf("manifest %+v does not match report", m)
	}
}

func TestRunDownloadTimeout(t *testing.T) {
	f := newFake(t)
	f.fetch = false
	cfg := testConfig(t, f)
	cfg.DownloadDeadline = 100 * time.Millisecond

	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeDownloadTimeout || r.ExitCode() != 2 {
		t.Fatalf("Outcome = %v, want download-timeout", r.Outcome)
	}
	if r.State != StateAwaitingDownload {
		t.Errorf("State = %v", r.State)
	}
	if f.statusCalls != 0 {
		t.Errorf("status polled %d times after a download timeout", f.statusCalls)
	}
	assertCleanupOnce(t, f, r)
}

func TestRunDiscoveryWithoutHost(t *testing.T) {
	var resets int
	var mu sync.Mutex
	dev := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/ota/manifest_from_client":
			_, _ = w.Write([]byte(`{}`))
		case "/api/config":
			mu.Lock()
			resets++
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			t.Errorf("unexpected call %s after failed discovery", r.URL.Path)
		}
	}))
	defer dev.Close()

	cfg := testConfig(t, device.NewClientWithURL(dev.URL))
	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeFatal {
		t.Fatalf("Outcome = %v, want fatal", r.Outcome)
	}
	if !device.IsProtocolError(r.Err) {
		t.Errorf("Err = %v, want protocol error", r.Err)
	}
	if r.State != StateDiscovering {
		t.Errorf("State = %v, want Discovering", r.State)
	}
	if _, err := os.Stat(filepath.Join(cfg.StagingDir, manifest.FileName)); !os.IsNotExist(err) {
		t.Error("no manifest should be written when discovery fails")
	}
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestRunStatusTimeout(t *testing.T) {
	f := newFake(t)
	f.status = func(int) (*device.StatusSnapshot, error) { return nil, networkErr() }
	cfg := testConfig(t, f)
	cfg.StatusDeadline = 100 * time.Millisecond

	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeStatusTimeout || r.ExitCode() != 4 {
		t.Fatalf("Outcome = %v (%v), want status-timeout", r.Outcome, r.Err)
	}
	if f.statusCalls < 2 {
		t.Errorf("statusCalls = %d, network errors should be retried", f.statusCalls)
	}
	assertCleanupOnce(t, f, r)
}

func TestRunStatusRecoversAfterReboot(t *testing.T) {
	f := newFake(t)
	f.status = func(call int) (*device.StatusSnapshot, error) {
		switch call {
		case 1:
			return nil, networkErr()
		case 2:
			return nil, device.NewHTTPError(503, "booting", nil)
		case 3:
			return nil, device.NewProtocolError("not json", []byte("<html>"), nil)
		}
		return &device.StatusSnapshot{}, nil
	}

	r := New(testConfig(t, f)).Run(context.Background())

	if r.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v (%v), want success", r.Outcome, r.Err)
	}
	if f.statusCalls != 4 {
		t.Errorf("statusCalls = %d, want 4", f.statusCalls)
	}
}

func TestRunDeviceReportedError(t *testing.T) {
	f := newFake(t)
	f.status = func(int) (*device.StatusSnapshot, error) {
		return &device.StatusSnapshot{State: device.OTAState{Error: "md5 mismatch: got 00ff"}}, nil
	}

	r := New(testConfig(t, f)).Run(context.Background())

	if r.Outcome != OutcomeDeviceReportedError || r.ExitCode() != 5 {
		t.Fatalf("Outcome = %v, want device-error", r.Outcome)
	}
	if r.DeviceError != "md5 mismatch: got 00ff" {
		t.Errorf("DeviceError = %q, want the raw device string", r.DeviceError)
	}
	assertCleanupOnce(t, f, r)
}

func TestRunSuccessWithWarning(t *testing.T) {
	f := newFake(t)
	f.status = func(int) (*device.StatusSnapshot, error) {
		return &device.StatusSnapshot{State: device.OTAState{Available: true, AvailableVersion: "99"}}, nil
	}

	r := New(testConfig(t, f)).Run(context.Background())

	if r.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v, want success", r.Outcome)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one warning about the pending update", r.Warnings)
	}
}

func TestRunNetworkErrorDuringTrigger(t *testing.T) {
	f := newFake(t)
	f.checkErr = networkErr()

	r := New(testConfig(t, f)).Run(context.Background())

	if r.Outcome != OutcomeNetworkError || r.ExitCode() != 3 {
		t.Fatalf("Outcome = %v, want network-error", r.Outcome)
	}
	if f.applyCalls != 0 {
		t.Error("apply should not be called after a network error")
	}
	assertCleanupOnce(t, f, r)
}

func TestRunNetworkErrorDuringDiscovery(t *testing.T) {
	f := newFake(t)
	f.discoverErr = networkErr()

	r := New(testConfig(t, f)).Run(context.Background())

	if r.Outcome != OutcomeNetworkError {
		t.Fatalf("Outcome = %v, want network-error", r.Outcome)
	}
	assertCleanupOnce(t, f, r)
}

func TestRunTriggerHTTPErrorsAreNotFatal(t *testing.T) {
	f := newFake(t)
	f.checkErr = device.NewHTTPError(503, "check failed", nil)
	f.applyErr = device.NewHTTPError(500, "odd", nil)

	r := New(testConfig(t, f)).Run(context.Background())

	if r.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v (%v), want success", r.Outcome, r.Err)
	}
	if len(r.Warnings) == 0 {
		t.Error("a failed trigger should be surfaced as a warning")
	}
}

func TestRunArtifactMissing(t *testing.T) {
	f := newFake(t)
	cfg := testConfig(t, f)
	cfg.SourcePath = filepath.Join(t.TempDir(), "missing.bin")

	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeFatal || r.ExitCode() != 1 {
		t.Fatalf("Outcome = %v, want fatal", r.Outcome)
	}
	if !errors.Is(r.Err, artifact.ErrArtifactNotFound) {
		t.Errorf("Err = %v, want ErrArtifactNotFound", r.Err)
	}
	if r.CleanupRan || f.resetCount() != 0 {
		t.Error("device must not be touched before the server is serving")
	}
}

func TestRunPortUnavailable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Close() }()

	f := newFake(t)
	cfg := testConfig(t, f)
	cfg.Port = l.Addr().(*net.TCPAddr).Port

	r := New(cfg).Run(context.Background())

	if !errors.Is(r.Err, otaserver.ErrPortUnavailable) {
		t.Fatalf("Err = %v, want ErrPortUnavailable", r.Err)
	}
	if r.Outcome != OutcomeFatal {
		t.Errorf("Outcome = %v", r.Outcome)
	}
}

func TestRunResetFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFake(t)
	f.resetErr = networkErr()

	r := New(testConfig(t, f)).Run(context.Background())

	if r.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v, want success", r.Outcome)
	}
	if r.CleanupErr == nil {
		t.Error("CleanupErr should record the failed reset")
	}
	assertCleanupOnce(t, f, r)
}

func TestRunVersionCollisionFlagged(t *testing.T) {
	now := time.Unix(1700000000, 0)
	f := newFake(t)
	cfg := testConfig(t, f)
	cfg.Now = func() time.Time { return now }
	cfg.PreviousVersion = "1700000000"

	r := New(cfg).Run(context.Background())

	if r.Version != "1700000000" {
		t.Errorf("Version = %s", r.Version)
	}
	if len(r.Warnings) == 0 {
		t.Error("a reused version token should be flagged")
	}
}

func TestRunDistinctVersionNotFlagged(t *testing.T) {
	now := time.Unix(1700000000, 0)
	f := newFake(t)
	cfg := testConfig(t, f)
	cfg.Now = func() time.Time { return now }
	cfg.PreviousVersion = "1699999999"

	r := New(cfg).Run(context.Background())

	for _, w := range r.Warnings {
		if strings.Contains(w, "already used") {
			t.Errorf("unexpected collision warning: %s", w)
		}
	}
}

func TestRunSkipStatus(t *testing.T) {
	f := newFake(t)
	cfg := testConfig(t, f)
	cfg.SkipStatus = true

	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v", r.Outcome)
	}
	if f.statusCalls != 0 {
		t.Errorf("statusCalls = %d, want 0", f.statusCalls)
	}
}

func TestRunCleanupOnPanic(t *testing.T) {
	f := newFake(t)
	f.fetch = false
	f.applyPanic = true

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		New(testConfig(t, f)).Run(context.Background())
	}()

	if got := f.resetCount(); got != 1 {
		t.Errorf("resets = %d, want 1 even when the session panics", got)
	}
}

func TestRunObserverSeesStatesInOrder(t *testing.T) {
	f := newFake(t)
	cfg := testConfig(t, f)

	var started []State
	cfg.Observer = func(e Event) {
		if e.Kind == EventStarted {
			started = append(started, e.State)
		}
	}

	r := New(cfg).Run(context.Background())
	if r.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v", r.Outcome)
	}

	want := Steps(false)
	if len(started) != len(want) {
		t.Fatalf("started = %v, want %v", started, want)
	}
	for i := range want {
		if started[i] != want[i] {
			t.Errorf("state %d = %v, want %v", i, started[i], want[i])
		}
	}
}

// httpDevice serves the real JSON device API. On update it fetches the
// firmware from whichever port it was told about; status answers with
// statusBody. It returns the base URL and the manifest sources it was
// reset to.
func httpDevice(t *testing.T, statusBody string) (string, func() []string) {
	t.Helper()
	var (
		mu      sync.Mutex
		port    int
		resets  []string
		fetched sync.WaitGroup
	)
	dev := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/ota/manifest_from_client":
			var req device.DiscoverRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			port = req.Port
			mu.Unlock()
			_, _ = fmt.Fprintf(w, `{"ok":true,"manifestUrl":"http://127.0.0.1:%d%s"}`, req.Port, req.Path)
		case "/api/ota/check":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"ok":false,"message":"no network"}`))
		case "/api/ota/update":
			mu.Lock()
			p := port
			mu.Unlock()
			fetched.Add(1)
			go func() {
				defer fetched.Done()
				resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/firmware.bin", p))
				if err == nil {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}
			}()
			_, _ = w.Write([]byte(`{"ok":true,"started":true}`))
		case "/api/ota/status":
			_, _ = w.Write([]byte(statusBody))
		case "/api/config":
			var body map[string]map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			resets = append(resets, body["ota"]["manifestUrl"])
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	t.Cleanup(func() {
		fetched.Wait()
		dev.Close()
	})

	return dev.URL, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), resets...)
	}
}

func TestRunAgainstHTTPDevice(t *testing.T) {
	base, resets := httpDevice(t, `{"state":{}}`)

	cfg := testConfig(t, device.NewClientWithURL(base))
	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeSuccess || r.ExitCode() != 0 {
		t.Fatalf("Outcome = %v (%v), want success", r.Outcome, r.Err)
	}
	if got := resets(); len(got) != 1 || got[0] != DefaultManifestURL {
		t.Errorf("resets = %v", got)
	}
}

func TestRunDeviceErrorWithUnexpectedFieldTypes(t *testing.T) {
	// currentVersion is a number here; the error must still be reported.
	base, resets := httpDevice(t, `{"currentVersion":2,"state":{"error":"md5 mismatch"}}`)

	cfg := testConfig(t, device.NewClientWithURL(base))
	r := New(cfg).Run(context.Background())

	if r.Outcome != OutcomeDeviceReportedError || r.ExitCode() != 5 {
		t.Fatalf("Outcome = %v exit %d (%v), want device-error exit 5", r.Outcome, r.ExitCode(), r.Err)
	}
	if r.DeviceError != "md5 mismatch" {
		t.Errorf("DeviceError = %q, want md5 mismatch", r.DeviceError)
	}
	if r.CurrentVersion != "2" {
		t.Errorf("CurrentVersion = %q, want 2", r.CurrentVersion)
	}
	if got := resets(); len(got) != 1 {
		t.Errorf("resets = %v, want one", got)
	}
}

func TestOutcomeRoundTrip(t *testing.T) {
	for o := OutcomeUnknown; o <= OutcomeDeviceReportedError; o++ {
		got, err := ParseOutcome(o.String())
		if err != nil || got != o {
			t.Errorf("ParseOutcome(%q) = %v, %v", o.String(), got, err)
		}
	}
	if _, err := ParseOutcome("bogus"); err == nil {
		t.Error("ParseOutcome(bogus) should fail")
	}
}

func TestOutcomeExitCodesDistinct(t *testing.T) {
	seen := map[int]Outcome{}
	for o := OutcomeSuccess; o <= OutcomeDeviceReportedError; o++ {
		if prev, ok := seen[o.ExitCode()]; ok {
			t.Errorf("%v and %v share exit code %d", prev, o, o.ExitCode())
		}
		seen[o.ExitCode()] = o
	}
}

func TestZeroReportIsNotSuccess(t *testing.T) {
	var r Report
	if r.Outcome == OutcomeSuccess {
		t.Fatal("zero Outcome must not read as success")
	}
	if r.Outcome != OutcomeUnknown || r.ExitCode() != 1 {
		t.Errorf("zero report: outcome %v exit %d, want unknown exit 1", r.Outcome, r.ExitCode())
	}
	if r.Message() == "" {
		t.Error("zero report should still have a message")
	}
}
