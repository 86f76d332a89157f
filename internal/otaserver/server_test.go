package otaserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func stagingDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ota.json"), []byte(`{"version":"1"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "firmware.bin"), []byte("firmware-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := New(Config{Host: "127.0.0.1", Port: 0, Dir: stagingDir(t)}, &Counters{})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, fmt.Sprintf("http://127.0.0.1:%d", srv.Port())
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestCountersStartAtZero(t *testing.T) {
	srv, _ := startServer(t)
	if srv.Counters().Binary() != 0 || srv.Counters().Manifest() != 0 {
		t.Errorf("counters should start at zero, got manifest=%d binary=%d",
			srv.Counters().Manifest(), srv.Counters().Binary())
	}
	if srv.Port() == 0 {
		t.Error("Port() should report the bound ephemeral port")
	}
}

func TestServesAndCounts(t *testing.T) {
	srv, base := startServer(t)

	status, body := get(t, base+"/ota.json")
	if status != http.StatusOK || body != `{"version":"1"}`+"\n" {
		t.Errorf("GET /ota.json = %d %q", status, body)
	}
	status, body = get(t, base+"/firmware.bin")
	if status != http.StatusOK || body != "firmware-bytes" {
		t.Errorf("GET /firmware.bin = %d %q", status, body)
	}
	get(t, base+"/firmware.bin")

	if got := srv.Counters().Manifest(); got != 1 {
		t.Errorf("Manifest() = %d, want 1", got)
	}
	if got := srv.Counters().Binary(); got != 2 {
		t.Errorf("Binary() = %d, want 2", got)
	}
}

func TestConcurrentFetchesCountedExactly(t *testing.T) {
	srv, base := startServer(t)
	const n = 50

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			resp, err := http.Get(base + "/firmware.bin")
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			_, err = io.Copy(io.Discard, resp.Body)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent fetch failed: %v", err)
	}

	if got := srv.Counters().Binary(); got != n {
		t.Errorf("Binary() = %d, want %d", got, n)
	}
	if got := srv.Counters().Manifest(); got != 0 {
		t.Errorf("Manifest() = %d, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	counters := &Counters{}
	h := New(Config{Dir: stagingDir(t)}, counters).Handler()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"head not counted", http.MethodHead, "/firmware.bin", http.StatusOK},
		{"no directory listing", http.MethodGet, "/", http.StatusNotFound},
		{"missing file", http.MethodGet, "/other.bin", http.StatusNotFound},
		{"read only", http.MethodPost, "/firmware.bin", http.StatusMethodNotAllowed},
		{"put rejected", http.MethodPut, "/ota.json", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}

	if counters.Binary() != 0 || counters.Manifest() != 0 {
		t.Errorf("non-GET requests must not be counted, got manifest=%d binary=%d",
			counters.Manifest(), counters.Binary())
	}
}

func TestStartPortUnavailable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Close() }()
	port := l.Addr().(*net.TCPAddr).Port

	srv := New(Config{Host: "127.0.0.1", Port: port, Dir: t.TempDir()}, nil)
	err = srv.Start()
	if !errors.Is(err, ErrPortUnavailable) {
		t.Fatalf("Start() error = %v, want ErrPortUnavailable", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() after failed Start error = %v", err)
	}
}

func TestShutdownIdempotentAndStopsServing(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1", Dir: stagingDir(t), ShutdownGrace: time.Second}, nil)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	addr := srv.Addr()

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}

	client := http.Client{Timeout: time.Second}
	if _, err := client.Get("http://" + addr + "/ota.json"); err == nil {
		t.Error("server should not accept requests after Shutdown")
	}
}

func TestShutdownForcesStuckConnections(t *testing.T) {
	srv := New(Config{Host: "127.0.0.1", Dir: stagingDir(t), ShutdownGrace: 100 * time.Millisecond}, nil)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}

	// A client that opens a request and never finishes it keeps the
	// connection active.
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	_, _ = conn.Write([]byte("GET /firmware.bin HTTP/1.1\r\nHost: x\r\n"))
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown() took %s, want it bounded by the grace window", elapsed)
	}
}
