package otaserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/muurk/localota/internal/logging"
	"github.com/muurk/localota/internal/manifest"
	"go.uber.org/zap"
)

const (
	// DefaultPort is the port the manifest server listens on.
	DefaultPort = 8000

	// DefaultShutdownGrace bounds how long Shutdown waits for in-flight responses.
	DefaultShutdownGrace = 3 * time.Second
)

// ErrPortUnavailable is returned by Start when the listener cannot be bound.
var ErrPortUnavailable = errors.New("port unavailable")

// Config holds the manifest server configuration
type Config struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string
	// Port is the TCP port. 0 picks an ephemeral port.
	Port int
	// Dir is the staging directory served read-only.
	Dir string
	// ShutdownGrace bounds graceful shutdown. Default: 3 seconds
	ShutdownGrace time.Duration
}

// Server serves the staging directory to the device.
type Server struct {
	config   Config
	counters *Counters
	listener net.Listener
	http     *http.Server
	done     chan struct{}

	mu          sync.Mutex
	activeConns map[string]net.Conn

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a server that records fetches in counters.
func New(config Config, counters *Counters) *Server {
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultShutdownGrace
	}
	if counters == nil {
		counters = &Counters{}
	}
	return &Server{
		config:      config,
		counters:    counters,
		done:        make(chan struct{}),
		activeConns: make(map[string]net.Conn),
	}
}

// Counters returns the handle the server increments.
func (s *Server) Counters() *Counters {
	return s.counters
}

// Start binds the listener and begins serving in a background goroutine.
// It returns an error wrapping ErrPortUnavailable if the bind fails.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPortUnavailable, addr, err)
	}
	s.listener = listener

	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ConnState:         s.trackConn,
	}

	logging.Info("Manifest server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("dir", s.config.Dir),
	)

	go func() {
		defer close(s.done)
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Manifest server stopped", zap.Error(err))
		}
	}()

	return nil
}

// Port returns the bound port, or the configured one before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return s.config.Port
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.config.Port
}

// Addr returns the listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the HTTP handler serving the staging directory.
func (s *Server) Handler() http.Handler {
	files := http.FileServer(noListingFS{http.Dir(s.config.Dir)})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
		default:
			rec.Header().Set("Allow", "GET, HEAD")
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
			return
		}

		if r.Method == http.MethodGet {
			switch r.URL.Path {
			case manifest.Path:
				s.counters.addManifest()
			case manifest.BinPath:
				s.counters.addBinary()
			}
		}

		files.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
	})
}

// Shutdown stops accepting connections and waits for in-flight responses
// until ctx is done or the grace window elapses, then force-closes what is
// left. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	logging.Info("Shutting down manifest server...")

	graceCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownGrace)
	defer cancel()

	err := s.http.Shutdown(graceCtx)
	if err != nil {
		s.mu.Lock()
		for addr := range s.activeConns {
			logging.Warn("Closing stuck connection", zap.String("remote_addr", addr))
		}
		s.mu.Unlock()

		if closeErr := s.http.Close(); closeErr != nil {
			logging.Error("Error closing manifest server", zap.Error(closeErr))
		}
	}

	<-s.done
	logging.Info("Manifest server stopped")

	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("manifest server shutdown: %w", err)
	}
	return nil
}

func (s *Server) trackConn(conn net.Conn, state http.ConnState) {
	addr := conn.RemoteAddr().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch state {
	case http.StateNew:
		s.activeConns[addr] = conn
		logging.Debug("Connection accepted", zap.String("remote_addr", addr))
	case http.StateClosed, http.StateHijacked:
		delete(s.activeConns, addr)
		logging.Debug("Connection closed", zap.String("remote_addr", addr))
	}
}

// noListingFS hides directories so the file server never renders an index.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}
