package device

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"unicode/utf8"
)

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    ErrorType
		subtype NetworkErrorSubtype
	}{
		{
			name: "timeout",
			err: &url.Error{Op: "Get", URL: "http://192.168.4.1", Err: &net.OpError{
				Op: "dial", Net: "tcp", Err: &timeoutError{},
			}},
			want:    ErrTypeTimeout,
			subtype: NetworkErrorTimeout,
		},
		{
			name: "connection refused",
			err: &url.Error{Op: "Post", URL: "http://192.168.4.1", Err: &net.OpError{
				Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED,
			}},
			want:    ErrTypeConnectionRefused,
			subtype: NetworkErrorConnectionRefused,
		},
		{
			name:    "dns",
			err:     &net.DNSError{Err: "no such host", Name: "smartshabat.local", IsNotFound: true},
			want:    ErrTypeDNS,
			subtype: NetworkErrorDNS,
		},
		{
			name:    "host unreachable",
			err:     &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH},
			want:    ErrTypeNetwork,
			subtype: NetworkErrorHostUnreachable,
		},
		{
			name:    "network unreachable",
			err:     &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ENETUNREACH},
			want:    ErrTypeNetwork,
			subtype: NetworkErrorNetworkUnreachable,
		},
		{
			name:    "generic",
			err:     errors.New("connection reset"),
			want:    ErrTypeNetwork,
			subtype: NetworkErrorGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devErr := ClassifyNetworkError(tt.err, "192.168.4.1")
			if devErr == nil {
				t.Fatal("expected DeviceError, got nil")
			}
			if devErr.Type != tt.want {
				t.Errorf("Type = %v, want %v", devErr.Type, tt.want)
			}
			if devErr.NetworkSubtype != tt.subtype {
				t.Errorf("NetworkSubtype = %v, want %v", devErr.NetworkSubtype, tt.subtype)
			}
			if !devErr.Retryable {
				t.Error("network errors should be retryable")
			}
			if !IsNetworkError(devErr) {
				t.Error("IsNetworkError() = false")
			}
		})
	}

	if ClassifyNetworkError(nil, "") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestPredicates(t *testing.T) {
	network := NewNetworkError("status failed", errors.New("reset"))
	http503 := NewHTTPError(503, "check failed", []byte(`{"ok":false}`))
	http403 := NewHTTPError(403, "blocked", nil)
	protocol := NewProtocolError("not json", []byte("<html>"), nil)
	bad := NewBadResponseError("no manifestUrl", []byte("{}"))
	wrapped := fmt.Errorf("discover: %w", bad)

	tests := []struct {
		name      string
		err       error
		network   bool
		http      bool
		protocol  bool
		transient bool
	}{
		{"network", network, true, false, false, true},
		{"http 503", http503, false, true, false, true},
		{"http 403", http403, false, true, false, false},
		{"protocol", protocol, false, false, true, false},
		{"bad response", bad, false, false, true, false},
		{"wrapped", wrapped, false, false, true, false},
		{"plain", errors.New("x"), false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNetworkError(tt.err); got != tt.network {
				t.Errorf("IsNetworkError() = %v", got)
			}
			if got := IsHTTPError(tt.err); got != tt.http {
				t.Errorf("IsHTTPError() = %v", got)
			}
			if got := IsProtocolError(tt.err); got != tt.protocol {
				t.Errorf("IsProtocolError() = %v", got)
			}
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient() = %v", got)
			}
		})
	}
}

func TestExcerptTruncates(t *testing.T) {
	body := []byte(strings.Repeat("x", 500))
	err := NewProtocolError("not json", body, nil)
	if len(err.Body) != bodyExcerptLimit+3 {
		t.Errorf("Body length = %d, want %d", len(err.Body), bodyExcerptLimit+3)
	}
	if !strings.Contains(err.Error(), "Protocol Error") {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	// One ASCII byte shifts the two-byte Hebrew letters so the limit falls
	// inside a rune.
	body := []byte("x" + strings.Repeat("ש", 200))
	err := NewProtocolError("not json", body, nil)

	if !utf8.ValidString(err.Body) {
		t.Fatalf("Body is not valid UTF-8: %q", err.Body)
	}
	if !strings.HasSuffix(err.Body, "...") {
		t.Errorf("Body should end with an ellipsis: %q", err.Body)
	}
	if got, want := len(err.Body), bodyExcerptLimit-1+3; got != want {
		t.Errorf("Body length = %d, want %d", got, want)
	}

	short := NewProtocolError("not json", []byte("שגיאה"), nil)
	if short.Body != "שגיאה" {
		t.Errorf("short body changed: %q", short.Body)
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&DeviceError{Type: ErrTypeTimeout}, "did not respond in time"},
		{&DeviceError{Type: ErrTypeConnectionRefused}, "refused"},
		{&DeviceError{Type: ErrTypeDNS}, "localota scan"},
		{&DeviceError{Type: ErrTypeNetwork, NetworkSubtype: NetworkErrorHostUnreachable, DeviceIP: "192.168.4.1"}, "ping 192.168.4.1"},
		{&DeviceError{Type: ErrTypeHTTP, StatusCode: 403}, "quiet periods"},
		{&DeviceError{Type: ErrTypeHTTP, StatusCode: 500}, "HTTP 500"},
		{&DeviceError{Type: ErrTypeBadResponse}, "local OTA"},
		{errors.New("other"), "unexpected error"},
	}
	for _, tt := range tests {
		if got := GetTroubleshootingHint(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("GetTroubleshootingHint(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	if got := GetShortErrorMessage(&DeviceError{Type: ErrTypeHTTP, StatusCode: 503}); got != "Device error (HTTP 503)" {
		t.Errorf("got %q", got)
	}
	if got := GetShortErrorMessage(&DeviceError{Type: ErrTypeBadResponse, Message: "no manifestUrl"}); got != "no manifestUrl" {
		t.Errorf("got %q", got)
	}
	if got := GetShortErrorMessage(errors.New("plain")); got != "plain" {
		t.Errorf("got %q", got)
	}
}
