package device

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"unicode/utf8"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (unreachable, reset, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeHTTP indicates a non-2xx status code
	ErrTypeHTTP
	// ErrTypeProtocol indicates a body that is not valid JSON
	ErrTypeProtocol
	// ErrTypeBadResponse indicates valid JSON missing a required field
	ErrTypeBadResponse
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// bodyExcerptLimit caps the raw body kept on protocol and HTTP errors.
const bodyExcerptLimit = 200

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeProtocol:
		return "Protocol Error"
	case ErrTypeBadResponse:
		return "Bad Device Response"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred during device communication
type DeviceError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	Endpoint       string              // API path that failed
	StatusCode     int                 // HTTP status code (if applicable)
	Body           string              // Truncated raw response body (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	DeviceIP       string              // Device host (for hints)
	Retryable      bool                // Whether polling again may succeed
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Endpoint)
	}
	if e.Body != "" {
		msg += fmt.Sprintf(" body=%q", e.Body)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes an error and returns a more specific error type
func ClassifyNetworkError(err error, deviceIP string) *DeviceError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &DeviceError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			DeviceIP:       deviceIP,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DeviceError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			DeviceIP:       deviceIP,
			Retryable:      true,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &DeviceError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Device refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err, deviceIP)
	}

	return &DeviceError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		DeviceIP:       deviceIP,
		Retryable:      true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, "")
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &DeviceError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string, body []byte) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Body:       excerpt(body),
		Retryable:  statusCode >= 500,
	}
}

// NewProtocolError creates an error for a body that could not be decoded
func NewProtocolError(message string, body []byte, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeProtocol,
		Message: message,
		Body:    excerpt(body),
		Err:     err,
	}
}

// NewBadResponseError creates an error for a decoded body missing required data
func NewBadResponseError(message string, body []byte) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeBadResponse,
		Message: message,
		Body:    excerpt(body),
	}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodyExcerptLimit {
		cut := bodyExcerptLimit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	return s
}

func asDeviceError(err error) (*DeviceError, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS, etc.)
func IsNetworkError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeNetwork ||
			devErr.Type == ErrTypeTimeout ||
			devErr.Type == ErrTypeConnectionRefused ||
			devErr.Type == ErrTypeDNS
	}
	return false
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeHTTP
	}
	return false
}

// IsProtocolError checks if the device answered with something unusable,
// either undecodable or missing required fields
func IsProtocolError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeProtocol || devErr.Type == ErrTypeBadResponse
	}
	return false
}

// IsTransient reports whether polling again may succeed: network failures
// and 5xx answers from a device that is still booting.
func IsTransient(err error) bool {
	if IsNetworkError(err) {
		return true
	}
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeHTTP && devErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that the device is powered on",
			"  • Verify you're connected to the device's Wi-Fi hotspot",
			"  • Try a longer --http-timeout",
			"  • Move closer to the device to improve signal strength",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The device refused the connection.",
			"Troubleshooting:",
			"  • The device web server may still be starting - wait and retry",
			"  • Verify the --device address and port",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the device hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of the hostname",
			"  • Try 'localota scan' to find the device via mDNS",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}

		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The device is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the device address is correct",
				"  • Check that you're on the same network as the device",
				"  • Try pinging the device: ping "+devErr.DeviceIP)

		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the device's network.",
				"Troubleshooting:",
				"  • Connect to the device's Wi-Fi hotspot",
				"  • Verify Wi-Fi is enabled on your computer")

		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the device is powered on",
				"  • Ensure you're connected to the correct network")
		}

		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		switch {
		case devErr.StatusCode == http.StatusForbidden:
			return strings.Join([]string{
				"The device rejected the request (HTTP 403).",
				"The device blocks updates during scheduled quiet periods.",
				"Retry once the current window has ended.",
			}, "\n")
		case devErr.StatusCode >= 500:
			return strings.Join([]string{
				fmt.Sprintf("The device returned an error (HTTP %d).", devErr.StatusCode),
				"Troubleshooting:",
				"  • Check the device's own status page for details",
				"  • Try rebooting the device",
			}, "\n")
		}
		return fmt.Sprintf("The device returned HTTP error %d. Check the request parameters.", devErr.StatusCode)

	case ErrTypeProtocol, ErrTypeBadResponse:
		return strings.Join([]string{
			"The device's response could not be used.",
			"This usually means the firmware does not support local OTA.",
			"Troubleshooting:",
			"  • Check that the running firmware exposes /api/ota/*",
			"  • Re-run with LOCALOTA_LOG_LEVEL=debug to see the raw response",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Device not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Device refused connection"
	case ErrTypeDNS:
		return "Cannot resolve device hostname"
	case ErrTypeNetwork:
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Device unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check Wi-Fi connection"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Device error (HTTP %d)", devErr.StatusCode)
	case ErrTypeProtocol:
		return "Device sent a malformed response"
	case ErrTypeBadResponse:
		return devErr.Message
	default:
		return devErr.Message
	}
}
