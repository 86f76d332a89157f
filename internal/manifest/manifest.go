// Package manifest builds and writes the OTA manifest document the device
// fetches before downloading a firmware image.
package manifest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// FileName is the manifest file inside the staging directory.
	FileName = "ota.json"
	// Path is the URL path the manifest is served under.
	Path = "/" + FileName
	// BinPath is the URL path the firmware image is served under.
	BinPath = "/firmware.bin"
)

// Manifest is the document the device reads to locate an update.
type Manifest struct {
	Version string `json:"version"`
	Bin     string `json:"bin"`
	MD5     string `json:"md5"`
	Notes   string `json:"notes"`
}

// New builds the manifest for a firmware image reachable at host:port.
// It has no side effects.
func New(version, host string, port int, md5 string) *Manifest {
	return &Manifest{
		Version: version,
		Bin:     BinURL(host, port),
		MD5:     md5,
		Notes:   "local dev build " + version,
	}
}

// BinURL returns the absolute firmware URL for host and port.
func BinURL(host string, port int) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   BinPath,
	}
	return u.String()
}

// NewVersion returns the version token for a session started at now:
// unix seconds as a decimal string. Two sessions started within the same
// second get the same token; see SameSecond.
func NewVersion(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

// SameSecond reports whether version collides with a token issued at now.
// Callers use it to warn the operator that the device may treat the
// manifest as already installed.
func SameSecond(version string, now time.Time) bool {
	return version != "" && version == NewVersion(now)
}

// Write stores m as indented JSON in dir/FileName, replacing any manifest
// from an earlier session.
func Write(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// Read loads the manifest stored in dir.
func Read(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
