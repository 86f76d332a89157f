package config

import (
	"sort"
	"time"
)

// CurrentVersion is the only file format version this package reads.
const CurrentVersion = 1

// DefaultProfileName is used when no profile is selected.
const DefaultProfileName = "default"

// Registry is the whole profile file.
type Registry struct {
	Version     int                 `yaml:"version"`
	Devices     map[string]*Profile `yaml:"devices,omitempty"` // Keyed by profile name
	Preferences *Preferences        `yaml:"preferences,omitempty"`
}

// Profile remembers one device and how its firmware is built.
type Profile struct {
	Address            string `yaml:"address,omitempty"`              // host or host:port of the device API
	Env                string `yaml:"env,omitempty"`                  // build environment name
	ProjectDir         string `yaml:"project_dir,omitempty"`          // firmware project root
	Port               int    `yaml:"port,omitempty"`                 // local manifest server port
	DefaultManifestURL string `yaml:"default_manifest_url,omitempty"` // restored after every session
	HTTPTimeout        int    `yaml:"http_timeout,omitempty"`         // seconds

	LastVersion   string    `yaml:"last_version,omitempty"`
	LastOutcome   string    `yaml:"last_outcome,omitempty"`
	LastSessionID string    `yaml:"last_session_id,omitempty"`
	LastSeen      time.Time `yaml:"last_seen,omitempty"`
}

// Preferences are application-wide settings.
type Preferences struct {
	DefaultProfile  string `yaml:"default_profile,omitempty"`
	DownloadTimeout int    `yaml:"download_timeout"` // seconds
	StatusTimeout   int    `yaml:"status_timeout"`   // seconds
	ConfirmFlash    bool   `yaml:"confirm_flash"`    // ask before triggering an update
	DiscoverTimeout int    `yaml:"discover_timeout"` // mDNS browse window in seconds
}

func defaultPreferences() *Preferences {
	return &Preferences{
		DefaultProfile:  DefaultProfileName,
		DownloadTimeout: 90,
		StatusTimeout:   120,
		ConfirmFlash:    false,
		DiscoverTimeout: 5,
	}
}

// NewRegistry returns an empty registry with default preferences.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Profile),
		Preferences: defaultPreferences(),
	}
}

// Profile returns the named profile, or nil.
func (r *Registry) Profile(name string) *Profile {
	return r.Devices[name]
}

// EnsureProfile returns the named profile, creating an empty one if needed.
func (r *Registry) EnsureProfile(name string) *Profile {
	if r.Devices == nil {
		r.Devices = make(map[string]*Profile)
	}
	if p, ok := r.Devices[name]; ok {
		return p
	}
	p := &Profile{}
	r.Devices[name] = p
	return p
}

// ProfileNames returns profile names in sorted order.
func (r *Registry) ProfileNames() []string {
	names := make([]string, 0, len(r.Devices))
	for name := range r.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RecordSession stores the result of an update session on a profile.
func (r *Registry) RecordSession(name, sessionID, version, outcome string, at time.Time) {
	p := r.EnsureProfile(name)
	p.LastSessionID = sessionID
	p.LastOutcome = outcome
	p.LastSeen = at
	if version != "" {
		p.LastVersion = version
	}
}

// RemoveProfile deletes a profile. It reports whether one existed.
func (r *Registry) RemoveProfile(name string) bool {
	if _, ok := r.Devices[name]; !ok {
		return false
	}
	delete(r.Devices, name)
	return true
}
