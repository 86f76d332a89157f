package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "localota"
	configFile = "config.yaml"

	// PathEnvVar overrides the profile file location.
	PathEnvVar = "LOCALOTA_CONFIG"
)

var (
	// Global registry instance (loaded lazily)
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	// Mutex for file operations
	fileMutex sync.Mutex
)

// GetConfigDir returns the directory holding the profile file.
func GetConfigDir() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return filepath.Dir(p)
	}
	return filepath.Join(xdg.ConfigHome, appName)
}

// GetConfigPath returns the full path to the profile file.
func GetConfigPath() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	return filepath.Join(GetConfigDir(), configFile)
}

// LoadRegistry loads the global registry from GetConfigPath once.
// A missing file yields a new default registry.
func LoadRegistry() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		globalRegistry, globalRegistryErr = LoadFile(GetConfigPath())
	})
	return globalRegistry, globalRegistryErr
}

// ReloadRegistry discards the cached global registry and reads it again.
func ReloadRegistry() (*Registry, error) {
	globalRegistryOnce = sync.Once{}
	return LoadRegistry()
}

// LoadFile reads a registry from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if registry.Version == 0 {
		registry.Version = CurrentVersion
	}
	if registry.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", registry.Version, CurrentVersion)
	}

	if registry.Devices == nil {
		registry.Devices = make(map[string]*Profile)
	}
	if registry.Preferences == nil {
		registry.Preferences = defaultPreferences()
	}

	return &registry, nil
}

// Save writes the registry to GetConfigPath.
func (r *Registry) Save() error {
	return r.SaveFile(GetConfigPath())
}

// SaveFile writes the registry to path atomically.
func (r *Registry) SaveFile(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# localota profiles
# Wi-Fi passwords are never stored here.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary config file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// SaveGlobal saves the global registry.
func SaveGlobal() error {
	registry, err := LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	return registry.Save()
}
