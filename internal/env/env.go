// Package env loads a .env file into the process environment and reads the
// LOCALOTA_* overrides.
package env

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/muurk/localota/internal/logging"
)

// Environment variables read by localota.
const (
	Device             = "LOCALOTA_DEVICE"
	Port               = "LOCALOTA_PORT"
	DefaultManifestURL = "LOCALOTA_DEFAULT_MANIFEST_URL"
	Profile            = "LOCALOTA_PROFILE"
)

var (
	loadOnce   sync.Once
	loadedPath string
	loadErr    error
)

// Ensure loads the first .env found from the working directory up to the
// filesystem root. Variables already set are not overwritten. Later calls
// are no-ops.
func Ensure() error {
	// Tests stay hermetic unless GOTEST_LOAD_DOTENV=1.
	if runningUnderGoTest() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	loadOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			loadErr = err
			return
		}
		loadedPath, loadErr = loadFrom(wd)
	})
	return loadErr
}

// LoadedPath returns the .env path that was loaded, or "".
func LoadedPath() string {
	return loadedPath
}

func loadFrom(dir string) (string, error) {
	path, err := findDotEnv(dir)
	if err != nil {
		logging.Debug("search .env failed", zap.Error(err))
		return "", err
	}
	if path == "" {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		logging.Warn("load .env failed", zap.String("dotenv", path), zap.Error(err))
		return "", err
	}
	logging.Debug("loaded .env", zap.String("dotenv", path))
	return path, nil
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

func findDotEnv(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// String returns the trimmed value of key, or def when unset or blank.
func String(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Int returns key parsed as an integer, or def when unset or unparsable.
func Int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Warn("ignoring non-numeric environment value", zap.String("key", key), zap.String("value", v))
		return def
	}
	return n
}
