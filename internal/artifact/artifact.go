package artifact

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// FirmwareName is the fixed file name the manifest server exposes.
	FirmwareName = "firmware.bin"

	// DefaultChunkSize is the read size used when hashing artifacts.
	DefaultChunkSize = 256 * 1024

	// DefaultStagingDir is the staging directory used when none is configured.
	DefaultStagingDir = "ota-local"
)

// ErrArtifactNotFound is returned when the source binary does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// Descriptor describes a staged firmware artifact. It is immutable after Stage.
type Descriptor struct {
	// SourcePath is where the artifact was copied from
	SourcePath string
	// StagedPath is the copy inside the staging directory
	StagedPath string
	// Checksum is the lowercase MD5 hex digest of the staged bytes
	Checksum string
	// Size is the staged file size in bytes
	Size int64
}

// Stage copies sourcePath into stagingDir as FirmwareName and returns its
// descriptor. A missing source yields an error wrapping ErrArtifactNotFound.
// Staging the same bytes twice produces the same checksum.
func Stage(stagingDir, sourcePath string) (*Descriptor, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, sourcePath)
		}
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrArtifactNotFound, sourcePath)
	}

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	staged := filepath.Join(stagingDir, FirmwareName)
	size, err := copyFile(sourcePath, staged)
	if err != nil {
		return nil, err
	}

	sum, err := Checksum(staged)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		SourcePath: sourcePath,
		StagedPath: staged,
		Checksum:   sum,
		Size:       size,
	}, nil
}

// copyFile writes src to dst through a temp file in dst's directory so a
// concurrent reader never sees a half-written image.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".firmware-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, in)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return n, nil
}

// Checksum returns the MD5 hex digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return ChecksumChunked(f, DefaultChunkSize)
}

// ChecksumChunked streams r through MD5 using reads of at most chunkSize
// bytes. A non-positive chunkSize uses DefaultChunkSize.
func ChecksumChunked(r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	h := md5.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read artifact: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
