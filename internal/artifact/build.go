package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultEnv is the PlatformIO environment built when none is given.
const DefaultEnv = "esp12e"

// BuildConfig holds the configuration for the external firmware build.
type BuildConfig struct {
	// Command is the build program and its arguments.
	// Default: ["pio", "run", "-e", <env>]
	Command []string

	// ProjectDir is the working directory for the build.
	// Default: current directory
	ProjectDir string

	// Timeout is the maximum time to wait for the build.
	// Default: 10 minutes
	Timeout time.Duration

	// Stream copies build output to Stdout/Stderr while it runs.
	Stream bool

	// Stdout and Stderr receive streamed output. Default: os.Stdout, os.Stderr
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultBuildConfig returns a PlatformIO build of env in projectDir.
func DefaultBuildConfig(projectDir, env string) BuildConfig {
	if env == "" {
		env = DefaultEnv
	}
	return BuildConfig{
		Command:    []string{"pio", "run", "-e", env},
		ProjectDir: projectDir,
		Timeout:    10 * time.Minute,
		Stream:     true,
	}
}

// DefaultSourcePath is where PlatformIO leaves the binary for env.
func DefaultSourcePath(projectDir, env string) string {
	if env == "" {
		env = DefaultEnv
	}
	return filepath.Join(projectDir, ".pio", "build", env, FirmwareName)
}

// BuildError is returned when the build command exits unsuccessfully.
type BuildError struct {
	// Command is the command line that was run
	Command string
	// ExitCode is the process exit code, -1 if it never started
	ExitCode int
	// Stderr is the captured error output
	Stderr string
	// Underlying error if any
	Err error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build %q failed (exit code %d)", e.Command, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\nstderr: " + lastLines(s, 20)
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// BuildTimeoutError is returned when the build exceeds its timeout.
type BuildTimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *BuildTimeoutError) Error() string {
	return fmt.Sprintf("build %q timed out after %s", e.Command, e.Timeout)
}

// Builder runs the external firmware build.
type Builder struct {
	config BuildConfig
	logger *zap.Logger
}

// NewBuilder creates a Builder. A nil logger is replaced with a no-op.
func NewBuilder(config BuildConfig, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	return &Builder{config: config, logger: logger}
}

// Validate checks that the build program can be found.
func (b *Builder) Validate() error {
	if len(b.config.Command) == 0 {
		return &BuildError{ExitCode: -1, Err: errors.New("empty build command")}
	}
	if _, err := exec.LookPath(b.config.Command[0]); err != nil {
		return &BuildError{Command: b.commandLine(), ExitCode: -1, Err: err}
	}
	return nil
}

// Build runs the build command and waits for it to finish.
func (b *Builder) Build(ctx context.Context) error {
	if len(b.config.Command) == 0 {
		return &BuildError{ExitCode: -1, Err: errors.New("empty build command")}
	}

	start := time.Now()
	b.logger.Info("running firmware build",
		zap.String("command", b.commandLine()),
		zap.String("dir", b.config.ProjectDir),
		zap.Duration("timeout", b.config.Timeout),
	)

	timeoutCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, b.config.Command[0], b.config.Command[1:]...)
	cmd.Dir = b.config.ProjectDir
	// Build tools fork helpers that can hold the output pipes open after a kill.
	cmd.WaitDelay = 2 * time.Second

	stdout, stderr, exitCode, err := b.run(cmd)

	b.logger.Debug("firmware build complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("exit_code", exitCode),
		zap.Int("stdout_size", len(stdout)),
		zap.Int("stderr_size", len(stderr)),
	)

	if timeoutCtx.Err() == context.DeadlineExceeded {
		return &BuildTimeoutError{Command: b.commandLine(), Timeout: b.config.Timeout}
	}
	if err != nil || exitCode != 0 {
		return &BuildError{
			Command:  b.commandLine(),
			ExitCode: exitCode,
			Stderr:   stderr,
			Err:      err,
		}
	}

	b.logger.Info("firmware build succeeded", zap.Duration("duration", time.Since(start)))
	return nil
}

func (b *Builder) run(cmd *exec.Cmd) (stdout, stderr string, exitCode int, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	if b.config.Stream {
		stdoutPipe, pipeErr := cmd.StdoutPipe()
		if pipeErr != nil {
			return "", "", -1, fmt.Errorf("failed to create stdout pipe: %w", pipeErr)
		}
		stderrPipe, pipeErr := cmd.StderrPipe()
		if pipeErr != nil {
			return "", "", -1, fmt.Errorf("failed to create stderr pipe: %w", pipeErr)
		}
		if startErr := cmd.Start(); startErr != nil {
			return "", "", -1, fmt.Errorf("failed to start build: %w", startErr)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(io.MultiWriter(&stdoutBuf, b.config.Stdout), stdoutPipe)
		}()
		go func() {
			defer wg.Done()
			_, _ = io.Copy(io.MultiWriter(&stderrBuf, b.config.Stderr), stderrPipe)
		}()
		wg.Wait()
		err = cmd.Wait()
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
		err = cmd.Run()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil
		} else {
			exitCode = -1
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

func (b *Builder) commandLine() string {
	return strings.Join(b.config.Command, " ")
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
