// ABOUTME: External tool execution with timeouts, output capture, and structured errors.
// ABOUTME: Every scanner subprocess in the pipeline runs through this launcher.

package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single tool invocation when the spec does not set one
const DefaultTimeout = 30 * time.Minute

// Spec describes one tool invocation
type Spec struct {
	Command []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration

	// StdoutFile, when set, additionally writes captured stdout to this path.
	// Some tools are easier to debug from their report file than from logs.
	StdoutFile string
}

// Result holds everything captured from a finished (or killed) process
type Result struct {
	Command  []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExecError reports a non-zero exit or a timeout. It carries the full Result
// so callers can still inspect captured output; some tools signal findings
// through their exit code rather than failure.
type ExecError struct {
	Result  Result
	Timeout bool
}

func (e *ExecError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("command timed out after %s: %s", e.Result.Duration.Round(time.Millisecond), strings.Join(e.Result.Command, " "))
	}
	return fmt.Sprintf("command failed (%d): %s", e.Result.ExitCode, strings.Join(e.Result.Command, " "))
}

// Launcher executes external security tools with consistent logging and error handling
type Launcher struct {
	logger  *logrus.Logger
	timeout time.Duration
}

// New creates a launcher with the given default timeout (DefaultTimeout if zero)
func New(logger *logrus.Logger, timeout time.Duration) *Launcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Launcher{logger: logger, timeout: timeout}
}

// Run executes the spec to completion and returns the captured result.
// A non-zero exit code or timeout returns a *ExecError wrapping the result.
func (l *Launcher) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Command) == 0 {
		return Result{}, errors.New("launcher: empty command")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := l.logger.WithFields(logrus.Fields{
		"component": "tool_launcher",
		"tool":      spec.Command[0],
	})

	cmd := exec.CommandContext(runCtx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		env := os.Environ()
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Command:  append([]string(nil), spec.Command...),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
		Duration: duration,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	if spec.StdoutFile != "" {
		if err := writeStdoutFile(spec.StdoutFile, result.Stdout); err != nil {
			logger.WithError(err).WithField("path", spec.StdoutFile).Warn("Failed to write stdout file")
		}
	}

	timedOut := runCtx.Err() == context.DeadlineExceeded
	logger.WithFields(logrus.Fields{
		"exit_code": result.ExitCode,
		"duration":  duration,
		"timed_out": timedOut,
	}).Debug("Tool invocation finished")

	if timedOut {
		return result, &ExecError{Result: result, Timeout: true}
	}
	if runErr != nil {
		return result, &ExecError{Result: result}
	}
	return result, nil
}

func writeStdoutFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
