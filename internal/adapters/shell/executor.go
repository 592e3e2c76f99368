// Package shell provides the process executor used by external commands.
package shell

import (
	"context"
	"os/exec"
	"strings"

	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/zerr"
)

// Executor spawns external processes and streams their output to the
// logger. It is safe for concurrent use from multiple queue lanes.
type Executor struct {
	logger ports.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute runs the command line and waits for it to exit. It returns nil on
// a zero exit status and an error carrying the exit code otherwise.
func (e *Executor) Execute(ctx context.Context, commandLine []string, workingDir string) error {
	if len(commandLine) == 0 {
		return zerr.New("empty command line")
	}

	cmd := exec.CommandContext(ctx, commandLine[0], commandLine[1:]...) //nolint:gosec // user provided command
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Stdout = &logWriter{logger: e.logger}
	cmd.Stderr = &logWriter{logger: e.logger, stderr: true}

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode)
	}
	return nil
}

// logWriter forwards process output lines to the logger.
type logWriter struct {
	logger ports.Logger
	stderr bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		if w.stderr {
			w.logger.Warn(line)
		} else {
			w.logger.Info(line)
		}
	}
	return len(p), nil
}
