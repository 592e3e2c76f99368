package shell_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/anvil/internal/adapters/shell"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Info(msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Warn(msg string) { l.Info(msg) }

func (l *captureLogger) Error(err error) { l.Info(err.Error()) }

func TestExecutor_Success(t *testing.T) {
	logger := &captureLogger{}
	e := shell.NewExecutor(logger)

	err := e.Execute(context.Background(), []string{"/bin/sh", "-c", "echo hello"}, "")
	require.NoError(t, err)
	assert.Contains(t, logger.lines, "hello")
}

func TestExecutor_NonZeroExit(t *testing.T) {
	e := shell.NewExecutor(&captureLogger{})

	err := e.Execute(context.Background(), []string{"/bin/sh", "-c", "exit 3"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command failed")
}

func TestExecutor_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	e := shell.NewExecutor(&captureLogger{})

	err := e.Execute(context.Background(),
		[]string{"/bin/sh", "-c", "echo data > out.txt"}, dir)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "out.txt"))
	assert.NoError(t, statErr)
}

func TestExecutor_EmptyCommandLine(t *testing.T) {
	e := shell.NewExecutor(&captureLogger{})
	assert.Error(t, e.Execute(context.Background(), nil, ""))
}
