package buildsystem_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/anvil/internal/adapters/db"
	"go.trai.ch/anvil/internal/buildsystem"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
)

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) Info(msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, msg)
	l.mu.Unlock()
}

func (l *testLogger) Warn(msg string) { l.Info(msg) }

func (l *testLogger) Error(err error) { l.Info(err.Error()) }

type testSystemDelegate struct {
	mu       sync.Mutex
	errors   []string
	failures int
}

func (d *testSystemDelegate) Error(path, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, path+": "+message)
}

func (d *testSystemDelegate) HadCommandFailure() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures++
}

func (d *testSystemDelegate) IsCancelled() bool { return false }

func writeDescription(t *testing.T, dir, doc string) string {
	t.Helper()
	path := filepath.Join(dir, "build.anvil")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func newSystem(t *testing.T, descriptionPath string) (*buildsystem.System, *testSystemDelegate) {
	t.Helper()
	return newSystemWithDB(t, descriptionPath, db.NewMemory())
}

func newSystemWithDB(t *testing.T, descriptionPath string, database ports.Database) (*buildsystem.System, *testSystemDelegate) {
	t.Helper()
	delegate := &testSystemDelegate{}
	system := buildsystem.New(buildsystem.Config{
		Delegate: delegate,
		Logger:   &testLogger{},
		Lanes:    2,
	})
	require.NoError(t, system.AttachDB(database))
	require.NoError(t, system.LoadDescription(descriptionPath))
	return system, delegate
}

func TestSystem_ShellPipelineIsIncremental(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	log := filepath.Join(dir, "runs.log")
	require.NoError(t, os.WriteFile(in, []byte("hello"), 0o644))

	doc := fmt.Sprintf(`client:
  name: test
targets:
  all: [%q]
commands:
  copy:
    tool: shell
    description: "COPY in -> out"
    inputs: [%q]
    outputs: [%q]
    args: "echo run >> %s && cp %s %s"
`, out, in, out, log, in, out)
	path := writeDescription(t, dir, doc)

	system, delegate := newSystem(t, path)
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Empty(t, delegate.errors)
	assert.Equal(t, 0, system.NumFailedCommands())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, countRuns(t, log))

	// A second build over the same database is null.
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Equal(t, 1, countRuns(t, log))

	// Changing the input reruns the command.
	require.NoError(t, os.WriteFile(in, []byte("hello, rebuilt"), 0o644))
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Equal(t, 2, countRuns(t, log))

	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello, rebuilt", string(data))
}

func countRuns(t *testing.T, log string) int {
	t.Helper()
	data, err := os.ReadFile(log)
	if err != nil {
		return 0
	}
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func TestSystem_MissingInputSkipsCommand(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist.txt")
	out := filepath.Join(dir, "out.txt")

	doc := fmt.Sprintf(`client:
  name: test
targets:
  all: [%q]
commands:
  copy:
    tool: shell
    inputs: [%q]
    outputs: [%q]
    args: "cp %s %s"
`, out, missing, out, missing, out)
	path := writeDescription(t, dir, doc)

	system, delegate := newSystem(t, path)
	err := system.Build(context.Background(), "all")
	assert.ErrorIs(t, err, domain.ErrBuildFailed)
	assert.Equal(t, 1, system.NumFailedCommands())

	joined := strings.Join(delegate.errors, "\n")
	assert.Contains(t, joined, "missing input")
	// The command never ran, so the output does not exist.
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSystem_FailedCommandSkipsDependants(t *testing.T) {
	dir := t.TempDir()
	out1 := filepath.Join(dir, "out1.txt")
	out2 := filepath.Join(dir, "out2.txt")

	doc := fmt.Sprintf(`client:
  name: test
targets:
  all: [%q]
commands:
  fail:
    tool: shell
    outputs: [%q]
    args: "exit 1"
  consume:
    tool: shell
    inputs: [%q]
    outputs: [%q]
    args: "cp %s %s"
`, out2, out1, out1, out2, out1, out2)
	path := writeDescription(t, dir, doc)

	system, _ := newSystem(t, path)
	err := system.Build(context.Background(), "all")
	assert.ErrorIs(t, err, domain.ErrBuildFailed)

	// Only the first command fails; the dependant is skipped quietly.
	assert.Equal(t, 1, system.NumFailedCommands())
	_, statErr := os.Stat(out2)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSystem_PhonyGroupsNodes(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	doc := fmt.Sprintf(`client:
  name: test
targets:
  all: ["<group>"]
commands:
  group:
    tool: phony
    inputs: [%q, %q]
    outputs: ["<group>"]
`, a, b)
	path := writeDescription(t, dir, doc)

	system, delegate := newSystem(t, path)
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Empty(t, delegate.errors)
	assert.Equal(t, 0, system.NumFailedCommands())
}

func TestSystem_UnknownTarget(t *testing.T) {
	dir := t.TempDir()
	path := writeDescription(t, dir, "client:\n  name: test\n")

	system, _ := newSystem(t, path)
	err := system.Build(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}

func TestSystem_RemovedCommandForcesRebuild(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	log := filepath.Join(dir, "runs.log")
	require.NoError(t, os.WriteFile(in, []byte("hello"), 0o644))

	descFor := func(command string) string {
		return fmt.Sprintf(`client:
  name: test
targets:
  all: [%q]
commands:
  %s:
    tool: shell
    inputs: [%q]
    outputs: [%q]
    args: "echo run >> %s && cp %s %s"
`, out, command, in, out, log, in, out)
	}

	database := db.NewMemory()

	path := writeDescription(t, dir, descFor("copy-v1"))
	system, delegate := newSystemWithDB(t, path, database)
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Empty(t, delegate.errors)
	assert.Equal(t, 1, countRuns(t, log))

	// The command disappears from the description (replaced under a new
	// name). The stored result for the old command key must not be
	// reused, so the output is rebuilt by its new producer.
	require.NoError(t, os.WriteFile(path, []byte(descFor("copy-v2")), 0o644))
	system, delegate = newSystemWithDB(t, path, database)
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Empty(t, delegate.errors)
	assert.Equal(t, 2, countRuns(t, log))
}

func TestSystem_AmbiguousProducerFailsBuild(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("hello"), 0o644))

	// Two commands claim the same output node.
	doc := fmt.Sprintf(`client:
  name: test
targets:
  all: [%q]
commands:
  first:
    tool: shell
    inputs: [%q]
    outputs: [%q]
    args: "cp %s %s"
  second:
    tool: shell
    inputs: [%q]
    outputs: [%q]
    args: "cp %s %s"
`, out, in, out, in, out, in, out, in, out)
	path := writeDescription(t, dir, doc)

	system, delegate := newSystem(t, path)
	err := system.Build(context.Background(), "all")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBuildFailed)

	// The ambiguity is a diagnostic, not a command failure; the build
	// must still fail on the error counter alone.
	assert.Equal(t, 0, system.NumFailedCommands())
	require.NotEmpty(t, delegate.errors)
	assert.Contains(t, strings.Join(delegate.errors, "\n"), "produced by multiple commands")
}

func TestSystem_CompileToolDiscoversDependencies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	hdr := filepath.Join(dir, "util.h")
	obj := filepath.Join(dir, "main.o")
	deps := filepath.Join(dir, "main.d")
	log := filepath.Join(dir, "runs.log")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0o644))
	require.NoError(t, os.WriteFile(hdr, []byte("header"), 0o644))

	// The "compiler" copies the source and emits a makefile-style deps
	// file naming the header.
	doc := fmt.Sprintf(`client:
  name: test
targets:
  all: [%q]
commands:
  compile:
    tool: cc
    inputs: [%q]
    outputs: [%q]
    args: "echo run >> %s && cp %s %s && printf '%%s: %%s %%s' %s %s %s > %s"
    deps: %q
`, obj, src, obj, log, src, obj, obj, src, hdr, deps, deps)
	path := writeDescription(t, dir, doc)

	system, delegate := newSystem(t, path)
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Empty(t, delegate.errors)
	assert.Equal(t, 1, countRuns(t, log))

	// Null rebuild.
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Equal(t, 1, countRuns(t, log))

	// Touching only the discovered header reruns the compile.
	require.NoError(t, os.WriteFile(hdr, []byte("header, changed"), 0o644))
	require.NoError(t, system.Build(context.Background(), "all"))
	assert.Equal(t, 2, countRuns(t, log))
}
