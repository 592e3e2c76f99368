// Package buildsystem interprets a build description as engine rules:
// targets fan into nodes, nodes resolve to their producing commands, and
// commands run external processes on the execution queue.
package buildsystem

import (
	"context"
	"strings"
	"sync/atomic"

	"go.trai.ch/anvil/internal/adapters/shell"
	"go.trai.ch/anvil/internal/buildsystem/buildfile"
	"go.trai.ch/anvil/internal/buildsystem/queue"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/anvil/internal/engine"
	"go.trai.ch/zerr"
)

// Config carries the collaborators for a build system instance.
type Config struct {
	Delegate  Delegate
	Logger    ports.Logger
	Telemetry ports.Telemetry

	// Lanes is the execution queue width; < 1 selects the default, 1 is
	// serial mode.
	Lanes int
}

// System owns one build description and the engine that evaluates it.
type System struct {
	delegate  Delegate
	logger    ports.Logger
	telemetry ports.Telemetry
	lanes     int

	file     *buildfile.BuildFile
	eng      *engine.Engine
	executor *shell.Executor

	q        *queue.Queue
	buildCtx context.Context

	numErrors         atomic.Int32
	numFailedCommands atomic.Int32

	// vertices tracks open telemetry vertices per rule; touched only from
	// the engine loop.
	vertices map[string]ports.Vertex
}

// New creates a build system.
func New(cfg Config) *System {
	s := &System{
		delegate:  cfg.Delegate,
		logger:    cfg.Logger,
		telemetry: cfg.Telemetry,
		lanes:     cfg.Lanes,
		executor:  shell.NewExecutor(cfg.Logger),
		vertices:  make(map[string]ports.Vertex),
	}
	s.eng = engine.New(&systemEngineDelegate{system: s}, cfg.Logger)
	return s
}

// Engine exposes the underlying build engine.
func (s *System) Engine() *engine.Engine { return s.eng }

// NumErrors returns the diagnostic count.
func (s *System) NumErrors() int { return int(s.numErrors.Load()) }

// NumFailedCommands returns the count of failed commands.
func (s *System) NumFailedCommands() int { return int(s.numFailedCommands.Load()) }

// AttachDB attaches the persistent result database.
func (s *System) AttachDB(db ports.Database) error {
	return s.eng.AttachDB(db)
}

// EnableTracing writes engine decisions to the file at path.
func (s *System) EnableTracing(path string) error {
	return s.eng.EnableTracing(path)
}

// LoadDescription parses the build description at path.
func (s *System) LoadDescription(path string) error {
	file := buildfile.New(&systemFileDelegate{system: s}, path)
	if err := file.Load(); err != nil {
		return err
	}
	s.file = file
	return nil
}

// Cancel cooperatively cancels the running build: queued commands complete
// as skipped.
func (s *System) Cancel() {
	if s.q != nil {
		s.q.Cancel()
	}
}

// Build brings the named target up to date. It returns an error for load,
// cycle or database problems, and ErrBuildFailed when any command failed or
// any diagnostic was reported; the counters keep the two apart.
func (s *System) Build(ctx context.Context, target string) error {
	if s.file == nil {
		return zerr.New("no build description loaded")
	}
	if _, ok := s.file.Target(target); !ok {
		return zerr.With(zerr.New("unknown target"), "target", target)
	}

	s.buildCtx = ctx
	s.q = queue.New(s.lanes)
	defer func() {
		s.q.Close()
		s.q = nil
	}()

	_, err := s.eng.Build(MakeTargetKey(target))
	if err != nil {
		return err
	}
	if s.numFailedCommands.Load() > 0 || s.numErrors.Load() > 0 {
		return domain.ErrBuildFailed
	}
	return nil
}

// CommandInterface implementation; commands run through these from the
// engine loop and from queue lanes.

// TaskNeedsInput declares a node input on behalf of a command task.
func (s *System) TaskNeedsInput(task engine.Task, name string, inputID uint) {
	s.eng.TaskNeedsInput(task, MakeNodeKey(name), inputID)
}

// TaskDiscoveredDependency records a discovered node dependency.
func (s *System) TaskDiscoveredDependency(task engine.Task, name string) {
	s.eng.TaskDiscoveredDependency(task, MakeNodeKey(name))
}

// TaskIsComplete reports a command's build value.
func (s *System) TaskIsComplete(task engine.Task, value BuildValue) {
	s.eng.TaskIsComplete(task, value.Encode(), false)
}

// AddJob submits work to the execution queue.
func (s *System) AddJob(job queue.Job) {
	s.q.AddJob(job)
}

// ExecuteProcess runs an external command line and reports success.
func (s *System) ExecuteProcess(commandLine []string) bool {
	ctx := s.buildCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.executor.Execute(ctx, commandLine, ""); err != nil {
		s.logger.Error(err)
		return false
	}
	return true
}

// Delegate returns the build system delegate.
func (s *System) Delegate() Delegate { return &countingDelegate{system: s} }

// Logger returns the build logger.
func (s *System) Logger() ports.Logger { return s.logger }

var _ CommandInterface = (*System)(nil)

// countingDelegate folds failure accounting and cancellation state into the
// client delegate.
type countingDelegate struct {
	system *System
}

func (d *countingDelegate) Error(path, message string) {
	d.system.numErrors.Add(1)
	d.system.delegate.Error(path, message)
}

func (d *countingDelegate) HadCommandFailure() {
	d.system.numFailedCommands.Add(1)
	d.system.delegate.HadCommandFailure()
}

func (d *countingDelegate) IsCancelled() bool {
	if d.system.q != nil && d.system.q.Cancelled() {
		return true
	}
	return d.system.delegate.IsCancelled()
}

// systemFileDelegate binds the loader to the system's tools and nodes.
type systemFileDelegate struct {
	system *System
}

var _ buildfile.Delegate = (*systemFileDelegate)(nil)

func (d *systemFileDelegate) ConfigureClient(name, _ string, _ map[string]string) bool {
	return name != ""
}

func (d *systemFileDelegate) LookupTool(name string) (buildfile.Tool, error) {
	switch name {
	case "shell":
		return NewShellTool(), nil
	case "phony":
		return NewPhonyTool(), nil
	case "cc":
		return NewCompileTool(), nil
	default:
		return nil, zerr.With(zerr.New("invalid tool type in 'tools' map"), "tool", name)
	}
}

func (d *systemFileDelegate) CreateNode(name string, _ bool) buildfile.Node {
	return NewBuildNode(name)
}

func (d *systemFileDelegate) Error(path string, line, col int, message string) {
	d.system.numErrors.Add(1)
	d.system.delegate.Error(formatPosition(path, line, col), message)
}

func formatPosition(path string, line, col int) string {
	if line == 0 {
		return path
	}
	return path + ":" + itoa(line) + ":" + itoa(col)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// systemEngineDelegate maps engine keys onto build system rules.
type systemEngineDelegate struct {
	system *System
}

var _ engine.Delegate = (*systemEngineDelegate)(nil)

func (d *systemEngineDelegate) LookupRule(key domain.Key) (engine.Rule, bool) {
	s := d.system
	kind, name := splitKey(key)

	switch kind {
	case keyKindTarget:
		target, ok := s.file.Target(name)
		if !ok {
			return engine.Rule{}, false
		}
		return engine.Rule{
			Key:    key,
			Action: func() engine.Task { return &targetTask{system: s, target: target} },
			// Target values carry no state worth keeping.
			IsResultValid: func(engine.Rule, domain.Value) bool { return false },
		}, true

	case keyKindNode:
		fnode, ok := s.file.Node(name)
		if !ok {
			// Discovered dependencies may reference files the
			// description never mentions.
			fnode = NewBuildNode(name)
		}
		node, ok := fnode.(*BuildNode)
		if !ok {
			return engine.Rule{}, false
		}
		if len(node.Producers()) == 0 {
			return engine.Rule{
				Key:    key,
				Action: func() engine.Task { return &inputNodeTask{node: node} },
				IsResultValid: func(_ engine.Rule, value domain.Value) bool {
					return inputNodeValid(node, value)
				},
			}, true
		}
		return engine.Rule{
			Key:    key,
			Action: func() engine.Task { return &producedNodeTask{system: s, node: node} },
			IsResultValid: func(_ engine.Rule, value domain.Value) bool {
				return producedNodeValid(value)
			},
		}, true

	case keyKindCommand:
		fcmd, ok := s.file.Command(name)
		if !ok {
			return engine.Rule{
				Key:    key,
				Action: func() engine.Task { return &missingCommandTask{} },
				// The cached result for a missing command is never valid.
				IsResultValid: func(engine.Rule, domain.Value) bool { return false },
			}, true
		}
		cmd, ok := fcmd.(Command)
		if !ok {
			return engine.Rule{}, false
		}
		return engine.Rule{
			Key:    key,
			Action: func() engine.Task { return &commandTask{system: s, command: cmd} },
			IsResultValid: func(_ engine.Rule, raw domain.Value) bool {
				value, err := DecodeBuildValue(raw)
				if err != nil {
					return false
				}
				return cmd.IsResultValid(value)
			},
			UpdateStatus: s.commandStatus(name),
		}, true

	default:
		return engine.Rule{}, false
	}
}

func (d *systemEngineDelegate) CycleDetected(path []domain.Key) {
	names := make([]string, len(path))
	for i, key := range path {
		_, names[i] = splitKey(key)
	}
	d.system.numErrors.Add(1)
	d.system.delegate.Error("", "cycle detected: "+strings.Join(names, " -> "))
}

// commandStatus projects rule transitions onto telemetry vertices.
func (s *System) commandStatus(name string) func(domain.RuleStatus) {
	if s.telemetry == nil {
		return nil
	}
	return func(status domain.RuleStatus) {
		switch status {
		case domain.RuleScanning:
			s.vertices[name] = s.telemetry.Vertex(name)
		case domain.RuleComplete:
			if v, ok := s.vertices[name]; ok {
				v.Complete(nil)
				delete(s.vertices, name)
			}
		}
	}
}
