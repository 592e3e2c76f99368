package buildsystem

import (
	"go.trai.ch/anvil/internal/buildsystem/buildfile"
	"go.trai.ch/anvil/internal/buildsystem/queue"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/anvil/internal/engine"
)

// Delegate receives build system diagnostics and drives cooperative
// cancellation.
type Delegate interface {
	// Error reports a diagnostic attributed to path (possibly empty).
	Error(path, message string)

	// HadCommandFailure is invoked once per failed or unbuildable command.
	HadCommandFailure()

	// IsCancelled is polled by commands; when it reports true, pending
	// commands complete as skipped.
	IsCancelled() bool
}

// CommandInterface is the surface commands use to interact with the engine
// and the execution queue during a build.
type CommandInterface interface {
	// TaskNeedsInput declares an input on behalf of the command's task.
	TaskNeedsInput(task engine.Task, name string, inputID uint)

	// TaskDiscoveredDependency records a node dependency discovered while
	// the command ran. Safe to call from queue lanes.
	TaskDiscoveredDependency(task engine.Task, name string)

	// TaskIsComplete reports the command's build value. Safe to call from
	// queue lanes.
	TaskIsComplete(task engine.Task, value BuildValue)

	// AddJob submits work to the execution queue.
	AddJob(job queue.Job)

	// ExecuteProcess runs an external command line, streaming output, and
	// reports whether it exited successfully.
	ExecuteProcess(commandLine []string) bool

	// Delegate returns the build system delegate.
	Delegate() Delegate

	// Logger returns the build logger.
	Logger() ports.Logger
}

// Command is the build system behaviour behind a command rule. The loader
// configures it through the embedded buildfile.Command surface; the engine
// drives it through the task-shaped methods.
type Command interface {
	buildfile.Command

	// IsResultValid reports whether a stored value is still current.
	IsResultValid(value BuildValue) bool

	// Start declares the command's inputs.
	Start(bsci CommandInterface, task engine.Task)

	// ProvidePriorValue offers the value from the previous run.
	ProvidePriorValue(bsci CommandInterface, task engine.Task, value BuildValue)

	// ProvideValue delivers one input's value.
	ProvideValue(bsci CommandInterface, task engine.Task, inputID uint, value BuildValue)

	// InputsAvailable runs the command once all inputs are in.
	InputsAvailable(bsci CommandInterface, task engine.Task)

	// ResultForOutput projects the command value onto one output node.
	ResultForOutput(node buildfile.Node, value BuildValue) BuildValue
}
