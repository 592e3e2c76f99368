package buildsystem

import (
	"os"
	"strings"

	"go.trai.ch/anvil/internal/adapters/fs"
	"go.trai.ch/anvil/internal/adapters/mkdeps"
	"go.trai.ch/anvil/internal/buildsystem/buildfile"
	"go.trai.ch/anvil/internal/buildsystem/queue"
	"go.trai.ch/anvil/internal/engine"
	"go.trai.ch/zerr"
)

// toolBase carries the shared tool plumbing.
type toolBase struct {
	name string
}

func (t toolBase) Name() string { return t.name }

func (t toolBase) ConfigureAttribute(name, _ string) error {
	return zerr.With(zerr.New("unexpected tool attribute"), "attribute", name)
}

func (t toolBase) ConfigureAttributeList(name string, _ []string) error {
	return zerr.With(zerr.New("unexpected tool attribute"), "attribute", name)
}

// ShellTool creates commands that run a shell command line.
type ShellTool struct {
	toolBase
}

// NewShellTool creates the shell tool.
func NewShellTool() *ShellTool {
	return &ShellTool{toolBase{name: "shell"}}
}

// CreateCommand creates a shell command.
func (t *ShellTool) CreateCommand(name string) buildfile.Command {
	return &ShellCommand{ExternalCommand: NewExternalCommand(name)}
}

// ShellCommand runs an argument vector (or a string handed to /bin/sh -c)
// to produce its outputs.
type ShellCommand struct {
	ExternalCommand
	args []string
}

var _ Command = (*ShellCommand)(nil)

// ConfigureOutputs adopts the output nodes and registers the producer
// back-reference.
func (c *ShellCommand) ConfigureOutputs(nodes []buildfile.Node) {
	c.configureOutputsOf(c, nodes)
}

// ConfigureAttribute accepts "args" as a whole shell line.
func (c *ShellCommand) ConfigureAttribute(name, value string) error {
	if name != "args" {
		return c.ExternalCommand.ConfigureAttribute(name, value)
	}
	c.args = []string{"/bin/sh", "-c", value}
	return nil
}

// ConfigureAttributeList accepts "args" as an argument vector.
func (c *ShellCommand) ConfigureAttributeList(name string, values []string) error {
	if name != "args" {
		return c.ExternalCommand.ConfigureAttributeList(name, values)
	}
	c.args = append([]string(nil), values...)
	return nil
}

// Signature folds the argument vector into the node-name signature.
func (c *ShellCommand) Signature() uint64 {
	sig := c.baseSignature()
	for _, arg := range c.args {
		sig ^= fs.HashString(arg)
	}
	return sig
}

// IsResultValid applies the external command validity rule.
func (c *ShellCommand) IsResultValid(value BuildValue) bool {
	return c.isResultValid(c.Signature(), value)
}

// Start declares the command inputs.
func (c *ShellCommand) Start(bsci CommandInterface, task engine.Task) {
	c.start(bsci, task)
}

// ProvidePriorValue ignores the prior value.
func (c *ShellCommand) ProvidePriorValue(CommandInterface, engine.Task, BuildValue) {}

// ProvideValue tracks input usability.
func (c *ShellCommand) ProvideValue(bsci CommandInterface, _ engine.Task, inputID uint, value BuildValue) {
	c.provideValue(bsci, inputID, value)
}

// InputsAvailable submits the process invocation to the queue.
func (c *ShellCommand) InputsAvailable(bsci CommandInterface, task engine.Task) {
	c.inputsAvailable(bsci, task, c.Signature(), func(queue.Context) bool {
		c.announce(bsci)
		return bsci.ExecuteProcess(c.args)
	})
}

// announce prints what is about to run, preferring the description.
func (c *ShellCommand) announce(bsci CommandInterface) {
	if c.Description() != "" {
		bsci.Logger().Info(c.Description())
		return
	}
	bsci.Logger().Info(strings.Join(c.args, " "))
}

// PhonyTool creates virtual commands that group nodes without running
// anything.
type PhonyTool struct {
	toolBase
}

// NewPhonyTool creates the phony tool.
func NewPhonyTool() *PhonyTool {
	return &PhonyTool{toolBase{name: "phony"}}
}

// CreateCommand creates a phony command.
func (t *PhonyTool) CreateCommand(name string) buildfile.Command {
	return &PhonyCommand{ExternalCommand: NewExternalCommand(name)}
}

// PhonyCommand succeeds without external work; its outputs are typically
// virtual nodes.
type PhonyCommand struct {
	ExternalCommand
}

var _ Command = (*PhonyCommand)(nil)

// ConfigureOutputs adopts the output nodes and registers the producer
// back-reference.
func (c *PhonyCommand) ConfigureOutputs(nodes []buildfile.Node) {
	c.configureOutputsOf(c, nodes)
}

// IsResultValid applies the external command validity rule.
func (c *PhonyCommand) IsResultValid(value BuildValue) bool {
	return c.isResultValid(c.baseSignature(), value)
}

// Start declares the command inputs.
func (c *PhonyCommand) Start(bsci CommandInterface, task engine.Task) {
	c.start(bsci, task)
}

// ProvidePriorValue ignores the prior value.
func (c *PhonyCommand) ProvidePriorValue(CommandInterface, engine.Task, BuildValue) {}

// ProvideValue tracks input usability.
func (c *PhonyCommand) ProvideValue(bsci CommandInterface, _ engine.Task, inputID uint, value BuildValue) {
	c.provideValue(bsci, inputID, value)
}

// InputsAvailable completes without external work.
func (c *PhonyCommand) InputsAvailable(bsci CommandInterface, task engine.Task) {
	c.inputsAvailable(bsci, task, c.baseSignature(), func(queue.Context) bool {
		return true
	})
}

// CompileTool creates compiler commands that emit a makefile-style
// dependency file alongside their outputs.
type CompileTool struct {
	toolBase
}

// NewCompileTool creates the compile tool.
func NewCompileTool() *CompileTool {
	return &CompileTool{toolBase{name: "cc"}}
}

// CreateCommand creates a compile command.
func (t *CompileTool) CreateCommand(name string) buildfile.Command {
	return &CompileCommand{ExternalCommand: NewExternalCommand(name)}
}

// CompileCommand runs a compiler and folds the dependencies it reports into
// the rule's discovered dependency set.
type CompileCommand struct {
	ExternalCommand
	args     []string
	depsPath string
}

var _ Command = (*CompileCommand)(nil)

// ConfigureOutputs adopts the output nodes and registers the producer
// back-reference.
func (c *CompileCommand) ConfigureOutputs(nodes []buildfile.Node) {
	c.configureOutputsOf(c, nodes)
}

// ConfigureAttribute accepts "args" and "deps".
func (c *CompileCommand) ConfigureAttribute(name, value string) error {
	switch name {
	case "args":
		c.args = []string{"/bin/sh", "-c", value}
	case "deps":
		c.depsPath = value
	default:
		return c.ExternalCommand.ConfigureAttribute(name, value)
	}
	return nil
}

// ConfigureAttributeList accepts "args" as an argument vector.
func (c *CompileCommand) ConfigureAttributeList(name string, values []string) error {
	if name != "args" {
		return c.ExternalCommand.ConfigureAttributeList(name, values)
	}
	c.args = append([]string(nil), values...)
	return nil
}

// Signature folds the argument vector and deps path into the node-name
// signature.
func (c *CompileCommand) Signature() uint64 {
	sig := c.baseSignature()
	for _, arg := range c.args {
		sig ^= fs.HashString(arg)
	}
	if c.depsPath != "" {
		sig ^= fs.HashString(c.depsPath)
	}
	return sig
}

// IsResultValid applies the external command validity rule.
func (c *CompileCommand) IsResultValid(value BuildValue) bool {
	return c.isResultValid(c.Signature(), value)
}

// Start declares the command inputs.
func (c *CompileCommand) Start(bsci CommandInterface, task engine.Task) {
	c.start(bsci, task)
}

// ProvidePriorValue ignores the prior value.
func (c *CompileCommand) ProvidePriorValue(CommandInterface, engine.Task, BuildValue) {}

// ProvideValue tracks input usability.
func (c *CompileCommand) ProvideValue(bsci CommandInterface, _ engine.Task, inputID uint, value BuildValue) {
	c.provideValue(bsci, inputID, value)
}

// InputsAvailable runs the compiler, then parses the emitted dependency
// file into discovered dependencies.
func (c *CompileCommand) InputsAvailable(bsci CommandInterface, task engine.Task) {
	c.inputsAvailable(bsci, task, c.Signature(), func(queue.Context) bool {
		if !bsci.ExecuteProcess(c.args) {
			return false
		}
		if c.depsPath == "" {
			return true
		}
		return c.processDiscoveredDependencies(bsci, task)
	})
}

func (c *CompileCommand) processDiscoveredDependencies(bsci CommandInterface, task engine.Task) bool {
	data, err := os.ReadFile(c.depsPath) //nolint:gosec // path comes from the build description
	if err != nil {
		bsci.Delegate().Error(c.depsPath, "unable to open dependencies file")
		return false
	}

	actions := &depsActions{bsci: bsci, task: task, path: c.depsPath}
	mkdeps.Parse(data, actions)
	return actions.numErrors == 0
}

// depsActions feeds parsed prerequisites into the engine as discovered
// dependencies.
type depsActions struct {
	bsci      CommandInterface
	task      engine.Task
	path      string
	numErrors int
}

func (a *depsActions) Error(message string, _ int) {
	a.bsci.Delegate().Error(a.path, "error reading dependency file: "+message)
	a.numErrors++
}

func (a *depsActions) RuleStart([]byte) {}

func (a *depsActions) RuleDependency(prereq []byte) {
	a.bsci.TaskDiscoveredDependency(a.task, string(prereq))
}

func (a *depsActions) RuleEnd() {}
