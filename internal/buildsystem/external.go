package buildsystem

import (
	"go.trai.ch/anvil/internal/adapters/fs"
	"go.trai.ch/anvil/internal/buildsystem/buildfile"
	"go.trai.ch/anvil/internal/buildsystem/queue"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/engine"
	"go.trai.ch/zerr"
)

// ExternalCommand is the shared body for commands that turn input files into
// output files via a child process. Concrete commands embed it and supply
// their signature extension and process invocation.
type ExternalCommand struct {
	name        string
	description string
	inputs      []*BuildNode
	outputs     []*BuildNode

	// Per-build state, reset in start.
	shouldSkip      bool
	hasMissingInput bool
}

// NewExternalCommand initialises the shared command state.
func NewExternalCommand(name string) ExternalCommand {
	return ExternalCommand{name: name}
}

// Name returns the command name.
func (c *ExternalCommand) Name() string { return c.name }

// Description returns the configured description.
func (c *ExternalCommand) Description() string { return c.description }

// Inputs returns the input nodes.
func (c *ExternalCommand) Inputs() []*BuildNode { return c.inputs }

// Outputs returns the output nodes.
func (c *ExternalCommand) Outputs() []*BuildNode { return c.outputs }

// ConfigureDescription stores the display description.
func (c *ExternalCommand) ConfigureDescription(description string) {
	c.description = description
}

// ConfigureInputs adopts the input node list.
func (c *ExternalCommand) ConfigureInputs(nodes []buildfile.Node) {
	c.inputs = asBuildNodes(nodes)
}

// configureOutputsOf adopts the output node list and installs the producer
// back-reference on each output. Concrete commands call it from their
// ConfigureOutputs so the registered producer is the concrete command.
func (c *ExternalCommand) configureOutputsOf(self Command, nodes []buildfile.Node) {
	c.outputs = asBuildNodes(nodes)
	for _, node := range c.outputs {
		node.addProducer(self)
	}
}

func asBuildNodes(nodes []buildfile.Node) []*BuildNode {
	out := make([]*BuildNode, 0, len(nodes))
	for _, node := range nodes {
		if bn, ok := node.(*BuildNode); ok {
			out = append(out, bn)
		}
	}
	return out
}

// ConfigureAttribute rejects attributes unknown to the base command.
func (c *ExternalCommand) ConfigureAttribute(name, _ string) error {
	return zerr.With(zerr.New("unexpected command attribute"), "attribute", name)
}

// ConfigureAttributeList rejects attributes unknown to the base command.
func (c *ExternalCommand) ConfigureAttributeList(name string, _ []string) error {
	return zerr.With(zerr.New("unexpected command attribute"), "attribute", name)
}

// baseSignature is the XOR of the hashes of all input and output node
// names; commands fold their arguments on top.
func (c *ExternalCommand) baseSignature() uint64 {
	var sig uint64
	for _, node := range c.inputs {
		sig ^= fs.HashString(node.Name())
	}
	for _, node := range c.outputs {
		sig ^= fs.HashString(node.Name())
	}
	return sig
}

// isResultValid implements the shared validity rule: the stored value must
// be a successful run with a matching signature, and every non-virtual
// output's current stamp must equal the stored one.
func (c *ExternalCommand) isResultValid(signature uint64, value BuildValue) bool {
	if value.Kind != BuildValueSuccessfulCommand {
		return false
	}
	if value.Signature != signature {
		return false
	}
	for i, node := range c.outputs {
		if node.IsVirtual() {
			continue
		}
		info := node.FileInfo()
		if info.IsMissing() {
			return false
		}
		if i >= len(value.Outputs) || value.Outputs[i] != info {
			return false
		}
	}
	return true
}

// start requests every input node.
func (c *ExternalCommand) start(bsci CommandInterface, task engine.Task) {
	c.shouldSkip = false
	c.hasMissingInput = false
	for i, node := range c.inputs {
		bsci.TaskNeedsInput(task, node.Name(), uint(i))
	}
}

// provideValue tracks whether the command can run at all.
func (c *ExternalCommand) provideValue(bsci CommandInterface, inputID uint, value BuildValue) {
	if value.Kind == BuildValueExistingInput || value.Kind == BuildValueVirtualInput {
		return
	}
	c.shouldSkip = true
	if value.Kind == BuildValueMissingInput {
		c.hasMissingInput = true
		bsci.Delegate().Error("", "missing input '"+
			c.inputs[inputID].Name()+"' and no rule to build it")
	}
}

// inputsAvailable finishes the command: skips when cancelled or an input is
// unusable, otherwise submits the process invocation to the execution
// queue. execute reports whether the external work succeeded.
func (c *ExternalCommand) inputsAvailable(
	bsci CommandInterface,
	task engine.Task,
	signature uint64,
	execute func(qctx queue.Context) bool,
) {
	if bsci.Delegate().IsCancelled() {
		bsci.TaskIsComplete(task, MakeSkippedCommandValue())
		return
	}

	if c.shouldSkip {
		if c.hasMissingInput {
			bsci.Delegate().Error("", "cannot build '"+
				c.outputs[0].Name()+"' due to missing input")
			bsci.Delegate().HadCommandFailure()
		}
		bsci.TaskIsComplete(task, MakeSkippedCommandValue())
		return
	}

	bsci.AddJob(queue.Job{
		Owner: c,
		Run: func(qctx queue.Context) {
			if qctx.Cancelled() {
				bsci.TaskIsComplete(task, MakeSkippedCommandValue())
				return
			}
			if !execute(qctx) {
				bsci.TaskIsComplete(task, MakeFailedCommandValue())
				bsci.Delegate().HadCommandFailure()
				return
			}

			outputs := make([]domain.FileInfo, len(c.outputs))
			for i, node := range c.outputs {
				if !node.IsVirtual() {
					outputs[i] = node.FileInfo()
				}
			}
			bsci.TaskIsComplete(task,
				MakeSuccessfulCommandValue(outputs, signature))
		},
	})
}

// ResultForOutput projects the command value onto one output node.
func (c *ExternalCommand) ResultForOutput(node buildfile.Node, value BuildValue) BuildValue {
	if value.Kind == BuildValueFailedCommand || value.Kind == BuildValueSkippedCommand {
		return MakeFailedInputValue()
	}
	if value.Kind != BuildValueSuccessfulCommand {
		return MakeInvalidValue()
	}

	bn, ok := node.(*BuildNode)
	if ok && bn.IsVirtual() {
		return MakeVirtualInputValue()
	}
	for i, output := range c.outputs {
		if output == bn {
			info := value.OutputInfo(i)
			if info.IsMissing() {
				return MakeMissingInputValue()
			}
			return MakeExistingInputValue(info)
		}
	}
	return MakeInvalidValue()
}
