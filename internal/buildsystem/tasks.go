package buildsystem

import (
	"go.trai.ch/anvil/internal/buildsystem/buildfile"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/engine"
)

// targetTask fans in a target's root nodes and reports missing inputs.
type targetTask struct {
	system          *System
	target          *buildfile.Target
	hasMissingInput bool
}

func (t *targetTask) Start(eng *engine.Engine) {
	for i, node := range t.target.Nodes {
		eng.TaskNeedsInput(t, MakeNodeKey(node.Name()), uint(i))
	}
}

func (t *targetTask) ProvidePriorValue(*engine.Engine, domain.Value) {}

func (t *targetTask) ProvideValue(_ *engine.Engine, inputID uint, raw domain.Value) {
	value, err := DecodeBuildValue(raw)
	if err != nil {
		return
	}
	if value.Kind == BuildValueMissingInput {
		t.hasMissingInput = true
		t.system.Delegate().Error("", "missing input '"+
			t.target.Nodes[inputID].Name()+"' and no rule to build it")
	}
}

func (t *targetTask) InputsAvailable(eng *engine.Engine) {
	if t.hasMissingInput {
		t.system.Delegate().Error("", "cannot build target '"+
			t.target.Name+"' due to missing input")
		t.system.Delegate().HadCommandFailure()
	}
	eng.TaskIsComplete(t, MakeTargetValue().Encode(), false)
}

// inputNodeTask stamps a node that no command produces: raw input to the
// build.
type inputNodeTask struct {
	node *BuildNode
}

func (t *inputNodeTask) Start(*engine.Engine)                            {}
func (t *inputNodeTask) ProvidePriorValue(*engine.Engine, domain.Value)  {}
func (t *inputNodeTask) ProvideValue(*engine.Engine, uint, domain.Value) {}

func (t *inputNodeTask) InputsAvailable(eng *engine.Engine) {
	if t.node.IsVirtual() {
		eng.TaskIsComplete(t, MakeVirtualInputValue().Encode(), false)
		return
	}
	info := t.node.FileInfo()
	if info.IsMissing() {
		eng.TaskIsComplete(t, MakeMissingInputValue().Encode(), false)
		return
	}
	eng.TaskIsComplete(t, MakeExistingInputValue(info).Encode(), false)
}

// inputNodeValid reports whether a stored input node value still matches
// the filesystem.
func inputNodeValid(node *BuildNode, raw domain.Value) bool {
	value, err := DecodeBuildValue(raw)
	if err != nil {
		return false
	}
	if node.IsVirtual() {
		return value.Kind == BuildValueVirtualInput
	}
	if value.Kind != BuildValueExistingInput {
		return false
	}
	info := node.FileInfo()
	if info.IsMissing() {
		return false
	}
	return len(value.Outputs) == 1 && value.Outputs[0] == info
}

// producedNodeTask projects a producer command's value onto one of its
// output nodes.
type producedNodeTask struct {
	system   *System
	node     *BuildNode
	producer Command
	result   BuildValue
	invalid  bool
}

func (t *producedNodeTask) Start(eng *engine.Engine) {
	producers := t.node.Producers()
	if len(producers) == 1 {
		t.producer = producers[0]
		eng.TaskNeedsInput(t, MakeCommandKey(t.producer.Name()), 0)
		return
	}

	// Nodes with several producers are ambiguous; refuse to pick one.
	t.system.Delegate().Error("", "unable to build node '"+t.node.Name()+
		"' (node is produced by multiple commands; e.g., '"+
		producers[0].Name()+"' and '"+producers[1].Name()+"')")
	t.invalid = true
}

func (t *producedNodeTask) ProvidePriorValue(*engine.Engine, domain.Value) {}

func (t *producedNodeTask) ProvideValue(_ *engine.Engine, _ uint, raw domain.Value) {
	value, err := DecodeBuildValue(raw)
	if err != nil {
		t.invalid = true
		return
	}
	t.result = t.producer.ResultForOutput(t.node, value)
}

func (t *producedNodeTask) InputsAvailable(eng *engine.Engine) {
	if t.invalid {
		eng.TaskIsComplete(t, MakeFailedInputValue().Encode(), false)
		return
	}
	eng.TaskIsComplete(t, t.result.Encode(), false)
}

// producedNodeValid rebuilds failed projections; everything else is
// synchronized by the producing command.
func producedNodeValid(raw domain.Value) bool {
	value, err := DecodeBuildValue(raw)
	if err != nil {
		return false
	}
	return value.Kind != BuildValueFailedInput
}

// commandTask adapts a Command to the engine task lifecycle.
type commandTask struct {
	system  *System
	command Command
}

func (t *commandTask) Start(*engine.Engine) {
	t.command.Start(t.system, t)
}

func (t *commandTask) ProvidePriorValue(_ *engine.Engine, raw domain.Value) {
	value, err := DecodeBuildValue(raw)
	if err != nil {
		return
	}
	t.command.ProvidePriorValue(t.system, t, value)
}

func (t *commandTask) ProvideValue(_ *engine.Engine, inputID uint, raw domain.Value) {
	value, err := DecodeBuildValue(raw)
	if err != nil {
		value = MakeFailedInputValue()
	}
	t.command.ProvideValue(t.system, t, inputID, value)
}

func (t *commandTask) InputsAvailable(*engine.Engine) {
	t.command.InputsAvailable(t.system, t)
}

// missingCommandTask stands in for a command that disappeared from the
// description but survives in the database. Its forced-invalid value makes
// dependants rebuild and notice the command is gone.
type missingCommandTask struct{}

func (t *missingCommandTask) Start(*engine.Engine)                            {}
func (t *missingCommandTask) ProvidePriorValue(*engine.Engine, domain.Value)  {}
func (t *missingCommandTask) ProvideValue(*engine.Engine, uint, domain.Value) {}

func (t *missingCommandTask) InputsAvailable(eng *engine.Engine) {
	eng.TaskIsComplete(t, MakeInvalidValue().Encode(), true)
}
