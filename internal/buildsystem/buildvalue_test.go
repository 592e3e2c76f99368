package buildsystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/anvil/internal/buildsystem/buildfile"
	"go.trai.ch/anvil/internal/core/domain"
)

func stamp(size, sec uint64) domain.FileInfo {
	return domain.FileInfo{
		Mode:    0o644,
		Size:    size,
		ModTime: domain.FileTimestamp{Seconds: sec, Nanoseconds: 7},
	}
}

func TestBuildValue_EncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		value BuildValue
	}{
		{name: "virtual", value: MakeVirtualInputValue()},
		{name: "missing", value: MakeMissingInputValue()},
		{name: "failed input", value: MakeFailedInputValue()},
		{name: "failed command", value: MakeFailedCommandValue()},
		{name: "skipped", value: MakeSkippedCommandValue()},
		{name: "target", value: MakeTargetValue()},
		{name: "existing", value: MakeExistingInputValue(stamp(10, 100))},
		{name: "successful", value: MakeSuccessfulCommandValue(
			[]domain.FileInfo{stamp(1, 2), {}, stamp(3, 4)}, 0xdeadbeef)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeBuildValue(tt.value.Encode())
			require.NoError(t, err)
			assert.Equal(t, tt.value.Kind, decoded.Kind)
			assert.Equal(t, tt.value.Signature, decoded.Signature)
			assert.Len(t, decoded.Outputs, len(tt.value.Outputs))
			for i := range tt.value.Outputs {
				assert.Equal(t, tt.value.Outputs[i], decoded.Outputs[i])
			}
		})
	}
}

func TestBuildValue_DecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeBuildValue(domain.Value{1, 2, 3})
	assert.Error(t, err)

	// A count that disagrees with the payload length is rejected.
	v := MakeSuccessfulCommandValue([]domain.FileInfo{stamp(1, 2)}, 1).Encode()
	_, err = DecodeBuildValue(v[:len(v)-8])
	assert.Error(t, err)
}

func TestExternalCommand_ResultForOutput(t *testing.T) {
	out := NewBuildNode("a.out")
	virt := NewBuildNode("<done>")
	cmd := &ShellCommand{ExternalCommand: NewExternalCommand("link")}
	cmd.ConfigureOutputs([]buildfile.Node{out, virt})

	// Outputs gained the producer back-reference.
	require.Len(t, out.Producers(), 1)

	info := stamp(9, 9)
	success := MakeSuccessfulCommandValue([]domain.FileInfo{info, {}}, cmd.Signature())

	got := cmd.ResultForOutput(out, success)
	assert.Equal(t, BuildValueExistingInput, got.Kind)
	assert.Equal(t, info, got.OutputInfo(0))

	got = cmd.ResultForOutput(virt, success)
	assert.Equal(t, BuildValueVirtualInput, got.Kind)

	got = cmd.ResultForOutput(out, MakeFailedCommandValue())
	assert.Equal(t, BuildValueFailedInput, got.Kind)

	got = cmd.ResultForOutput(out, MakeSkippedCommandValue())
	assert.Equal(t, BuildValueFailedInput, got.Kind)
}

func TestExternalCommand_SignatureTracksShape(t *testing.T) {
	mk := func(inputs, outputs []buildfile.Node, args []string) *ShellCommand {
		cmd := &ShellCommand{ExternalCommand: NewExternalCommand("c")}
		cmd.ConfigureInputs(inputs)
		cmd.ConfigureOutputs(outputs)
		require.NoError(t, cmd.ConfigureAttributeList("args", args))
		return cmd
	}

	in := NewBuildNode("in.c")
	out := NewBuildNode("out.o")

	base := mk([]buildfile.Node{in}, []buildfile.Node{out}, []string{"cc", "in.c"})
	same := mk([]buildfile.Node{in}, []buildfile.Node{out}, []string{"cc", "in.c"})
	assert.Equal(t, base.Signature(), same.Signature())

	differentArgs := mk([]buildfile.Node{in}, []buildfile.Node{out}, []string{"cc", "-O2", "in.c"})
	assert.NotEqual(t, base.Signature(), differentArgs.Signature())

	differentOut := mk([]buildfile.Node{in}, []buildfile.Node{NewBuildNode("other.o")},
		[]string{"cc", "in.c"})
	assert.NotEqual(t, base.Signature(), differentOut.Signature())
}

func TestExternalCommand_IsResultValid(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(outPath, []byte("payload"), 0o644))

	out := NewBuildNode(outPath)
	cmd := &ShellCommand{ExternalCommand: NewExternalCommand("write")}
	cmd.ConfigureOutputs([]buildfile.Node{out})
	require.NoError(t, cmd.ConfigureAttribute("args", "echo payload > out.txt"))

	good := MakeSuccessfulCommandValue(
		[]domain.FileInfo{out.FileInfo()}, cmd.Signature())

	assert.True(t, cmd.IsResultValid(good))

	// Anything but a successful run is stale.
	assert.False(t, cmd.IsResultValid(MakeFailedCommandValue()))
	assert.False(t, cmd.IsResultValid(MakeSkippedCommandValue()))

	// A signature change is stale.
	stale := good
	stale.Signature++
	assert.False(t, cmd.IsResultValid(stale))

	// Output file changes are stale.
	require.NoError(t, os.WriteFile(outPath, []byte("different length"), 0o644))
	assert.False(t, cmd.IsResultValid(good))

	// A deleted output is stale.
	require.NoError(t, os.Remove(outPath))
	assert.False(t, cmd.IsResultValid(good))
}

func TestBuildNode_Virtual(t *testing.T) {
	virt := NewBuildNode("<all>")
	assert.True(t, virt.IsVirtual())
	assert.True(t, virt.FileInfo().IsMissing())

	plain := NewBuildNode("file.txt")
	assert.False(t, plain.IsVirtual())
}

func TestBuildKey_RoundTrip(t *testing.T) {
	kind, name := splitKey(MakeCommandKey("link"))
	assert.Equal(t, keyKindCommand, kind)
	assert.Equal(t, "link", name)

	kind, name = splitKey(MakeNodeKey("a.out"))
	assert.Equal(t, keyKindNode, kind)
	assert.Equal(t, "a.out", name)

	kind, name = splitKey(MakeTargetKey("all"))
	assert.Equal(t, keyKindTarget, kind)
	assert.Equal(t, "all", name)
}
