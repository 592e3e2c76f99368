package buildsystem

import (
	"encoding/binary"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// BuildValueKind discriminates the build value union.
type BuildValueKind uint32

const (
	// BuildValueInvalid forces dependants to rebuild; used for commands
	// that disappeared from the description.
	BuildValueInvalid BuildValueKind = iota
	// BuildValueVirtualInput is the value of a virtual (phony) node.
	BuildValueVirtualInput
	// BuildValueExistingInput carries the stamp of an existing file.
	BuildValueExistingInput
	// BuildValueMissingInput marks a source file that does not exist.
	BuildValueMissingInput
	// BuildValueFailedInput marks a node whose producer failed.
	BuildValueFailedInput
	// BuildValueSuccessfulCommand carries the output stamps and signature
	// of a command that ran successfully.
	BuildValueSuccessfulCommand
	// BuildValueFailedCommand marks a command whose process failed.
	BuildValueFailedCommand
	// BuildValueSkippedCommand marks a command skipped due to a missing or
	// failed input, or cancellation.
	BuildValueSkippedCommand
	// BuildValueTarget is the value of a target rule.
	BuildValueTarget
)

// String returns the kind name.
func (k BuildValueKind) String() string {
	switch k {
	case BuildValueInvalid:
		return "invalid"
	case BuildValueVirtualInput:
		return "virtual-input"
	case BuildValueExistingInput:
		return "existing-input"
	case BuildValueMissingInput:
		return "missing-input"
	case BuildValueFailedInput:
		return "failed-input"
	case BuildValueSuccessfulCommand:
		return "successful-command"
	case BuildValueFailedCommand:
		return "failed-command"
	case BuildValueSkippedCommand:
		return "skipped-command"
	case BuildValueTarget:
		return "target"
	default:
		return "unknown"
	}
}

// BuildValue is the tagged union stored as the engine value for every build
// system rule.
type BuildValue struct {
	Kind BuildValueKind

	// Outputs holds per-output file stamps for successful commands, or the
	// single stamp of an existing input.
	Outputs []domain.FileInfo

	// Signature fingerprints the producing command's static shape.
	Signature uint64
}

// MakeInvalidValue creates an invalid value.
func MakeInvalidValue() BuildValue { return BuildValue{Kind: BuildValueInvalid} }

// MakeVirtualInputValue creates a virtual input value.
func MakeVirtualInputValue() BuildValue { return BuildValue{Kind: BuildValueVirtualInput} }

// MakeExistingInputValue creates an existing input value from a stamp.
func MakeExistingInputValue(info domain.FileInfo) BuildValue {
	return BuildValue{Kind: BuildValueExistingInput, Outputs: []domain.FileInfo{info}}
}

// MakeMissingInputValue creates a missing input value.
func MakeMissingInputValue() BuildValue { return BuildValue{Kind: BuildValueMissingInput} }

// MakeFailedInputValue creates a failed input value.
func MakeFailedInputValue() BuildValue { return BuildValue{Kind: BuildValueFailedInput} }

// MakeSuccessfulCommandValue creates a successful command value.
func MakeSuccessfulCommandValue(outputs []domain.FileInfo, signature uint64) BuildValue {
	return BuildValue{Kind: BuildValueSuccessfulCommand, Outputs: outputs, Signature: signature}
}

// MakeFailedCommandValue creates a failed command value.
func MakeFailedCommandValue() BuildValue { return BuildValue{Kind: BuildValueFailedCommand} }

// MakeSkippedCommandValue creates a skipped command value.
func MakeSkippedCommandValue() BuildValue { return BuildValue{Kind: BuildValueSkippedCommand} }

// MakeTargetValue creates a target value.
func MakeTargetValue() BuildValue { return BuildValue{Kind: BuildValueTarget} }

// OutputInfo returns the stamp of the i'th output.
func (v BuildValue) OutputInfo(i int) domain.FileInfo {
	return v.Outputs[i]
}

// Encode serialises the value, little-endian:
// kind u32, output_count u32, signature u64, (mode u64, size u64,
// mtime_sec u64, mtime_nsec u64) per output.
func (v BuildValue) Encode() domain.Value {
	buf := make([]byte, 0, 16+len(v.Outputs)*32)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(v.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Outputs)))
	buf = binary.LittleEndian.AppendUint64(buf, v.Signature)
	for _, info := range v.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, info.Mode)
		buf = binary.LittleEndian.AppendUint64(buf, info.Size)
		buf = binary.LittleEndian.AppendUint64(buf, info.ModTime.Seconds)
		buf = binary.LittleEndian.AppendUint64(buf, info.ModTime.Nanoseconds)
	}
	return domain.Value(buf)
}

// DecodeBuildValue deserialises a value produced by Encode.
func DecodeBuildValue(data domain.Value) (BuildValue, error) {
	var v BuildValue
	if len(data) < 16 {
		return v, zerr.New("truncated build value")
	}
	v.Kind = BuildValueKind(binary.LittleEndian.Uint32(data))
	count := binary.LittleEndian.Uint32(data[4:])
	v.Signature = binary.LittleEndian.Uint64(data[8:])
	rest := data[16:]
	if uint32(len(rest)) != count*32 {
		return v, zerr.New("malformed build value")
	}
	for i := uint32(0); i < count; i++ {
		v.Outputs = append(v.Outputs, domain.FileInfo{
			Mode: binary.LittleEndian.Uint64(rest),
			Size: binary.LittleEndian.Uint64(rest[8:]),
			ModTime: domain.FileTimestamp{
				Seconds:     binary.LittleEndian.Uint64(rest[16:]),
				Nanoseconds: binary.LittleEndian.Uint64(rest[24:]),
			},
		})
		rest = rest[32:]
	}
	return v, nil
}
