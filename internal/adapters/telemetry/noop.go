// Package telemetry provides status display adapters for build progress.
package telemetry

import (
	"io"

	"go.trai.ch/anvil/internal/core/ports"
)

// Noop implements ports.Telemetry by discarding everything. Used when no
// status display is wanted (quiet mode, tests).
type Noop struct{}

var _ ports.Telemetry = Noop{}

// NewNoop creates a Noop telemetry sink.
func NewNoop() ports.Telemetry { return Noop{} }

// Vertex returns a vertex that discards all activity.
func (Noop) Vertex(string) ports.Vertex { return noopVertex{} }

// Close does nothing.
func (Noop) Close() error { return nil }

type noopVertex struct{}

func (noopVertex) Stdout() io.Writer  { return io.Discard }
func (noopVertex) Stderr() io.Writer  { return io.Discard }
func (noopVertex) Cached()            {}
func (noopVertex) Complete(err error) {}
