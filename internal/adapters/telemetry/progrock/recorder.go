// Package progrock implements the telemetry port on a progrock tape.
package progrock

import (
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/anvil/internal/core/ports"
)

// Recorder implements ports.Telemetry using the progrock library.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder
}

var _ ports.Telemetry = (*Recorder)(nil)

// New creates a Recorder with a default tape.
func New() *Recorder {
	return NewRecorder(progrock.NewTape())
}

// NewRecorder creates a Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{w: w, rec: progrock.NewRecorder(w)}
}

// Vertex opens a progress vertex for the named unit of work.
func (r *Recorder) Vertex(name string) ports.Vertex {
	v := r.rec.Vertex(digest.FromString(name), name)
	return &vertex{vertex: v}
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type vertex struct {
	vertex *progrock.VertexRecorder
}

func (v *vertex) Stdout() io.Writer { return v.vertex.Stdout() }
func (v *vertex) Stderr() io.Writer { return v.vertex.Stderr() }

func (v *vertex) Cached() { v.vertex.Cached() }

func (v *vertex) Complete(err error) { v.vertex.Done(err) }
