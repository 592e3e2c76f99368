package ports

import "io"

// Telemetry records per-rule progress for status display.
//
// The engine reports rule transitions through vertices; adapters decide how
// to render them (progrock tape, noop).
type Telemetry interface {
	// Vertex opens a progress vertex for the named unit of work.
	Vertex(name string) Vertex

	// Close flushes and closes the recording session.
	Close() error
}

// Vertex is one tracked unit of work.
type Vertex interface {
	// Stdout returns a writer for the unit's standard output stream.
	Stdout() io.Writer

	// Stderr returns a writer for the unit's error output stream.
	Stderr() io.Writer

	// Cached marks the vertex as up to date without running.
	Cached()

	// Complete marks the vertex as finished.
	Complete(err error)
}
