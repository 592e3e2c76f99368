package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// tracer writes one JSON record per engine decision. A nil tracer is a
// no-op, so call sites never need to guard.
type tracer struct {
	f *os.File
	w *bufio.Writer
}

func newTracer(path string) (*tracer, error) {
	f, err := os.Create(path) //nolint:gosec // path is provided by the user
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open trace file")
	}
	return &tracer{f: f, w: bufio.NewWriter(f)}, nil
}

func (t *tracer) close() error {
	if err := t.w.Flush(); err != nil {
		return zerr.Wrap(err, "failed to flush trace file")
	}
	if err := t.f.Close(); err != nil {
		return zerr.Wrap(err, "failed to close trace file")
	}
	return nil
}

type traceRecord struct {
	Event     string `json:"event"`
	Key       string `json:"key,omitempty"`
	Iteration uint64 `json:"iteration"`
	Reason    string `json:"reason,omitempty"`
	Input     string `json:"input,omitempty"`
	Changed   *bool  `json:"changed,omitempty"`
}

func (t *tracer) emit(rec traceRecord) {
	if t == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = t.w.Write(data)
	_ = t.w.WriteByte('\n')
}

func (t *tracer) buildStarted(iteration uint64) {
	t.emit(traceRecord{Event: "build-started", Iteration: iteration})
}

func (t *tracer) buildEnded(iteration uint64) {
	t.emit(traceRecord{Event: "build-ended", Iteration: iteration})
}

func (t *tracer) scanEnter(key domain.Key, iteration uint64) {
	t.emit(traceRecord{Event: "scan-enter", Key: string(key), Iteration: iteration})
}

func (t *tracer) scanSkipValid(key domain.Key, iteration uint64) {
	t.emit(traceRecord{Event: "scan-skip-valid", Key: string(key), Iteration: iteration})
}

func (t *tracer) needsToRun(key domain.Key, iteration uint64, reason string) {
	t.emit(traceRecord{Event: "needs-to-run", Key: string(key),
		Iteration: iteration, Reason: reason})
}

func (t *tracer) needsToRunInput(key domain.Key, iteration uint64, input domain.Key) {
	t.emit(traceRecord{Event: "needs-to-run", Key: string(key),
		Iteration: iteration, Reason: "input-rebuilt", Input: string(input)})
}

func (t *tracer) executeBegin(key domain.Key, iteration uint64) {
	t.emit(traceRecord{Event: "execute-begin", Key: string(key), Iteration: iteration})
}

func (t *tracer) executeComplete(key domain.Key, iteration uint64, changed bool) {
	t.emit(traceRecord{Event: "execute-complete", Key: string(key),
		Iteration: iteration, Changed: &changed})
}

// dotWriter emits the rule graph in Graphviz DOT format.
type dotWriter struct {
	w   io.Writer
	err error
}

func newDotWriter(w io.Writer) *dotWriter {
	return &dotWriter{w: w}
}

func (d *dotWriter) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *dotWriter) header(name string) {
	d.printf("digraph %s {\n", name)
	d.printf("rankdir=\"LR\"\n")
	d.printf("node [fontsize=10, shape=box, height=0.25]\n\n")
}

func (d *dotWriter) node(key string) {
	d.printf("%q\n", key)
}

func (d *dotWriter) edge(from, to string) {
	d.printf("%q -> %q\n", from, to)
}

func (d *dotWriter) footer() error {
	d.printf("}\n")
	return d.err
}
