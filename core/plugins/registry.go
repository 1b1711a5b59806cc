// Package plugins defines the InputPlugin/OutputPlugin contracts and the
// process-wide registry that resolves a declared format identifier to
// one of them. Registration is initialization-time only: once the
// pipeline begins running, the registry is read-only.
package plugins

import (
	"io"
	"os"
	"strings"
	"sync"

	"bookforge/core/config"
	bferrors "bookforge/core/errors"
	"bookforge/core/ir"
)

// ProgressFunc reports fractional progress (0.0-1.0) and a short label,
// matching the pipeline's progress-callback convention.
type ProgressFunc func(fraction float64, label string)

// Source is either an in-memory byte sequence or a filesystem path, the
// two forms an InputPlugin may be asked to parse.
type Source struct {
	Bytes []byte
	Path  string
}

// BytesSource wraps an in-memory byte sequence as a Source.
func BytesSource(b []byte) Source { return Source{Bytes: b} }

// PathSource wraps a filesystem path as a Source.
func PathSource(p string) Source { return Source{Path: p} }

// ReadAll returns s's content, reading from disk if s wraps a path.
func (s Source) ReadAll() ([]byte, error) {
	if s.Bytes != nil {
		return s.Bytes, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, bferrors.NewIO("read", s.Path, err)
	}
	return data, nil
}

// Sink is either an output path or a byte writer, the two forms an
// OutputPlugin may be asked to write to.
type Sink struct {
	Writer io.Writer
	Path   string
}

// WriterSink wraps a byte writer as a Sink.
func WriterSink(w io.Writer) Sink { return Sink{Writer: w} }

// PathSink wraps a filesystem path as a Sink.
func PathSink(p string) Sink { return Sink{Path: p} }

// WriteAll writes data to s, to its writer if one was given, otherwise
// to its path.
func (s Sink) WriteAll(data []byte) error {
	if s.Writer != nil {
		if _, err := s.Writer.Write(data); err != nil {
			return bferrors.NewIO("write", "", err)
		}
		return nil
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return bferrors.NewIO("write", s.Path, err)
	}
	return nil
}

// InputPlugin parses a source into a fresh BookIR for one or more
// format identifiers. Postprocessing (any output-format specialization
// hook) happens before Parse returns.
type InputPlugin interface {
	Name() string
	Formats() []string
	Parse(src Source, opts config.Options, progress ProgressFunc) (*ir.BookIR, error)
}

// OutputPlugin serializes a BookIR to a sink for one or more format
// identifiers. Write MUST NOT mutate book.
type OutputPlugin interface {
	Name() string
	Formats() []string
	Write(book *ir.BookIR, sink Sink, opts config.Options) error
}

// Registry is a process-wide, read-after-init mapping from case-folded
// format identifier to input/output plugin.
type Registry struct {
	mu      sync.RWMutex
	inputs  map[string]InputPlugin
	outputs map[string]OutputPlugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inputs:  make(map[string]InputPlugin),
		outputs: make(map[string]OutputPlugin),
	}
}

// RegisterInput registers plugin for each of its declared formats,
// case-folded. A later registration for the same format id overrides
// an earlier one.
func (r *Registry) RegisterInput(plugin InputPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range plugin.Formats() {
		r.inputs[strings.ToLower(f)] = plugin
	}
}

// RegisterOutput registers plugin for each of its declared formats,
// case-folded.
func (r *Registry) RegisterOutput(plugin OutputPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range plugin.Formats() {
		r.outputs[strings.ToLower(f)] = plugin
	}
}

// Input returns the input plugin for format, case-folded.
func (r *Registry) Input(format string) (InputPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.inputs[strings.ToLower(format)]
	return p, ok
}

// Output returns the output plugin for format, case-folded.
func (r *Registry) Output(format string) (OutputPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.outputs[strings.ToLower(format)]
	return p, ok
}

// InputFormats lists every registered input format identifier.
func (r *Registry) InputFormats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.inputs))
	for f := range r.inputs {
		out = append(out, f)
	}
	return out
}

// OutputFormats lists every registered output format identifier.
func (r *Registry) OutputFormats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.outputs))
	for f := range r.outputs {
		out = append(out, f)
	}
	return out
}

// defaultRegistry is the process-wide registry populated during program
// initialization by each format package's init() (see formats/*).
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }
