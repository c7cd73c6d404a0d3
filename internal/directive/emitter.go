package directive

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
)

// Kind is the directive verb.
type Kind string

// Directive kinds.
const (
	// RerunIfChanged asks the build to re-run the pipeline when a file changes.
	RerunIfChanged Kind = "rerun-if-changed"
	// LinkSearch adds a native library search path.
	LinkSearch Kind = "link-search"
	// LinkLib links a library by base name.
	LinkLib Kind = "link-lib"
)

// Directive is one announcement.
type Directive struct {
	Kind  Kind
	Value string
}

// String renders the directive without prefix.
func (d Directive) String() string {
	return string(d.Kind) + "=" + d.Value
}

// LibDirName is the conventional library subdirectory of an artifact root.
const LibDirName = "lib"

// Emitter writes directives to an output stream.
// Write failures do not interrupt emission; the first one is kept and reported by Err.
type Emitter struct {
	mu      sync.Mutex
	out     io.Writer
	prefix  string
	emitted []Directive
	err     error
}

// NewEmitter creates an Emitter writing to out. A nil out only records directives.
func NewEmitter(out io.Writer, prefix string) *Emitter {
	if out == nil {
		out = io.Discard
	}

	return &Emitter{
		out:    out,
		prefix: prefix,
	}
}

// RerunIfChanged announces a watched file.
func (e *Emitter) RerunIfChanged(path string) {
	e.emit(Directive{Kind: RerunIfChanged, Value: path})
}

// Link announces the library directory of artifactRoot and the static library to link.
func (e *Emitter) Link(artifactRoot, library string) {
	e.emit(Directive{Kind: LinkSearch, Value: "native=" + filepath.Join(artifactRoot, LibDirName)})
	e.emit(Directive{Kind: LinkLib, Value: "static=" + library})
}

// Directives returns a copy of everything emitted so far.
func (e *Emitter) Directives() []Directive {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]Directive(nil), e.emitted...)
}

// Watched returns the paths announced with RerunIfChanged, in order.
func (e *Emitter) Watched() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var paths []string

	for _, d := range e.emitted {
		if d.Kind == RerunIfChanged {
			paths = append(paths, d.Value)
		}
	}

	return paths
}

// Err returns the first write error.
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.err
}

func (e *Emitter) emit(d Directive) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.emitted = append(e.emitted, d)

	if _, err := fmt.Fprintf(e.out, "%s%s\n", e.prefix, d); err != nil && e.err == nil {
		e.err = fmt.Errorf("write directive %s: %w", d.Kind, err)
	}
}
