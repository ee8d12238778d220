// Package engine compiles ONNX models into runnable sessions.
//
// Two engines are available: "born", a pure-Go interpreter that is always
// built, and "onnxruntime", which binds the native ONNX Runtime library and
// is only functional in binaries built with the 'onnxruntime' tag.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"ipnis/pkg/tensor"
)

// Engine compiles model bytes into sessions.
type Engine interface {
	// Name identifies the engine in status output.
	Name() string
	// Compile builds a session from src. Options are process-wide.
	Compile(ctx context.Context, src Source, opts Options) (Session, error)
}

// Session is a compiled model. Run is safe for concurrent use.
type Session interface {
	Inputs() []Signature
	Outputs() []Signature
	// Run executes the model. inputs are in declared input order; the
	// result holds one f32 array per declared output, in declared order.
	Run(ctx context.Context, inputs []tensor.Tensor) ([]*tensor.Array[float32], error)
	Close() error
}

// Signature is one graph input or output as declared by the model file.
// Type is zero when the model uses an element type this package does not
// map.
type Signature struct {
	Name string
	Type tensor.ElementType
	Dims []tensor.Dim
}

// Source is either an in-memory model or a model file on disk.
type Source struct {
	Bytes []byte
	File  string
}

func (s Source) load() ([]byte, error) {
	if s.Bytes != nil {
		return s.Bytes, nil
	}
	if s.File == "" {
		return nil, fmt.Errorf("engine: empty model source")
	}
	return os.ReadFile(s.File)
}

// OptimizationLevel selects graph optimizations applied at compile time.
type OptimizationLevel int

const (
	OptDisable OptimizationLevel = iota
	OptBasic
	OptExtended
	OptAll
)

// ParseOptimizationLevel accepts disable, basic, extended or all.
func ParseOptimizationLevel(s string) (OptimizationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disable", "disabled", "none":
		return OptDisable, nil
	case "", "basic":
		return OptBasic, nil
	case "extended":
		return OptExtended, nil
	case "all":
		return OptAll, nil
	}
	return OptBasic, fmt.Errorf("unknown optimization level %q", s)
}

func (l OptimizationLevel) String() string {
	switch l {
	case OptDisable:
		return "disable"
	case OptExtended:
		return "extended"
	case OptAll:
		return "all"
	default:
		return "basic"
	}
}

// Options configure compilation.
type Options struct {
	OptimizationLevel OptimizationLevel
	Threads           int
}

// DefaultOptions are basic optimization on a single thread.
func DefaultOptions() Options { return Options{OptimizationLevel: OptBasic, Threads: 1} }

// Config selects and configures an engine.
type Config struct {
	// Kind is "born" (default) or "onnxruntime".
	Kind string
	// LibraryPath points at the ONNX Runtime shared library.
	LibraryPath string
	// Strict makes born fail on unsupported operators instead of skipping them.
	Strict bool
}

const (
	KindBorn        = "born"
	KindONNXRuntime = "onnxruntime"
)

// New returns the engine named by cfg.Kind.
func New(cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", KindBorn:
		return NewBorn(cfg.Strict), nil
	case KindONNXRuntime, "ort":
		return NewORT(cfg.LibraryPath), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Kind)
}
