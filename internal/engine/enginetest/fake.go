package enginetest

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"ipnis/internal/engine"
	"ipnis/pkg/tensor"
)

// ErrBadModel is returned by Engine for sources that are not ONNX.
var ErrBadModel = errors.New("enginetest: bad model")

// Engine is a fake engine. It reads signatures from the source and returns
// Sessions whose outputs are zero-filled arrays of the declared shape.
type Engine struct {
	// Gate, when non-nil, blocks every Compile until it is closed.
	Gate chan struct{}
	// Run overrides the run function of every compiled session.
	Run func(ctx context.Context, inputs []tensor.Tensor) ([]*tensor.Array[float32], error)

	compiles atomic.Int64
	mu       sync.Mutex
	sessions []*Session
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Name() string { return "fake" }

// Compiles returns how many times Compile ran to completion or failure.
func (e *Engine) Compiles() int { return int(e.compiles.Load()) }

// Sessions returns every session compiled so far.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

func (e *Engine) Compile(ctx context.Context, src engine.Source, _ engine.Options) (engine.Session, error) {
	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer e.compiles.Add(1)
	data := src.Bytes
	if data == nil {
		b, err := os.ReadFile(src.File)
		if err != nil {
			return nil, err
		}
		data = b
	}
	in, out, err := engine.ReadSignatures(data)
	if err != nil || len(out) == 0 {
		return nil, ErrBadModel
	}
	s := &Session{In: in, Out: out, RunFunc: e.Run}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

// Session is a fake compiled model.
type Session struct {
	In, Out []engine.Signature
	RunFunc func(ctx context.Context, inputs []tensor.Tensor) ([]*tensor.Array[float32], error)

	runs   atomic.Int64
	closed atomic.Bool
}

var _ engine.Session = (*Session)(nil)

func (s *Session) Inputs() []engine.Signature  { return s.In }
func (s *Session) Outputs() []engine.Signature { return s.Out }

// Runs returns how many times Run was called.
func (s *Session) Runs() int { return int(s.runs.Load()) }

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Session) Run(ctx context.Context, inputs []tensor.Tensor) ([]*tensor.Array[float32], error) {
	s.runs.Add(1)
	if s.RunFunc != nil {
		return s.RunFunc(ctx, inputs)
	}
	out := make([]*tensor.Array[float32], len(s.Out))
	for i, sig := range s.Out {
		shape := make([]int, len(sig.Dims))
		n := 1
		for j, d := range sig.Dims {
			shape[j] = 1
			if d.Known() {
				shape[j] = int(d)
			}
			n *= shape[j]
		}
		out[i] = tensor.MustArray(shape, make([]float32, n))
	}
	return out, nil
}
