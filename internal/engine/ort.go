//go:build onnxruntime

package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"ipnis/pkg/tensor"
)

type ortEngine struct {
	libraryPath string

	initOnce sync.Once
	initErr  error
}

// NewORT returns the ONNX Runtime engine. The shared library is loaded on
// the first compile.
func NewORT(libraryPath string) Engine { return &ortEngine{libraryPath: libraryPath} }

func (e *ortEngine) Name() string { return KindONNXRuntime }

func (e *ortEngine) init() error {
	e.initOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if e.libraryPath != "" {
			ort.SetSharedLibraryPath(e.libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			e.initErr = ErrDependencyUnavailable("onnxruntime: " + err.Error())
		}
	})
	return e.initErr
}

func (e *ortEngine) Compile(ctx context.Context, src Source, opts Options) (Session, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	data, err := src.load()
	if err != nil {
		return nil, err
	}
	inputs, outputs, err := ReadSignatures(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnxruntime: session options: %w", err)
	}
	defer so.Destroy()
	if opts.Threads > 0 {
		if err := so.SetIntraOpNumThreads(opts.Threads); err != nil {
			return nil, fmt.Errorf("onnxruntime: threads: %w", err)
		}
	}
	if err := so.SetGraphOptimizationLevel(graphOptimization(opts.OptimizationLevel)); err != nil {
		return nil, fmt.Errorf("onnxruntime: optimization level: %w", err)
	}

	inNames := make([]string, len(inputs))
	for i, s := range inputs {
		inNames[i] = s.Name
	}
	outNames := make([]string, len(outputs))
	for i, s := range outputs {
		outNames[i] = s.Name
	}
	var sess *ort.DynamicAdvancedSession
	if src.Bytes == nil && src.File != "" {
		// Loading by path lets the runtime resolve external weight files
		// that sit next to the graph.
		sess, err = ort.NewDynamicAdvancedSession(src.File, inNames, outNames, so)
	} else {
		sess, err = ort.NewDynamicAdvancedSessionWithONNXData(data, inNames, outNames, so)
	}
	if err != nil {
		return nil, fmt.Errorf("onnxruntime: %w", err)
	}
	s := &ortSession{sess: sess, inputs: inputs, outputs: outputs}
	// Evicted sessions are dropped without Close while runs may still hold
	// them; the native handle is freed once the last reference is gone.
	runtime.SetFinalizer(s, (*ortSession).Close)
	return s, nil
}

func graphOptimization(l OptimizationLevel) ort.GraphOptimizationLevel {
	switch l {
	case OptDisable:
		return ort.GraphOptimizationLevelDisableAll
	case OptExtended:
		return ort.GraphOptimizationLevelEnableExtended
	case OptAll:
		return ort.GraphOptimizationLevelEnableAll
	default:
		return ort.GraphOptimizationLevelEnableBasic
	}
}

type ortSession struct {
	// Runs hold the read lock so Close cannot free the handle under them.
	mu      sync.RWMutex
	sess    *ort.DynamicAdvancedSession
	inputs  []Signature
	outputs []Signature
}

func (s *ortSession) Inputs() []Signature  { return s.inputs }
func (s *ortSession) Outputs() []Signature { return s.outputs }

func (s *ortSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	return err
}

func (s *ortSession) Run(ctx context.Context, inputs []tensor.Tensor) ([]*tensor.Array[float32], error) {
	if len(inputs) != len(s.inputs) {
		return nil, fmt.Errorf("onnxruntime: model takes %d inputs, got %d", len(s.inputs), len(inputs))
	}
	feed := make([]ort.Value, 0, len(inputs))
	defer func() {
		for _, v := range feed {
			v.Destroy()
		}
	}()
	for i, in := range inputs {
		v, err := toOrt(in.Data)
		if err != nil {
			return nil, fmt.Errorf("onnxruntime: input %q: %w", s.inputs[i].Name, err)
		}
		feed = append(feed, v)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	got := make([]ort.Value, len(s.outputs))
	defer func() {
		for _, v := range got {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	if err := s.run(feed, got); err != nil {
		return nil, err
	}

	out := make([]*tensor.Array[float32], len(got))
	for i, v := range got {
		arr, err := fromOrt(v)
		if err != nil {
			return nil, fmt.Errorf("onnxruntime: output %q: %w", s.outputs[i].Name, err)
		}
		out[i] = arr
	}
	return out, nil
}

// run calls the native session. DynamicAdvancedSession.Run is safe for
// concurrent use, so runs share the read lock.
func (s *ortSession) run(feed, got []ort.Value) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return ErrSessionClosed
	}
	if err := s.sess.Run(feed, got); err != nil {
		return fmt.Errorf("onnxruntime: %w", err)
	}
	return nil
}

func toOrt(d tensor.Data) (ort.Value, error) {
	shape := make([]int64, 0, len(d.ArrayShape()))
	for _, n := range d.ArrayShape() {
		shape = append(shape, int64(n))
	}
	switch a := tensor.RawArray(d).(type) {
	case *tensor.Array[float32]:
		return ort.NewTensor(ort.NewShape(shape...), a.Data())
	case *tensor.Array[int64]:
		return ort.NewTensor(ort.NewShape(shape...), a.Data())
	case *tensor.Array[uint8]:
		return ort.NewTensor(ort.NewShape(shape...), a.Data())
	}
	return nil, tensor.ErrUnsupportedElementType
}

func fromOrt(v ort.Value) (*tensor.Array[float32], error) {
	if v == nil {
		return nil, fmt.Errorf("runtime returned no value")
	}
	var (
		dims []int64
		data []float32
	)
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		dims, data = t.GetShape(), append([]float32(nil), t.GetData()...)
	case *ort.Tensor[float64]:
		dims, data = t.GetShape(), widen(t.GetData())
	case *ort.Tensor[int32]:
		dims, data = t.GetShape(), widen(t.GetData())
	case *ort.Tensor[int64]:
		dims, data = t.GetShape(), widen(t.GetData())
	case *ort.Tensor[uint8]:
		dims, data = t.GetShape(), widen(t.GetData())
	default:
		return nil, fmt.Errorf("%w: %T", tensor.ErrUnsupportedElementType, v)
	}
	shape := make([]int, len(dims))
	for i, n := range dims {
		shape[i] = int(n)
	}
	if data == nil {
		data = []float32{}
	}
	return tensor.NewArray(shape, data)
}
