package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/onnx"
	borntensor "github.com/born-ml/born/tensor"

	"ipnis/pkg/tensor"
)

// bornEngine interprets ONNX graphs in pure Go on the CPU backend. Graph
// optimization and thread options have no effect on it.
type bornEngine struct {
	strict bool
}

// NewBorn returns the pure-Go engine.
func NewBorn(strict bool) Engine { return &bornEngine{strict: strict} }

func (e *bornEngine) Name() string { return KindBorn }

func (e *bornEngine) Compile(ctx context.Context, src Source, _ Options) (Session, error) {
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
	model, err := onnx.LoadFromBytes(data, cpu.New(), onnx.LoadOptions{StrictMode: e.strict})
	if err != nil {
		return nil, fmt.Errorf("born: %w", err)
	}
	return &bornSession{model: model, inputs: inputs, outputs: outputs}, nil
}

type bornSession struct {
	// The interpreter keeps per-graph scratch state, so runs are serialized.
	mu      sync.Mutex
	model   onnx.Model
	inputs  []Signature
	outputs []Signature
}

func (s *bornSession) Inputs() []Signature  { return s.inputs }
func (s *bornSession) Outputs() []Signature { return s.outputs }
func (s *bornSession) Close() error         { return nil }

func (s *bornSession) Run(ctx context.Context, inputs []tensor.Tensor) ([]*tensor.Array[float32], error) {
	if len(inputs) != len(s.inputs) {
		return nil, fmt.Errorf("born: model takes %d inputs, got %d", len(s.inputs), len(inputs))
	}
	feed := make(map[string]*borntensor.RawTensor, len(inputs))
	for i, in := range inputs {
		raw, err := toRaw(in.Data)
		if err != nil {
			return nil, fmt.Errorf("born: input %q: %w", s.inputs[i].Name, err)
		}
		feed[s.inputs[i].Name] = raw
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	got, err := s.forward(feed)
	if err != nil {
		return nil, err
	}

	out := make([]*tensor.Array[float32], len(s.outputs))
	for i, sig := range s.outputs {
		raw, ok := got[sig.Name]
		if !ok {
			return nil, fmt.Errorf("born: model produced no output %q", sig.Name)
		}
		arr, err := fromRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("born: output %q: %w", sig.Name, err)
		}
		out[i] = arr
	}
	return out, nil
}

// forward turns kernel panics on bad broadcasts into errors and keeps the
// session usable afterwards.
func (s *bornSession) forward(feed map[string]*borntensor.RawTensor) (got map[string]*borntensor.RawTensor, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			got, err = nil, fmt.Errorf("born: panic during forward: %v", r)
		}
	}()
	got, err = s.model.ForwardNamed(feed)
	if err != nil {
		return nil, fmt.Errorf("born: %w", err)
	}
	return got, nil
}

func toRaw(d tensor.Data) (*borntensor.RawTensor, error) {
	shape := borntensor.Shape(d.ArrayShape())
	switch a := tensor.RawArray(d).(type) {
	case *tensor.Array[float32]:
		raw, err := borntensor.NewRaw(shape, borntensor.Float32, borntensor.CPU)
		if err != nil {
			return nil, err
		}
		copy(raw.AsFloat32(), a.Data())
		return raw, nil
	case *tensor.Array[int64]:
		raw, err := borntensor.NewRaw(shape, borntensor.Int64, borntensor.CPU)
		if err != nil {
			return nil, err
		}
		copy(raw.AsInt64(), a.Data())
		return raw, nil
	case *tensor.Array[uint8]:
		raw, err := borntensor.NewRaw(shape, borntensor.Uint8, borntensor.CPU)
		if err != nil {
			return nil, err
		}
		copy(raw.AsUint8(), a.Data())
		return raw, nil
	}
	return nil, tensor.ErrUnsupportedElementType
}

func fromRaw(raw *borntensor.RawTensor) (*tensor.Array[float32], error) {
	shape := []int(raw.Shape())
	var data []float32
	switch raw.DType() {
	case borntensor.Float32:
		data = append([]float32(nil), raw.AsFloat32()...)
	case borntensor.Float64:
		data = widen(raw.AsFloat64())
	case borntensor.Int32:
		data = widen(raw.AsInt32())
	case borntensor.Int64:
		data = widen(raw.AsInt64())
	case borntensor.Uint8:
		data = widen(raw.AsUint8())
	default:
		return nil, fmt.Errorf("%w: %v", tensor.ErrUnsupportedElementType, raw.DType())
	}
	if data == nil {
		data = []float32{}
	}
	return tensor.NewArray(shape, data)
}

func widen[T float64 | int32 | int64 | uint8](src []T) []float32 {
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out
}
