package manager

import (
	"context"
	"fmt"
	"time"

	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
)

type runResult struct {
	out []*tensor.Array[float32]
	err error
}

// Call runs model on the named inputs. Each declared input is looked up by
// name and converted to its declared shape before anything else happens;
// outputs are matched to the declared output shapes by position.
//
// If ctx ends while the engine is running, Call returns ctx.Err() and the
// run completes in the background.
func (m *Manager) Call(ctx context.Context, model types.Model, inputs map[string]tensor.Convertible) ([]tensor.Tensor, error) {
	if m.closed() {
		return nil, ErrClosed
	}
	m.calls.Add(1)
	start := time.Now()
	m.publish("call_start", model.Path, nil)

	out, err := m.call(ctx, model, inputs)
	result := "ok"
	switch {
	case err == nil:
		m.publish("call_ok", model.Path, map[string]any{"outputs": len(out)})
	case IsTooBusy(err):
		result = "too_busy"
	default:
		result = "error"
	}
	invokeTotal.WithLabelValues(result).Inc()
	invokeDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	if err != nil {
		m.recordError(err)
		m.publish("call_error", model.Path, map[string]any{"error": err.Error()})
		m.log.Debug().Err(err).Str("path", model.Path.String()).Msg("call failed")
		return nil, err
	}
	return out, nil
}

func (m *Manager) call(ctx context.Context, model types.Model, inputs map[string]tensor.Convertible) ([]tensor.Tensor, error) {
	ordered := make([]tensor.Tensor, len(model.Inputs))
	for i, shape := range model.Inputs {
		src, ok := inputs[shape.Name]
		if !ok || src == nil {
			return nil, &MissingInputError{Name: shape.Name}
		}
		t, err := src.ToTensor(shape)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", shape.Name, err)
		}
		ordered[i] = t
	}

	sess, err := m.sessions.Acquire(ctx, model.Path)
	if err != nil {
		return nil, err
	}
	release, err := m.admit(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan runResult, 1)
	go func() {
		defer release()
		// A kernel panic here would bypass the HTTP recoverer and take the
		// process down.
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: fmt.Errorf("engine: panic during run: %v", r)}
			}
		}()
		out, err := sess.Run(context.WithoutCancel(ctx), ordered)
		done <- runResult{out: out, err: err}
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}
	if len(res.out) != len(model.Outputs) {
		return nil, &OutputCountError{Want: len(model.Outputs), Got: len(res.out)}
	}

	outputs := make([]tensor.Tensor, len(res.out))
	for i, arr := range res.out {
		outputs[i] = tensor.Tensor{Name: model.Outputs[i].Name, Data: tensor.NewDynamicF32(arr)}
	}
	return outputs, nil
}

// CallTensors is Call for wire requests, where inputs arrive as a list.
func (m *Manager) CallTensors(ctx context.Context, model types.Model, inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	named := make(map[string]tensor.Convertible, len(inputs))
	for _, t := range inputs {
		if _, dup := named[t.Name]; dup {
			return nil, duplicateInputError{name: t.Name}
		}
		named[t.Name] = t
	}
	return m.Call(ctx, model, named)
}

// ClassifyImage calls a single-output model and reads the output as class
// scores.
func (m *Manager) ClassifyImage(ctx context.Context, model types.Model, inputs map[string]tensor.Convertible) (tensor.ClassData, error) {
	if len(model.Outputs) != 1 {
		return tensor.ClassData{}, invalidModelError{
			msg: fmt.Sprintf("classifier must have exactly one output, model has %d", len(model.Outputs)),
		}
	}
	out, err := m.Call(ctx, model, inputs)
	if err != nil {
		return tensor.ClassData{}, err
	}
	return tensor.AsClass(out[0])
}
