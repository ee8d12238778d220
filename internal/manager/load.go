package manager

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ipnis/internal/engine"
	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
)

// warmConcurrency bounds parallel compiles during Warm.
const warmConcurrency = 2

// LoadModel compiles (or reuses) the session for p and describes it.
// Output shapes are declared as f32, the type every engine reads back.
func (m *Manager) LoadModel(ctx context.Context, p types.Path) (types.Model, error) {
	if m.closed() {
		return types.Model{}, ErrClosed
	}
	if err := p.Validate(); err != nil {
		return types.Model{}, invalidModelError{msg: err.Error()}
	}
	m.loads.Add(1)
	start := time.Now()
	m.publish("model_load_start", p, nil)

	model, err := m.loadModel(ctx, p)
	if err != nil {
		m.recordError(err)
		m.publish("model_load_error", p, map[string]any{"error": err.Error()})
		m.log.Warn().Err(err).Str("path", p.String()).Msg("load model failed")
		return types.Model{}, err
	}
	m.markReady()
	m.publish("model_load_ok", p, map[string]any{
		"inputs":  len(model.Inputs),
		"outputs": len(model.Outputs),
		"took_ms": time.Since(start).Milliseconds(),
	})
	return model, nil
}

func (m *Manager) loadModel(ctx context.Context, p types.Path) (types.Model, error) {
	sess, err := m.sessions.Acquire(ctx, p)
	if err != nil {
		return types.Model{}, err
	}
	model := types.Model{Path: p}
	for _, sig := range sess.Inputs() {
		if sig.Type == 0 {
			return types.Model{}, invalidModelError{
				msg: fmt.Sprintf("input %q: %v", sig.Name, tensor.ErrUnsupportedElementType),
			}
		}
		s, err := shapeOf(sig, sig.Type)
		if err != nil {
			return types.Model{}, err
		}
		model.Inputs = append(model.Inputs, s)
	}
	for _, sig := range sess.Outputs() {
		s, err := shapeOf(sig, tensor.Float32)
		if err != nil {
			return types.Model{}, err
		}
		model.Outputs = append(model.Outputs, s)
	}
	return model, nil
}

func shapeOf(sig engine.Signature, t tensor.ElementType) (tensor.Shape, error) {
	s, err := tensor.NewShape(sig.Name, t, sig.Dims)
	if err != nil {
		return tensor.Shape{}, fmt.Errorf("%q: %w", sig.Name, err)
	}
	return s, nil
}

// Warm loads every path, a few at a time. The manager reports an error
// state until a later load succeeds if any of them fails.
func (m *Manager) Warm(ctx context.Context, paths []types.Path) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, p := range paths {
		g.Go(func() error {
			_, err := m.LoadModel(ctx, p)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		m.setState(StateError)
		return err
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state != StateClosed {
		m.state = s
	}
	m.mu.Unlock()
}

func (m *Manager) markReady() {
	m.mu.Lock()
	if m.state == StateError {
		m.state = StateReady
	}
	m.mu.Unlock()
}
