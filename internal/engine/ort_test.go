//go:build onnxruntime

package engine_test

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipnis/internal/engine"
	"ipnis/internal/engine/enginetest"
	"ipnis/pkg/tensor"
)

func newORT(t *testing.T) engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{Kind: engine.KindONNXRuntime, LibraryPath: os.Getenv("ONNXRUNTIME_LIB")})
	require.NoError(t, err)
	return eng
}

func compileORT(t *testing.T, eng engine.Engine, src engine.Source) engine.Session {
	t.Helper()
	sess, err := eng.Compile(context.Background(), src, engine.DefaultOptions())
	if engine.IsDependencyUnavailable(err) {
		t.Skipf("onnxruntime not available: %v", err)
	}
	require.NoError(t, err)
	return sess
}

func TestORT_ExternalWeightsResolvedNextToModel(t *testing.T) {
	dir := t.TempDir()
	weights := []float32{10, 20, 30}
	raw := make([]byte, 4*len(weights))
	for i, w := range weights {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(w))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weights.bin"), raw, 0o644))

	model := enginetest.Build(enginetest.Graph{
		Inputs:   []enginetest.Value{{Name: "x", Elem: enginetest.Float, Dims: []int64{1, 3}}},
		Outputs:  []enginetest.Value{{Name: "y", Elem: enginetest.Float, Dims: []int64{1, 3}}},
		Nodes:    []enginetest.Node{{Op: "Add", Inputs: []string{"x", "w"}, Outputs: []string{"y"}}},
		External: []enginetest.ExternalTensor{{Name: "w", Dims: []int64{1, 3}, Location: "weights.bin"}},
	})
	file := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(file, model, 0o644))

	sess := compileORT(t, newORT(t), engine.Source{File: file})
	defer sess.Close()

	in := tensor.Tensor{Name: "x", Data: tensor.NewDynamicF32(tensor.MustArray([]int{1, 3}, []float32{1, 2, 3}))}
	out, err := sess.Run(context.Background(), []tensor.Tensor{in})
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33}, out[0].Data())
}

func TestORT_CloseWaitsForRuns(t *testing.T) {
	model := enginetest.Identity(
		enginetest.Value{Name: "x", Elem: enginetest.Float, Dims: []int64{1, 4}},
		enginetest.Value{Name: "y", Elem: enginetest.Float, Dims: []int64{1, 4}},
	)
	sess := compileORT(t, newORT(t), engine.Source{Bytes: model})
	in := tensor.Tensor{Name: "x", Data: tensor.NewDynamicF32(tensor.MustArray([]int{1, 4}, []float32{1, 2, 3, 4}))}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < cap(errs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := sess.Run(context.Background(), []tensor.Tensor{in})
			if err == nil && len(out) != 1 {
				err = errors.New("missing output")
			}
			errs <- err
		}()
	}
	require.NoError(t, sess.Close())
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, engine.ErrSessionClosed)
		}
	}

	_, err := sess.Run(context.Background(), []tensor.Tensor{in})
	assert.ErrorIs(t, err, engine.ErrSessionClosed)
}
