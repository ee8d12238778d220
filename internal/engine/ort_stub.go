//go:build !onnxruntime

package engine

import "context"

// ortEngine is a stub compiled when the 'onnxruntime' build tag is NOT set,
// keeping default builds CGO-free. Compile always fails.
type ortEngine struct {
	libraryPath string
}

// NewORT returns the ONNX Runtime engine.
func NewORT(libraryPath string) Engine { return &ortEngine{libraryPath: libraryPath} }

func (e *ortEngine) Name() string { return KindONNXRuntime }

func (e *ortEngine) Compile(ctx context.Context, _ Source, _ Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrDependencyUnavailable("onnxruntime support not built (missing 'onnxruntime' build tag)")
}
