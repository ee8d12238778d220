package cache

import (
	"errors"

	"ipnis/pkg/types"
)

// FetchError reports that the model bytes could not be obtained from the
// store. It is not cached; the next Acquire retries.
type FetchError struct {
	Path types.Path
	Err  error
}

func (e *FetchError) Error() string { return "fetch model " + e.Path.String() + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// CompileError reports that the engine rejected the model. It is not cached.
type CompileError struct {
	Path types.Path
	Err  error
}

func (e *CompileError) Error() string { return "compile model " + e.Path.String() + ": " + e.Err.Error() }
func (e *CompileError) Unwrap() error { return e.Err }

// IsFetchFailed reports whether err came from the storage collaborator.
func IsFetchFailed(err error) bool {
	var e *FetchError
	return errors.As(err, &e)
}

// IsCompileFailed reports whether err came from the engine compiler.
func IsCompileFailed(err error) bool {
	var e *CompileError
	return errors.As(err, &e)
}
