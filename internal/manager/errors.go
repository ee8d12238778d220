package manager

import (
	"errors"
	"fmt"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// MissingInputError reports a declared input absent from the call.
type MissingInputError struct{ Name string }

func (e *MissingInputError) Error() string { return fmt.Sprintf("missing input %q", e.Name) }

// IsMissingInput reports whether err names an absent input.
func IsMissingInput(err error) bool {
	var e *MissingInputError
	return errors.As(err, &e)
}

// OutputCountError reports an engine that produced a different number of
// outputs than the model declares.
type OutputCountError struct{ Want, Got int }

func (e *OutputCountError) Error() string {
	return fmt.Sprintf("model declares %d outputs, engine returned %d", e.Want, e.Got)
}

// duplicateInputError reports two wire tensors with the same name.
type duplicateInputError struct{ name string }

func (e duplicateInputError) Error() string { return fmt.Sprintf("duplicate input %q", e.name) }

// IsBadRequest reports whether err is a caller mistake in the request
// itself rather than in its tensors.
func IsBadRequest(err error) bool {
	var d duplicateInputError
	var v invalidModelError
	return IsMissingInput(err) || errors.As(err, &d) || errors.As(err, &v)
}

// invalidModelError reports a model whose inputs the layer cannot feed.
type invalidModelError struct{ msg string }

func (e invalidModelError) Error() string { return e.msg }

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("manager closed")
