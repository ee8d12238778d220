package tensor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedTensorRank is returned when an array cannot be
	// reinterpreted as the requested payload kind because of its rank.
	ErrUnsupportedTensorRank = errors.New("unsupported tensor rank")
	// ErrUnsupportedChannelCount is returned for image channel counts outside 1..4.
	ErrUnsupportedChannelCount = errors.New("unsupported image channel count")
	// ErrPartialScalingUnsupported is returned when only one of width/height is fixed.
	ErrPartialScalingUnsupported = errors.New("scaling an image along one axis is not supported")
	// ErrUnsupportedElementType is returned when a payload kind cannot hold an element type.
	ErrUnsupportedElementType = errors.New("unsupported element type")
	// ErrShapeOverflow is returned when a shape's element count does not fit in an int.
	ErrShapeOverflow = errors.New("shape element count overflows")
)

// ShapeMismatchError reports a tensor whose self-described shape does not
// satisfy the declared one.
type ShapeMismatchError struct {
	Expected Shape
	Actual   Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatched: expected %s, given %s", e.Expected, e.Actual)
}

// IsShapeMismatch reports whether err is (or wraps) a ShapeMismatchError.
func IsShapeMismatch(err error) bool {
	var e *ShapeMismatchError
	return errors.As(err, &e)
}

// IsConversionError reports whether err belongs to the conversion layer: a
// shape mismatch, an overflowing shape or one of the unsupported
// rank/channel/scaling/type errors.
// These indicate a contract mismatch between caller and model.
func IsConversionError(err error) bool {
	return IsShapeMismatch(err) ||
		errors.Is(err, ErrUnsupportedTensorRank) ||
		errors.Is(err, ErrUnsupportedChannelCount) ||
		errors.Is(err, ErrPartialScalingUnsupported) ||
		errors.Is(err, ErrUnsupportedElementType) ||
		errors.Is(err, ErrShapeOverflow)
}
