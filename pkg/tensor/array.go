package tensor

import (
	"fmt"
	"math"
	"slices"
)

// Element is the set of Go types an Array can hold.
type Element interface {
	uint8 | int64 | float32
}

// Array is an immutable, row-major n-d array. Arrays are shared by pointer:
// cloning a Tensor or reinterpreting a payload never copies the storage, so
// the slice returned by Data must be treated as read-only.
type Array[T Element] struct {
	shape []int
	data  []T
}

// NewArray wraps data with the given shape. len(data) must equal the
// product of shape. The array takes ownership of data.
func NewArray[T Element](shape []int, data []T) (*Array[T], error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative axis in shape %v", shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return nil, fmt.Errorf("%w: %v", ErrShapeOverflow, shape)
		}
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Array[T]{shape: slices.Clone(shape), data: data}, nil
}

// MustArray is NewArray that panics on a length mismatch. It is meant for
// literals in tests and examples.
func MustArray[T Element](shape []int, data []T) *Array[T] {
	a, err := NewArray(shape, data)
	if err != nil {
		panic(err)
	}
	return a
}

// Shape returns a copy of the axis sizes.
func (a *Array[T]) Shape() []int { return slices.Clone(a.shape) }

// Rank returns the number of axes.
func (a *Array[T]) Rank() int { return len(a.shape) }

// Len returns the number of elements.
func (a *Array[T]) Len() int { return len(a.data) }

// Data returns the backing storage in row-major order.
func (a *Array[T]) Data() []T { return a.data }

// At returns the element at the given multi-index.
func (a *Array[T]) At(idx ...int) T {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("tensor: index rank %d for array of rank %d", len(idx), len(a.shape)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, a.shape))
		}
		off = off*a.shape[i] + x
	}
	return a.data[off]
}

// Reshape returns a view with a new shape over the same storage.
func (a *Array[T]) Reshape(shape ...int) (*Array[T], error) {
	return NewArray(shape, a.data)
}

// ElementType reports the element type of T.
func (a *Array[T]) ElementType() ElementType { return elementTypeOf[T]() }

func elementTypeOf[T Element]() ElementType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case int64:
		return Int64
	default:
		return Float32
	}
}

// array is the type-erased view every *Array[T] satisfies.
type array interface {
	Shape() []int
	Rank() int
	Len() int
	ElementType() ElementType
}

var (
	_ array = (*Array[uint8])(nil)
	_ array = (*Array[int64])(nil)
	_ array = (*Array[float32])(nil)
)

// ToFloat32 converts any supported array to float32 without scaling.
// A float32 array is returned as is.
func ToFloat32(a array) *Array[float32] {
	switch v := a.(type) {
	case *Array[float32]:
		return v
	case *Array[uint8]:
		return convertArray[uint8, float32](v)
	case *Array[int64]:
		return convertArray[int64, float32](v)
	}
	return nil
}

func convertArray[S, D Element](src *Array[S]) *Array[D] {
	out := make([]D, len(src.data))
	for i, v := range src.data {
		out[i] = D(v)
	}
	return &Array[D]{shape: slices.Clone(src.shape), data: out}
}
