package tensor

import (
	"errors"
	"fmt"
)

// Convertible is anything that can produce a tensor for a declared shape:
// a Tensor, a bare payload, or a domain value such as a decoded image.
type Convertible interface {
	ToTensor(parent Shape) (Tensor, error)
}

var (
	_ Convertible = Tensor{}
	_ Convertible = DynamicData{}
)

// Tensor is a named payload. Copying a Tensor shares its array.
type Tensor struct {
	Name string
	Data Data
}

var errEmptyTensor = errors.New("tensor has no data")

// Shape returns the self-described shape of the tensor.
func (t Tensor) Shape() Shape {
	if t.Data == nil {
		return Shape{Name: t.Name}
	}
	return Shape{Name: t.Name, Type: t.Data.ElementType(), Dims: t.Data.Dimensions()}
}

// ToTensor validates the payload against parent. The result is named after
// parent, whatever the tensor was called before.
func (t Tensor) ToTensor(parent Shape) (Tensor, error) {
	if t.Data == nil {
		return Tensor{}, fmt.Errorf("tensor %q: %w", t.Name, errEmptyTensor)
	}
	return t.Data.ToTensor(parent)
}

// AsClass returns the tensor payload as a class payload, reinterpreting an
// untyped rank-2 array.
func AsClass(t Tensor) (ClassData, error) {
	switch d := t.Data.(type) {
	case ClassData:
		return d, nil
	case DynamicData:
		return d.AsClass()
	case nil:
		return ClassData{}, fmt.Errorf("tensor %q: %w", t.Name, errEmptyTensor)
	default:
		return ClassData{}, fmt.Errorf("tensor %q: cannot read %s as class", t.Name, t.Shape())
	}
}

// AsString returns the tensor payload as a string payload, reinterpreting
// an untyped rank-2 or rank-3 array.
func AsString(t Tensor) (StringData, error) {
	switch d := t.Data.(type) {
	case StringData:
		return d, nil
	case DynamicData:
		return d.AsString()
	case nil:
		return StringData{}, fmt.Errorf("tensor %q: %w", t.Name, errEmptyTensor)
	default:
		return StringData{}, fmt.Errorf("tensor %q: cannot read %s as string", t.Name, t.Shape())
	}
}

// Reinterpret coerces an engine output to the declared variant of parent and
// checks containment. It is ToTensor under the name callers of the engine
// boundary look for.
func Reinterpret(t Tensor, parent Shape) (Tensor, error) { return t.ToTensor(parent) }
