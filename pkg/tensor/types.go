// Package tensor models the shape contract of an ONNX model slot and the
// typed payloads that flow into and out of an inference call.
//
// A Shape is the declared contract (name, element type, Dimensions). A Data
// payload reports its own element type and Dimensions from the live array,
// and ToTensor checks that self-described shape against a declared one.
package tensor

import "fmt"

// ElementType is the scalar type of a tensor slot.
type ElementType uint8

const (
	Int64 ElementType = iota + 1
	Uint8
	Float32
)

func (t ElementType) String() string {
	switch t {
	case Int64:
		return "i64"
	case Uint8:
		return "u8"
	case Float32:
		return "f32"
	default:
		return fmt.Sprintf("ElementType(%d)", uint8(t))
	}
}

// ParseElementType is the inverse of ElementType.String.
func ParseElementType(s string) (ElementType, error) {
	switch s {
	case "i64":
		return Int64, nil
	case "u8":
		return Uint8, nil
	case "f32":
		return Float32, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedElementType, s)
}

// Dim is the size of one axis. Any marks a wildcard axis.
type Dim int

// Any is the wildcard axis size.
const Any Dim = -1

// Known reports whether d is a concrete size.
func (d Dim) Known() bool { return d >= 0 }

func (d Dim) String() string {
	if !d.Known() {
		return "?"
	}
	return fmt.Sprintf("%d", int(d))
}

// containsDim is the per-axis rule: equal when both are concrete, permissive
// when the parent is a wildcard, failing when only the child is a wildcard.
func containsDim(parent, child Dim) bool {
	if !parent.Known() {
		return true
	}
	return child.Known() && parent == child
}

// Dims converts concrete sizes into Dims.
func Dims(sizes ...int) []Dim {
	out := make([]Dim, len(sizes))
	for i, s := range sizes {
		out[i] = Dim(s)
	}
	return out
}

// ImageChannel is the pixel layout of an image tensor; its value is the
// channel count.
type ImageChannel uint8

const (
	L8    ImageChannel = 1
	La8   ImageChannel = 2
	Rgb8  ImageChannel = 3
	Rgba8 ImageChannel = 4
)

// ImageChannelFromCount maps a channel count to its pixel layout.
func ImageChannelFromCount(n int) (ImageChannel, error) {
	if n < 1 || n > 4 {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedChannelCount, n)
	}
	return ImageChannel(n), nil
}

// Count returns the number of channels.
func (c ImageChannel) Count() int { return int(c) }

func (c ImageChannel) String() string {
	switch c {
	case L8:
		return "l8"
	case La8:
		return "la8"
	case Rgb8:
		return "rgb8"
	case Rgba8:
		return "rgba8"
	default:
		return fmt.Sprintf("ImageChannel(%d)", uint8(c))
	}
}

func parseImageChannel(s string) (ImageChannel, error) {
	switch s {
	case "l8":
		return L8, nil
	case "la8":
		return La8, nil
	case "rgb8":
		return Rgb8, nil
	case "rgba8":
		return Rgba8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedChannelCount, s)
}
