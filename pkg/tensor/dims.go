package tensor

import (
	"fmt"
	"strings"
)

// Dimensions is the semantic dimensionality of a tensor slot. It is one of
// UnknownDims, ClassDims, ImageDims or StringDims.
type Dimensions interface {
	// Axes expands the variant into its raw axis vector.
	Axes() []Dim
	String() string
	contains(child Dimensions) bool
}

// UnknownDims is an arbitrary-rank shape; each axis may be a wildcard.
type UnknownDims []Dim

// ClassDims is a 1xN class vector.
type ClassDims struct {
	NumClasses int `json:"num_classes"`
}

// ImageDims is a 1xCxWxH image.
type ImageDims struct {
	Channels ImageChannel `json:"channels"`
	Width    Dim          `json:"width"`
	Height   Dim          `json:"height"`
}

// StringDims is a 1xL token sequence.
type StringDims struct {
	MaxLength Dim `json:"max_length"`
}

var (
	_ Dimensions = UnknownDims(nil)
	_ Dimensions = ClassDims{}
	_ Dimensions = ImageDims{}
	_ Dimensions = StringDims{}
)

func (d UnknownDims) Axes() []Dim { return append([]Dim(nil), d...) }

func (d UnknownDims) String() string { return "unknown" + axesString(d) }

// An unknown parent is compared against the child's raw axis vector, so a
// declared [?, 3, 224, 224] accepts an Image payload of 1x3x224x224.
func (d UnknownDims) contains(child Dimensions) bool {
	axes := child.Axes()
	if len(axes) != len(d) {
		return false
	}
	for i := range d {
		if !containsDim(d[i], axes[i]) {
			return false
		}
	}
	return true
}

func (d ClassDims) Axes() []Dim { return []Dim{1, Dim(d.NumClasses)} }

func (d ClassDims) String() string { return fmt.Sprintf("class{%d}", d.NumClasses) }

func (d ClassDims) contains(child Dimensions) bool {
	c, ok := child.(ClassDims)
	return ok && c.NumClasses == d.NumClasses
}

func (d ImageDims) Axes() []Dim {
	return []Dim{1, Dim(d.Channels.Count()), d.Width, d.Height}
}

func (d ImageDims) String() string {
	return fmt.Sprintf("image{%s, %s, %s}", d.Channels, d.Width, d.Height)
}

func (d ImageDims) contains(child Dimensions) bool {
	c, ok := child.(ImageDims)
	return ok &&
		c.Channels == d.Channels &&
		containsDim(d.Width, c.Width) &&
		containsDim(d.Height, c.Height)
}

func (d StringDims) Axes() []Dim { return []Dim{1, d.MaxLength} }

func (d StringDims) String() string { return fmt.Sprintf("string{%s}", d.MaxLength) }

func (d StringDims) contains(child Dimensions) bool {
	c, ok := child.(StringDims)
	return ok && containsDim(d.MaxLength, c.MaxLength)
}

func axesString(axes []Dim) string {
	parts := make([]string, len(axes))
	for i, a := range axes {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// classify picks the most specific Dimensions for a raw axis vector:
// [1, N] and [1, N, 1, 1] are classes, [1, C, W?, H?] is an image,
// anything else stays unknown.
func classify(raw []Dim) (Dimensions, error) {
	switch len(raw) {
	case 2:
		if raw[0] == 1 && raw[1].Known() {
			return ClassDims{NumClasses: int(raw[1])}, nil
		}
	case 4:
		if raw[0] != 1 || !raw[1].Known() {
			break
		}
		if raw[2] == 1 && raw[3] == 1 {
			return ClassDims{NumClasses: int(raw[1])}, nil
		}
		ch, err := ImageChannelFromCount(int(raw[1]))
		if err != nil {
			return nil, err
		}
		return ImageDims{Channels: ch, Width: raw[2], Height: raw[3]}, nil
	}
	return UnknownDims(append([]Dim(nil), raw...)), nil
}
