package tensor

import "fmt"

// Shape is the declared contract of one tensor slot. Shapes are values and
// are not mutated after construction.
type Shape struct {
	Name string
	Type ElementType
	Dims Dimensions
}

// NewShape classifies raw into the most specific Dimensions variant.
// It fails with ErrUnsupportedChannelCount when raw looks like an image
// whose channel count is outside 1..4.
func NewShape(name string, t ElementType, raw []Dim) (Shape, error) {
	dims, err := classify(raw)
	if err != nil {
		return Shape{}, fmt.Errorf("shape %q: %w", name, err)
	}
	return Shape{Name: name, Type: t, Dims: dims}, nil
}

// Axes returns the raw axis vector of the shape.
func (s Shape) Axes() []Dim { return s.dimensions().Axes() }

// Contains reports whether the declared shape s accepts child: names and
// element types match and the dimensions agree, with wildcards on the
// declared side accepting any concrete child size.
func (s Shape) Contains(child Shape) bool {
	if s.Name != child.Name || s.Type != child.Type {
		return false
	}
	return s.dimensions().contains(child.dimensions())
}

func (s Shape) dimensions() Dimensions {
	if s.Dims == nil {
		return UnknownDims{}
	}
	return s.Dims
}

func (s Shape) String() string {
	return fmt.Sprintf("%s: %s %s", s.Name, s.Type, s.dimensions())
}
