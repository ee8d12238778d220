package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShape_Classification(t *testing.T) {
	tests := []struct {
		name string
		raw  []Dim
		want Dimensions
	}{
		{"class vector", Dims(1, 1000), ClassDims{NumClasses: 1000}},
		{"class as 4d", Dims(1, 1000, 1, 1), ClassDims{NumClasses: 1000}},
		{"rgb image", Dims(1, 3, 224, 224), ImageDims{Channels: Rgb8, Width: 224, Height: 224}},
		{"image wildcard size", []Dim{1, 1, Any, Any}, ImageDims{Channels: L8, Width: Any, Height: Any}},
		{"batch wildcard", []Dim{Any, 3, 224, 224}, UnknownDims{Any, 3, 224, 224}},
		{"wildcard classes", []Dim{1, Any}, UnknownDims{1, Any}},
		{"rank 3", Dims(1, 128, 768), UnknownDims{1, 128, 768}},
		{"scalar", nil, UnknownDims(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewShape("x", Float32, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Dims)
		})
	}
}

func TestNewShape_UnsupportedChannelCount(t *testing.T) {
	_, err := NewShape("x", Float32, Dims(1, 7, 32, 32))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedChannelCount))
	assert.True(t, IsConversionError(err))
}

func TestContains_Reflexive(t *testing.T) {
	shapes := []Shape{
		{Name: "a", Type: Float32, Dims: ClassDims{NumClasses: 10}},
		{Name: "b", Type: Uint8, Dims: ImageDims{Channels: Rgba8, Width: 8, Height: 4}},
		{Name: "c", Type: Int64, Dims: StringDims{MaxLength: 16}},
		{Name: "d", Type: Float32, Dims: UnknownDims{2, 3, 4}},
	}
	for _, s := range shapes {
		assert.True(t, s.Contains(s), s.String())
	}
}

func TestContains_WildcardIsOneWay(t *testing.T) {
	pairs := []struct{ wild, concrete Dimensions }{
		{ImageDims{Channels: Rgb8, Width: Any, Height: Any}, ImageDims{Channels: Rgb8, Width: 224, Height: 224}},
		{StringDims{MaxLength: Any}, StringDims{MaxLength: 128}},
		{UnknownDims{Any, 3}, UnknownDims{5, 3}},
	}
	for _, p := range pairs {
		w := Shape{Name: "x", Type: Float32, Dims: p.wild}
		c := Shape{Name: "x", Type: Float32, Dims: p.concrete}
		assert.True(t, w.Contains(c), "%s should contain %s", w, c)
		assert.False(t, c.Contains(w), "%s should not contain %s", c, w)
	}
}

func TestContains_NameTypeAndVariantMustMatch(t *testing.T) {
	parent := Shape{Name: "x", Type: Float32, Dims: ClassDims{NumClasses: 10}}
	assert.False(t, parent.Contains(Shape{Name: "y", Type: Float32, Dims: ClassDims{NumClasses: 10}}))
	assert.False(t, parent.Contains(Shape{Name: "x", Type: Uint8, Dims: ClassDims{NumClasses: 10}}))
	assert.False(t, parent.Contains(Shape{Name: "x", Type: Float32, Dims: StringDims{MaxLength: 10}}))
	assert.False(t, parent.Contains(Shape{Name: "x", Type: Float32, Dims: ClassDims{NumClasses: 11}}))
}

func TestContains_UnknownParentComparesAxes(t *testing.T) {
	parent := Shape{Name: "x", Type: Float32, Dims: UnknownDims{Any, 3, 224, 224}}
	child := Shape{Name: "x", Type: Float32, Dims: ImageDims{Channels: Rgb8, Width: 224, Height: 224}}
	assert.True(t, parent.Contains(child))

	child.Dims = ImageDims{Channels: Rgb8, Width: 112, Height: 224}
	assert.False(t, parent.Contains(child))
}
