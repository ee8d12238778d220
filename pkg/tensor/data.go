package tensor

import "fmt"

// Data is a tensor payload: one of DynamicData, ClassData, ImageData or
// StringData. Element type and dimensions are always derived from the
// underlying array.
type Data interface {
	ElementType() ElementType
	Dimensions() Dimensions
	// ArrayShape returns the concrete axis sizes of the payload.
	ArrayShape() []int
	// ToTensor validates the payload against a declared shape and names it
	// after that shape.
	ToTensor(parent Shape) (Tensor, error)
	raw() array
}

var (
	_ Data = DynamicData{}
	_ Data = ClassData{}
	_ Data = ImageData{}
	_ Data = StringData{}
)

// DynamicData is an untyped n-d array of u8 or f32.
type DynamicData struct{ arr array }

// ClassData is a [batch, classes] array of u8 or f32.
type ClassData struct{ arr array }

// ImageData is a [batch, channels, width, height] array of u8 or f32.
type ImageData struct {
	arr      array
	channels ImageChannel
}

// StringData is a [batch, tokens] array of i64 token ids or f32, or a
// [batch, tokens, features] f32 embedding.
type StringData struct{ arr array }

func NewDynamicU8(a *Array[uint8]) DynamicData { return DynamicData{arr: a} }
func NewDynamicF32(a *Array[float32]) DynamicData { return DynamicData{arr: a} }

func NewClassU8(a *Array[uint8]) (ClassData, error) { return newClass(a) }
func NewClassF32(a *Array[float32]) (ClassData, error) { return newClass(a) }

func newClass(a array) (ClassData, error) {
	if a.Rank() != 2 {
		return ClassData{}, rankError("class", a, 2)
	}
	return ClassData{arr: a}, nil
}

func NewImageU8(a *Array[uint8]) (ImageData, error) { return newImage(a) }
func NewImageF32(a *Array[float32]) (ImageData, error) { return newImage(a) }

func newImage(a array) (ImageData, error) {
	if a.Rank() != 4 {
		return ImageData{}, rankError("image", a, 4)
	}
	ch, err := ImageChannelFromCount(a.Shape()[1])
	if err != nil {
		return ImageData{}, err
	}
	return ImageData{arr: a, channels: ch}, nil
}

// NewStringI64 wraps a [batch, tokens] array of token ids.
func NewStringI64(a *Array[int64]) (StringData, error) {
	if a.Rank() != 2 {
		return StringData{}, rankError("string", a, 2)
	}
	return StringData{arr: a}, nil
}

// NewStringF32 wraps a [batch, tokens] or [batch, tokens, features] array.
func NewStringF32(a *Array[float32]) (StringData, error) {
	if a.Rank() != 2 && a.Rank() != 3 {
		return StringData{}, rankError("string", a, 2, 3)
	}
	return StringData{arr: a}, nil
}

func rankError(kind string, a array, want ...int) error {
	return fmt.Errorf("%w: %s payload needs rank %v, got shape %v", ErrUnsupportedTensorRank, kind, want, a.Shape())
}

func (d DynamicData) ElementType() ElementType { return d.arr.ElementType() }
func (d DynamicData) ArrayShape() []int { return d.arr.Shape() }
func (d DynamicData) raw() array { return d.arr }

func (d DynamicData) Dimensions() Dimensions {
	return UnknownDims(Dims(d.arr.Shape()...))
}

// U8 returns the array when the payload holds u8 elements.
func (d DynamicData) U8() (*Array[uint8], bool) {
	a, ok := d.arr.(*Array[uint8])
	return a, ok
}

// F32 returns the array when the payload holds f32 elements.
func (d DynamicData) F32() (*Array[float32], bool) {
	a, ok := d.arr.(*Array[float32])
	return a, ok
}

// AsClass reinterprets a rank-2 [batch, N] array as a class payload.
func (d DynamicData) AsClass() (ClassData, error) { return newClass(d.arr) }

// AsString reinterprets a rank-2 or rank-3 f32 array as a string payload.
func (d DynamicData) AsString() (StringData, error) {
	a, ok := d.F32()
	if !ok {
		return StringData{}, fmt.Errorf("%w: string payload cannot hold %s", ErrUnsupportedElementType, d.ElementType())
	}
	return NewStringF32(a)
}

// AsImage reinterprets a rank-4 array as an image payload.
func (d DynamicData) AsImage() (ImageData, error) { return newImage(d.arr) }

// ToTensor reinterprets the array as the declared variant first, so an
// untyped engine output or caller input can satisfy a typed slot.
func (d DynamicData) ToTensor(parent Shape) (Tensor, error) {
	var (
		data Data = d
		err  error
	)
	switch parent.Dims.(type) {
	case ClassDims:
		data, err = d.AsClass()
	case StringDims:
		data, err = d.AsString()
	case ImageDims:
		data, err = d.AsImage()
	}
	if err != nil {
		return Tensor{}, fmt.Errorf("tensor %q: %w", parent.Name, err)
	}
	return wrap(data, parent)
}

func (d ClassData) ElementType() ElementType { return d.arr.ElementType() }
func (d ClassData) ArrayShape() []int { return d.arr.Shape() }
func (d ClassData) raw() array { return d.arr }

// Dimensions reports the class count; the batch axis is not part of the
// class contract.
func (d ClassData) Dimensions() Dimensions {
	return ClassDims{NumClasses: d.arr.Shape()[1]}
}

func (d ClassData) U8() (*Array[uint8], bool) {
	a, ok := d.arr.(*Array[uint8])
	return a, ok
}
func (d ClassData) F32() (*Array[float32], bool) {
	a, ok := d.arr.(*Array[float32])
	return a, ok
}

func (d ClassData) ToTensor(parent Shape) (Tensor, error) { return wrap(d, parent) }

func (d ImageData) ElementType() ElementType { return d.arr.ElementType() }
func (d ImageData) ArrayShape() []int { return d.arr.Shape() }
func (d ImageData) raw() array { return d.arr }

func (d ImageData) Dimensions() Dimensions {
	s := d.arr.Shape()
	return ImageDims{Channels: d.channels, Width: Dim(s[2]), Height: Dim(s[3])}
}

// Channels returns the pixel layout of the image.
func (d ImageData) Channels() ImageChannel { return d.channels }

func (d ImageData) U8() (*Array[uint8], bool) {
	a, ok := d.arr.(*Array[uint8])
	return a, ok
}
func (d ImageData) F32() (*Array[float32], bool) {
	a, ok := d.arr.(*Array[float32])
	return a, ok
}

func (d ImageData) ToTensor(parent Shape) (Tensor, error) { return wrap(d, parent) }

func (d StringData) ElementType() ElementType { return d.arr.ElementType() }
func (d StringData) ArrayShape() []int { return d.arr.Shape() }
func (d StringData) raw() array { return d.arr }

func (d StringData) Dimensions() Dimensions {
	return StringDims{MaxLength: Dim(d.arr.Shape()[1])}
}

// IsEmbedding reports whether the payload is a rank-3 embedding.
func (d StringData) IsEmbedding() bool { return d.arr.Rank() == 3 }

func (d StringData) I64() (*Array[int64], bool) {
	a, ok := d.arr.(*Array[int64])
	return a, ok
}
func (d StringData) F32() (*Array[float32], bool) {
	a, ok := d.arr.(*Array[float32])
	return a, ok
}

func (d StringData) ToTensor(parent Shape) (Tensor, error) { return wrap(d, parent) }

func wrap(d Data, parent Shape) (Tensor, error) {
	child := Shape{Name: parent.Name, Type: d.ElementType(), Dims: d.Dimensions()}
	if !parent.Contains(child) {
		return Tensor{}, &ShapeMismatchError{Expected: parent, Actual: child}
	}
	return Tensor{Name: parent.Name, Data: d}, nil
}

// RawF32 returns the payload array as float32, converting other element
// types without scaling.
func RawF32(d Data) *Array[float32] { return ToFloat32(d.raw()) }

// RawArray returns the payload array. The concrete type is one of
// *Array[uint8], *Array[int64] or *Array[float32].
func RawArray(d Data) any { return d.raw() }
