package tensor

import (
	"encoding/json"
	"fmt"
)

// Wire encoding. Variants are externally tagged objects with exactly one
// key set, e.g. {"image": {"channels": "rgb8", "width": 224, "height": null}}
// for dimensions and {"class": {"f32": {"shape": [1, 10], "data": [...]}}}
// for tensor payloads. Wildcard axes encode as null. u8 arrays encode their
// data as base64, as encoding/json does for every byte slice.

func (t ElementType) MarshalJSON() ([]byte, error) {
	switch t {
	case Int64, Uint8, Float32:
		return json.Marshal(t.String())
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedElementType, uint8(t))
}

func (t *ElementType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseElementType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (d Dim) MarshalJSON() ([]byte, error) {
	if !d.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(int(d))
}

func (d *Dim) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Any
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if n < 0 {
		n = int(Any)
	}
	*d = Dim(n)
	return nil
}

func (c ImageChannel) MarshalJSON() ([]byte, error) {
	if c < L8 || c > Rgba8 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannelCount, uint8(c))
	}
	return json.Marshal(c.String())
}

func (c *ImageChannel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := parseImageChannel(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type dimsJSON struct {
	Unknown *[]Dim      `json:"unknown,omitempty"`
	Class   *ClassDims  `json:"class,omitempty"`
	Image   *ImageDims  `json:"image,omitempty"`
	String  *StringDims `json:"string,omitempty"`
}

func encodeDims(d Dimensions) dimsJSON {
	switch v := d.(type) {
	case ClassDims:
		return dimsJSON{Class: &v}
	case ImageDims:
		return dimsJSON{Image: &v}
	case StringDims:
		return dimsJSON{String: &v}
	case UnknownDims:
		axes := []Dim(v)
		if axes == nil {
			axes = []Dim{}
		}
		return dimsJSON{Unknown: &axes}
	default:
		axes := []Dim{}
		return dimsJSON{Unknown: &axes}
	}
}

func (w dimsJSON) decode() (Dimensions, error) {
	var (
		out Dimensions
		n   int
	)
	if w.Unknown != nil {
		out, n = UnknownDims(*w.Unknown), n+1
	}
	if w.Class != nil {
		out, n = *w.Class, n+1
	}
	if w.Image != nil {
		out, n = *w.Image, n+1
	}
	if w.String != nil {
		out, n = *w.String, n+1
	}
	if n != 1 {
		return nil, fmt.Errorf("dimensions must set exactly one variant, got %d", n)
	}
	return out, nil
}

type shapeJSON struct {
	Name        string      `json:"name"`
	ElementType ElementType `json:"element_type"`
	Dimensions  dimsJSON    `json:"dimensions"`
}

func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal(shapeJSON{Name: s.Name, ElementType: s.Type, Dimensions: encodeDims(s.Dims)})
}

func (s *Shape) UnmarshalJSON(b []byte) error {
	var w shapeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	dims, err := w.Dimensions.decode()
	if err != nil {
		return fmt.Errorf("shape %q: %w", w.Name, err)
	}
	*s = Shape{Name: w.Name, Type: w.ElementType, Dims: dims}
	return nil
}

type arrayJSON[T Element] struct {
	Shape []int `json:"shape"`
	Data  []T   `json:"data"`
}

func (a *Array[T]) MarshalJSON() ([]byte, error) {
	data := a.data
	if data == nil {
		data = []T{}
	}
	return json.Marshal(arrayJSON[T]{Shape: a.shape, Data: data})
}

func (a *Array[T]) UnmarshalJSON(b []byte) error {
	var w arrayJSON[T]
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Data == nil {
		w.Data = []T{}
	}
	v, err := NewArray(w.Shape, w.Data)
	if err != nil {
		return err
	}
	*a = *v
	return nil
}

// typedJSON holds exactly one typed array.
type typedJSON struct {
	U8  *Array[uint8]   `json:"u8,omitempty"`
	I64 *Array[int64]   `json:"i64,omitempty"`
	F32 *Array[float32] `json:"f32,omitempty"`
}

func encodeTyped(a array) *typedJSON {
	switch v := a.(type) {
	case *Array[uint8]:
		return &typedJSON{U8: v}
	case *Array[int64]:
		return &typedJSON{I64: v}
	case *Array[float32]:
		return &typedJSON{F32: v}
	}
	return &typedJSON{}
}

func (w *typedJSON) decode() (array, error) {
	var (
		out array
		n   int
	)
	if w.U8 != nil {
		out, n = w.U8, n+1
	}
	if w.I64 != nil {
		out, n = w.I64, n+1
	}
	if w.F32 != nil {
		out, n = w.F32, n+1
	}
	if n != 1 {
		return nil, fmt.Errorf("payload must set exactly one element type, got %d", n)
	}
	return out, nil
}

type dataJSON struct {
	Dynamic *typedJSON `json:"dynamic,omitempty"`
	Class   *typedJSON `json:"class,omitempty"`
	Image   *typedJSON `json:"image,omitempty"`
	String  *typedJSON `json:"string,omitempty"`
}

type tensorJSON struct {
	Name string   `json:"name"`
	Data dataJSON `json:"data"`
}

func encodeData(d Data) (dataJSON, error) {
	switch v := d.(type) {
	case DynamicData:
		return dataJSON{Dynamic: encodeTyped(v.arr)}, nil
	case ClassData:
		return dataJSON{Class: encodeTyped(v.arr)}, nil
	case ImageData:
		return dataJSON{Image: encodeTyped(v.arr)}, nil
	case StringData:
		return dataJSON{String: encodeTyped(v.arr)}, nil
	}
	return dataJSON{}, errEmptyTensor
}

func (w dataJSON) decode() (Data, error) {
	set := 0
	for _, p := range []*typedJSON{w.Dynamic, w.Class, w.Image, w.String} {
		if p != nil {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("tensor data must set exactly one variant, got %d", set)
	}
	switch {
	case w.Dynamic != nil:
		a, err := w.Dynamic.decode()
		if err != nil {
			return nil, err
		}
		if a.ElementType() == Int64 {
			return nil, fmt.Errorf("%w: dynamic payload cannot hold i64", ErrUnsupportedElementType)
		}
		return DynamicData{arr: a}, nil
	case w.Class != nil:
		a, err := w.Class.decode()
		if err != nil {
			return nil, err
		}
		if a.ElementType() == Int64 {
			return nil, fmt.Errorf("%w: class payload cannot hold i64", ErrUnsupportedElementType)
		}
		return newClass(a)
	case w.Image != nil:
		a, err := w.Image.decode()
		if err != nil {
			return nil, err
		}
		if a.ElementType() == Int64 {
			return nil, fmt.Errorf("%w: image payload cannot hold i64", ErrUnsupportedElementType)
		}
		return newImage(a)
	default:
		a, err := w.String.decode()
		if err != nil {
			return nil, err
		}
		switch v := a.(type) {
		case *Array[int64]:
			return NewStringI64(v)
		case *Array[float32]:
			return NewStringF32(v)
		}
		return nil, fmt.Errorf("%w: string payload cannot hold u8", ErrUnsupportedElementType)
	}
}

func (t Tensor) MarshalJSON() ([]byte, error) {
	data, err := encodeData(t.Data)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", t.Name, err)
	}
	return json.Marshal(tensorJSON{Name: t.Name, Data: data})
}

func (t *Tensor) UnmarshalJSON(b []byte) error {
	var w tensorJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	data, err := w.Data.decode()
	if err != nil {
		return fmt.Errorf("tensor %q: %w", w.Name, err)
	}
	*t = Tensor{Name: w.Name, Data: data}
	return nil
}
