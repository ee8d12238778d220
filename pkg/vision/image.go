// Package vision converts decoded images into image tensors.
package vision

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"ipnis/pkg/tensor"
)

// Image is a decoded picture that can fill an image-shaped model input.
type Image struct {
	image.Image
}

var _ tensor.Convertible = Image{}

// New wraps img.
func New(img image.Image) Image { return Image{Image: img} }

// Decode reads a PNG, JPEG, BMP or WebP image.
func Decode(r io.Reader) (Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	return New(img), nil
}

// Open decodes the image file at path.
func Open(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, err
	}
	defer f.Close()
	return Decode(f)
}

// ToTensor renders the image into the declared layout. Concrete width and
// height resize with nearest-neighbor sampling; two wildcards keep the
// source size. The array is [1, C, W, H] with channel c of pixel (x, y) at
// (0, c, x, y). u8 slots get raw channel values, f32 slots get values
// divided by 255.
func (im Image) ToTensor(parent tensor.Shape) (tensor.Tensor, error) {
	b := im.Bounds()
	dims, ok := parent.Dims.(tensor.ImageDims)
	if !ok {
		return tensor.Tensor{}, &tensor.ShapeMismatchError{
			Expected: parent,
			Actual: tensor.Shape{Name: parent.Name, Type: parent.Type, Dims: tensor.ImageDims{
				Channels: tensor.Rgba8, Width: tensor.Dim(b.Dx()), Height: tensor.Dim(b.Dy()),
			}},
		}
	}

	src := im.Image
	switch {
	case dims.Width.Known() && dims.Height.Known():
		w, h := int(dims.Width), int(dims.Height)
		if b.Dx() != w || b.Dy() != h {
			dst := image.NewNRGBA(image.Rect(0, 0, w, h))
			draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
			src = dst
		}
	case dims.Width.Known() || dims.Height.Known():
		return tensor.Tensor{}, fmt.Errorf("tensor %q: %w: %s", parent.Name, tensor.ErrPartialScalingUnsupported, dims)
	}

	var (
		data tensor.Data
		err  error
	)
	switch parent.Type {
	case tensor.Uint8:
		data, err = tensor.NewImageU8(render(src, dims.Channels, func(v uint8) uint8 { return v }))
	case tensor.Float32:
		data, err = tensor.NewImageF32(render(src, dims.Channels, func(v uint8) float32 { return float32(v) / 255 }))
	default:
		err = fmt.Errorf("%w: image input cannot be %s", tensor.ErrUnsupportedElementType, parent.Type)
	}
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("tensor %q: %w", parent.Name, err)
	}
	return data.ToTensor(parent)
}

func render[T uint8 | float32](img image.Image, ch tensor.ImageChannel, scale func(uint8) T) *tensor.Array[T] {
	b := img.Bounds()
	w, h, c := b.Dx(), b.Dy(), ch.Count()
	out := make([]T, c*w*h)
	plane := w * h
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			px := pixel(img.At(b.Min.X+x, b.Min.Y+y), ch)
			for k := 0; k < c; k++ {
				out[k*plane+x*h+y] = scale(px[k])
			}
		}
	}
	return tensor.MustArray([]int{1, c, w, h}, out)
}

func pixel(c color.Color, ch tensor.ImageChannel) [4]uint8 {
	switch ch {
	case tensor.L8:
		return [4]uint8{color.GrayModel.Convert(c).(color.Gray).Y}
	case tensor.La8:
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		return [4]uint8{color.GrayModel.Convert(c).(color.Gray).Y, n.A}
	default:
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		return [4]uint8{n.R, n.G, n.B, n.A}
	}
}
