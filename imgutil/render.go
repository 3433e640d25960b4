package imgutil

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

// DefaultPalette colors class labels; background is transparent.
var DefaultPalette = []color.NRGBA{
	{R: 0, G: 0, B: 0, A: 0},
	{R: 230, G: 25, B: 75, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 255, G: 225, B: 25, A: 255},
	{R: 0, G: 130, B: 200, A: 255},
	{R: 245, G: 130, B: 48, A: 255},
}

// MaskImage paints a label map (row-major, width x height) with palette.
func MaskImage(labels []int64, width, height int, palette []color.NRGBA) (*image.NRGBA, error) {
	if len(labels) != width*height {
		return nil, fmt.Errorf("Expected %v labels for %vx%v mask. Got %v", width*height, width, height, len(labels))
	}
	if len(palette) == 0 {
		palette = DefaultPalette
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, l := range labels {
		if l < 0 {
			return nil, fmt.Errorf("Invalid negative label %v at index %v", l, i)
		}
		img.SetNRGBA(i%width, i/width, palette[int(l)%len(palette)])
	}

	return img, nil
}

// AttentionGray converts an attention map [1, h, w] (or [h, w]) to a gray
// image, min-max scaled to [0, 255].
func AttentionGray(attn *ts.Tensor) (*image.Gray, error) {
	size := attn.MustSize()
	if len(size) == 3 && size[0] == 1 {
		size = size[1:]
	}
	if len(size) != 2 {
		return nil, fmt.Errorf("Expected attention map of shape [1 h w]. Got %v", attn.MustSize())
	}
	h, w := int(size[0]), int(size[1])

	if attn.Numel() == 0 {
		return nil, fmt.Errorf("Empty attention map of shape %v", attn.MustSize())
	}
	vals := attn.Float64Values()
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range vals {
		img.Pix[i] = uint8(math.Round((v - lo) * scale))
	}

	return img, nil
}

// Heatmap renders an attention map [1, h, w] as a colored image upscaled
// to width x height.
func Heatmap(attn *ts.Tensor, width, height int) (*image.NRGBA, error) {
	gray, err := AttentionGray(attn)
	if err != nil {
		return nil, err
	}

	up := resize.Resize(uint(width), uint(height), gray, resize.Bilinear)
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	b := up.Bounds()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := color.GrayModel.Convert(up.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			out.SetNRGBA(x, y, jet(v))
		}
	}

	return out, nil
}

// jet maps intensity to blue-cyan-yellow-red.
func jet(v uint8) color.NRGBA {
	f := float64(v) / 255
	clamp := func(x float64) uint8 {
		if x < 0 {
			return 0
		}
		if x > 1 {
			return 255
		}
		return uint8(x * 255)
	}
	return color.NRGBA{
		R: clamp(1.5 - math.Abs(4*f-3)),
		G: clamp(1.5 - math.Abs(4*f-2)),
		B: clamp(1.5 - math.Abs(4*f-1)),
		A: 255,
	}
}

// Overlay blends layer over background with given opacity. Layer is scaled
// to background size.
func Overlay(background, layer image.Image, opacity float64) *image.NRGBA {
	bounds := background.Bounds()
	scaled := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), layer, layer.Bounds(), draw.Src, nil)

	return imaging.Overlay(background, scaled, bounds.Min, opacity)
}
