package imgutil

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// ReadImage reads image from file.
func ReadImage(filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext {
	case ".png":
		return png.Decode(f)
	case ".jpg", ".jpeg":
		return jpeg.Decode(f)
	case ".tiff", ".tif":
		return tiff.Decode(f)
	default:
		return imaging.Decode(f)
	}
}

// ToTensor resizes img to width x height and converts it to a float tensor
// [3, height, width] with values in [0, 1].
func ToTensor(img image.Image, width, height int) (*ts.Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("Invalid size %vx%v", width, height)
	}

	resized := imaging.Resize(img, width, height, imaging.Linear)
	plane := width * height
	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := resized.PixOffset(x, y)
			p := y*width + x
			data[p] = float32(resized.Pix[i]) / 255
			data[plane+p] = float32(resized.Pix[i+1]) / 255
			data[2*plane+p] = float32(resized.Pix[i+2]) / 255
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{3, int64(height), int64(width)}, true), nil
}

// LoadBatch reads images and stacks them into a tensor [N, 3, height, width] on device.
func LoadBatch(files []string, width, height int, device gotch.Device) (*ts.Tensor, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("No image files")
	}

	var images []ts.Tensor
	drop := func() {
		for i := range images {
			images[i].MustDrop()
		}
	}
	for _, f := range files {
		img, err := ReadImage(f)
		if err != nil {
			drop()
			return nil, fmt.Errorf("Reading %v: %w", f, err)
		}
		x, err := ToTensor(img, width, height)
		if err != nil {
			drop()
			return nil, err
		}
		images = append(images, *x)
	}

	batch := ts.MustStack(images, 0)
	drop()

	return batch.MustTo(device, true), nil
}

// ReadMask reads a binary mask image resized to width x height. Pixels
// brighter than half intensity are labelled 1, others 0.
func ReadMask(filename string, width, height int) ([]int64, error) {
	img, err := ReadImage(filename)
	if err != nil {
		return nil, err
	}

	gray := imaging.Grayscale(imaging.Resize(img, width, height, imaging.NearestNeighbor))
	labels := make([]int64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if gray.Pix[gray.PixOffset(x, y)] > 127 {
				labels[y*width+x] = 1
			}
		}
	}

	return labels, nil
}

// Save writes img to file. Format is given by file extension.
func Save(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return imaging.Save(img, filename)
}
