package imgutil_test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chai2010/tiff"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attseg/imgutil"
)

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	return img
}

func TestReadImageFormats(t *testing.T) {
	dir := t.TempDir()
	img := checker(8, 6)

	pngFile := filepath.Join(dir, "a.png")
	if err := imgutil.Save(img, pngFile); err != nil {
		t.Fatal(err)
	}

	tifFile := filepath.Join(dir, "a.tif")
	f, err := os.Create(tifFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	for _, name := range []string{pngFile, tifFile} {
		got, err := imgutil.ReadImage(name)
		if err != nil {
			t.Fatalf("%v: %v", name, err)
		}
		if got.Bounds().Dx() != 8 || got.Bounds().Dy() != 6 {
			t.Errorf("%v: want 8x6, got %v", name, got.Bounds())
		}
	}

	if _, err := imgutil.ReadImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("want error for missing file")
	}
}

func TestToTensor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255   // R
		img.Pix[i+1] = 0   // G
		img.Pix[i+2] = 51  // B
		img.Pix[i+3] = 255 // A
	}

	x, err := imgutil.ToTensor(img, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer x.MustDrop()

	if got := x.MustSize(); !reflect.DeepEqual(got, []int64{3, 2, 4}) {
		t.Fatalf("want shape [3 2 4], got %v", got)
	}
	vals := x.Float64Values()
	for i, want := range []float64{1, 0, 0.2} {
		v := vals[i*8]
		if v < want-1e-3 || v > want+1e-3 {
			t.Errorf("channel %v: want %v, got %v", i, want, v)
		}
	}
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.png", "b.png"} {
		fname := filepath.Join(dir, name)
		if err := imgutil.Save(checker(10, 10), fname); err != nil {
			t.Fatal(err)
		}
		files = append(files, fname)
	}

	batch, err := imgutil.LoadBatch(files, 8, 8, gotch.CPU)
	if err != nil {
		t.Fatal(err)
	}
	defer batch.MustDrop()

	if got := batch.MustSize(); !reflect.DeepEqual(got, []int64{2, 3, 8, 8}) {
		t.Errorf("want shape [2 3 8 8], got %v", got)
	}
}

func TestReadMask(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "mask.png")
	if err := imgutil.Save(checker(4, 4), fname); err != nil {
		t.Fatal(err)
	}

	labels, err := imgutil.ReadMask(fname, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := int64(0)
			if (x+y)%2 == 0 {
				want = 1
			}
			if got := labels[y*4+x]; got != want {
				t.Errorf("(%v, %v): want %v, got %v", x, y, want, got)
			}
		}
	}
}

func TestMaskImage(t *testing.T) {
	img, err := imgutil.MaskImage([]int64{0, 1, 1, 0}, 2, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.NRGBAAt(1, 0); got != imgutil.DefaultPalette[1] {
		t.Errorf("want %v, got %v", imgutil.DefaultPalette[1], got)
	}
	if got := img.NRGBAAt(0, 0); got.A != 0 {
		t.Errorf("want transparent background, got %v", got)
	}

	if _, err := imgutil.MaskImage([]int64{0, 1}, 2, 2, nil); err == nil {
		t.Error("want error for wrong number of labels")
	}
	if _, err := imgutil.MaskImage([]int64{0, -1, 1, 0}, 2, 2, nil); err == nil {
		t.Error("want error for negative label")
	}
}

func TestHeatmapAndOverlay(t *testing.T) {
	attn := ts.MustOfSlice([]float32{0.1, 0.2, 0.3, 0.4}).MustView([]int64{1, 2, 2}, true)
	defer attn.MustDrop()

	gray, err := imgutil.AttentionGray(attn)
	if err != nil {
		t.Fatal(err)
	}
	if gray.Pix[0] != 0 || gray.Pix[3] != 255 {
		t.Errorf("want min-max scaled map, got %v", gray.Pix)
	}

	heat, err := imgutil.Heatmap(attn, 16, 12)
	if err != nil {
		t.Fatal(err)
	}
	if heat.Bounds().Dx() != 16 || heat.Bounds().Dy() != 12 {
		t.Errorf("want 16x12 heatmap, got %v", heat.Bounds())
	}

	out := imgutil.Overlay(checker(32, 24), heat, 0.5)
	if out.Bounds().Dx() != 32 || out.Bounds().Dy() != 24 {
		t.Errorf("want 32x24 overlay, got %v", out.Bounds())
	}

	bad := ts.MustZeros([]int64{2, 2, 2}, gotch.Float, gotch.CPU)
	defer bad.MustDrop()
	if _, err := imgutil.AttentionGray(bad); err == nil {
		t.Error("want error for multi-channel map")
	}

	empty := ts.MustZeros([]int64{1, 0, 4}, gotch.Float, gotch.CPU)
	defer empty.MustDrop()
	if _, err := imgutil.AttentionGray(empty); err == nil {
		t.Error("want error for empty map")
	}
}
