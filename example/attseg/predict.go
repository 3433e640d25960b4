package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attseg/attseg"
	"github.com/sugarme/attseg/encoder"
	"github.com/sugarme/attseg/imgutil"
	"github.com/sugarme/attseg/metric"
	"github.com/sugarme/attseg/viz"
)

// loadModel builds AttSegmentator with a frozen pretrained backbone.
func loadModel() *attseg.AttSegmentator {
	bvs := nn.NewVarStore(Device)
	backbone, err := encoder.NewResNetEncoder(bvs.Root(), Depth)
	if err != nil {
		log.Fatal(err)
	}
	missing, err := bvs.LoadPartial(BackbonePath)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Backbone weights loaded. Num of missings: %v\n", len(missing))
	bvs.Freeze()

	cfg := attseg.DefaultConfig()
	cfg.ImgSize = []int64{int64(ImgSize), int64(ImgSize)}
	cfg.ClassDim = int64(ClassDim)
	cfg.NumClasses = int64(NumClasses)
	cfg.AttType = AttType

	vs := nn.NewVarStore(Device)
	net, err := attseg.New(vs.Root(), backbone, cfg)
	if err != nil {
		log.Fatal(err)
	}

	if ModelPath != "" {
		if err := vs.Load(ModelPath); err != nil {
			log.Fatal(err)
		}
		fmt.Println("Segmentator weights loaded.")
	}

	return net
}

func runPredict() {
	samples, err := readManifest(ManifestPath)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Num of samples: %v\n", len(samples))
	if err := os.MkdirAll(OutDir, 0755); err != nil {
		log.Fatal(err)
	}

	net := loadModel()

	var (
		rows    [][]string
		allMaps []*ts.Tensor
	)
	for start := 0; start < len(samples); start += BatchSize {
		end := start + BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		batchRows, maps, err := predictBatch(net, samples[start:end])
		if err != nil {
			log.Fatal(err)
		}
		rows = append(rows, batchRows...)
		allMaps = append(allMaps, maps...)
		fmt.Printf("Processed %v/%v\n", end, len(samples))
	}

	header := []string{"image", "class", "foreground", "iou", "dice"}
	if err := writeReport(filepath.Join(OutDir, "report.csv"), header, rows); err != nil {
		log.Fatal(err)
	}

	hist, err := viz.HistogramPlot(allMaps, 32, "Attention weights")
	if err != nil {
		log.Fatal(err)
	}
	if err := viz.Save(hist, filepath.Join(OutDir, "attention-histo.png")); err != nil {
		log.Fatal(err)
	}
	release(allMaps)
}

// release drops tensors. Tests replace it to observe cleanup.
var release = func(xs []*ts.Tensor) {
	for _, x := range xs {
		x.MustDrop()
	}
}

// predictBatch runs a batch of samples, writes visual outputs and returns
// report rows and attention maps.
func predictBatch(net *attseg.AttSegmentator, samples []Sample) ([][]string, []*ts.Tensor, error) {
	var files []string
	var classes []int64
	for _, s := range samples {
		files = append(files, s.Image)
		classes = append(classes, s.Class)
	}

	x, err := imgutil.LoadBatch(files, ImgSize, ImgSize, Device)
	if err != nil {
		return nil, nil, err
	}
	defer x.MustDrop()

	v, err := attseg.OneHot(classes, int64(ClassDim), Device)
	if err != nil {
		return nil, nil, err
	}
	defer v.MustDrop()

	var (
		logits *ts.Tensor
		maps   []*ts.Tensor
	)
	ts.NoGrad(func() {
		logits, maps, err = net.ForwardWithAttention(x, v, false)
	})
	if err != nil {
		return nil, nil, err
	}
	labels, err := metric.Argmax(logits)
	logits.MustDrop()
	if err != nil {
		release(maps)
		return nil, nil, err
	}

	plane := ImgSize * ImgSize
	var rows [][]string
	for i, s := range samples {
		name := strings.TrimSuffix(filepath.Base(s.Image), filepath.Ext(s.Image))
		pred := labels[i*plane : (i+1)*plane]

		if err := saveVisuals(name, s, pred, maps[i]); err != nil {
			release(maps)
			return nil, nil, err
		}

		var fg int
		for _, l := range pred {
			if l > 0 {
				fg++
			}
		}
		row := []string{s.Image, fmt.Sprint(s.Class), fmt.Sprintf("%0.4f", float64(fg)/float64(plane)), "", ""}
		if s.Mask != "" {
			iou, dice, err := score(pred, s.Mask)
			if err != nil {
				release(maps)
				return nil, nil, err
			}
			row[3] = fmt.Sprintf("%0.4f", iou)
			row[4] = fmt.Sprintf("%0.4f", dice)
		}
		rows = append(rows, row)
	}

	return rows, maps, nil
}

func saveVisuals(name string, s Sample, pred []int64, attn *ts.Tensor) error {
	img, err := imgutil.ReadImage(s.Image)
	if err != nil {
		return err
	}

	mask, err := imgutil.MaskImage(pred, ImgSize, ImgSize, nil)
	if err != nil {
		return err
	}
	if err := imgutil.Save(mask, filepath.Join(OutDir, "mask", name+".png")); err != nil {
		return err
	}
	if err := imgutil.Save(imgutil.Overlay(img, mask, 0.5), filepath.Join(OutDir, "overlay", name+".png")); err != nil {
		return err
	}

	heat, err := imgutil.Heatmap(attn, ImgSize, ImgSize)
	if err != nil {
		return err
	}
	if err := imgutil.Save(imgutil.Overlay(img, heat, 0.5), filepath.Join(OutDir, "attention", name+".png")); err != nil {
		return err
	}

	p, err := viz.HeatMapPlot(attn, fmt.Sprintf("%v (class %v)", name, s.Class))
	if err != nil {
		return err
	}
	return viz.Save(p, filepath.Join(OutDir, "attention", name+"-plot.png"))
}

// score compares predicted labels with a ground truth mask file.
func score(pred []int64, maskFile string) (iou, dice float64, err error) {
	target, err := imgutil.ReadMask(maskFile, ImgSize, ImgSize)
	if err != nil {
		return 0, 0, err
	}

	size := []int64{int64(ImgSize), int64(ImgSize)}
	p := ts.MustOfSlice(pred).MustView(size, true)
	t := ts.MustOfSlice(target).MustView(size, true)
	iou = metric.IoU(p, t)
	dice = metric.DiceCoeff(p, t)
	p.MustDrop()
	t.MustDrop()

	return iou, dice, nil
}
