package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/sugarme/gotch"
)

// flag variables
var (
	ManifestPath string
	BackbonePath string
	ModelPath    string
	OutDir       string
	Cuda         bool
	task         string
	Device       gotch.Device
)

// model options
var (
	ImgSize    int    // input image height and width
	Depth      int    // ResNet backbone depth
	ClassDim   int    // class vector width
	NumClasses int    // number of segmentation classes
	AttType    string // attention scoring type
	BatchSize  int    // inference batch size
)

func init() {
	flag.StringVar(&ManifestPath, "input", "./input/manifest.csv", "specify CSV file with 'image', 'class' and optional 'mask' columns")
	flag.StringVar(&BackbonePath, "backbone", "./model/resnet18.ot", "specify full path to pretrained backbone weight '.ot' file.")
	flag.StringVar(&ModelPath, "model", "", "specify full path to segmentator weight '.ot' file. Empty for random weights.")
	flag.StringVar(&OutDir, "output", "./output", "specify output directory")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.StringVar(&task, "task", "predict", "specify task to run: predict, model")
	flag.IntVar(&ImgSize, "size", 512, "specify input image size")
	flag.IntVar(&Depth, "depth", 18, "specify ResNet backbone depth (18 or 34)")
	flag.IntVar(&ClassDim, "class-dim", 5, "specify class vector width")
	flag.IntVar(&NumClasses, "classes", 2, "specify number of segmentation classes")
	flag.StringVar(&AttType, "att", "sdotprod", "specify attention type: dotprod, sdotprod, general, additive, none")
	flag.IntVar(&BatchSize, "batch", 4, "specify batch size")
}

func main() {
	flag.Parse()

	ManifestPath = absPath(ManifestPath)
	BackbonePath = absPath(BackbonePath)
	OutDir = absPath(OutDir)
	if ModelPath != "" {
		ModelPath = absPath(ModelPath)
	}

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	switch task {
	case "predict":
		runPredict()
	case "model":
		runCheckModel()
	default:
		err := fmt.Errorf("Unknown 'task' name. Please specify valid 'task' flag to run.\n")
		panic(err)
	}
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
