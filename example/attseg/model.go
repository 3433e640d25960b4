package main

import (
	"fmt"
	"log"
	"sort"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attseg/attseg"
	"github.com/sugarme/attseg/encoder"
)

// runCheckModel builds the model with random weights, prints its variables
// and runs a forward pass on random input.
func runCheckModel() {
	bvs := nn.NewVarStore(Device)
	backbone, err := encoder.NewResNetEncoder(bvs.Root(), Depth)
	if err != nil {
		log.Fatal(err)
	}
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
	printVars(vs)

	batchSize := int64(BatchSize)
	image := ts.MustRand([]int64{batchSize, 3, int64(ImgSize), int64(ImgSize)}, gotch.Float, Device)
	indices := make([]int64, batchSize)
	for i := range indices {
		indices[i] = int64(i % ClassDim)
	}
	v, err := attseg.OneHot(indices, int64(ClassDim), Device)
	if err != nil {
		log.Fatal(err)
	}

	ts.NoGrad(func() {
		logits, maps, err := net.ForwardWithAttention(image, v, false)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("image: %v\n", image.MustSize())
		fmt.Printf("class: %v\n", v.MustSize())
		fmt.Printf("logits: %v\n", logits.MustSize())
		for i, m := range maps {
			fmt.Printf("attention %02d: %v\n", i, m.MustSize())
			m.MustDrop()
		}
		logits.MustDrop()
	})

	image.MustDrop()
	v.MustDrop()
}

// printVars print variables sorted by name
func printVars(vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		x := vars[n]
		fmt.Printf("%v \t\t %v\n", n, x.MustSize())
	}
}
