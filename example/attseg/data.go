package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
)

// Sample is one manifest row.
type Sample struct {
	Image string
	Class int64
	Mask  string // empty when no ground truth
}

// readManifest reads CSV with header 'image,class[,mask]'. Relative paths are
// resolved against the manifest directory.
func readManifest(filename string) ([]Sample, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, df.Err
	}

	hasMask := false
	for _, n := range df.Names() {
		if n == "mask" {
			hasMask = true
		}
	}

	images := df.Col("image").Records()
	classes, err := df.Col("class").Int()
	if err != nil {
		return nil, fmt.Errorf("Invalid 'class' column: %w", err)
	}
	var masks []string
	if hasMask {
		masks = df.Col("mask").Records()
	}

	dir := filepath.Dir(filename)
	resolve := func(p string) string {
		if p == "" || p == "NaN" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	samples := make([]Sample, len(images))
	for i := range images {
		samples[i] = Sample{
			Image: resolve(images[i]),
			Class: int64(classes[i]),
		}
		if hasMask && masks[i] != "NaN" {
			samples[i].Mask = resolve(masks[i])
		}
	}

	return samples, nil
}

// writeReport writes per-image results as CSV.
func writeReport(filename string, header []string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	df := dataframe.LoadRecords(append([][]string{header}, rows...))
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(f)
}
