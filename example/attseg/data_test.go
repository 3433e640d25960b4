package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
)

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "manifest.csv")
	content := "image,class,mask\n" +
		"a.png,1,a_mask.png\n" +
		"/data/b.png,3,\n"
	if err := ioutil.WriteFile(fname, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	samples, err := readManifest(fname)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("want 2 samples, got %v", len(samples))
	}

	want := []Sample{
		{Image: filepath.Join(dir, "a.png"), Class: 1, Mask: filepath.Join(dir, "a_mask.png")},
		{Image: "/data/b.png", Class: 3},
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %v: want %+v, got %+v", i, want[i], samples[i])
		}
	}
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "report.csv")
	rows := [][]string{
		{"a.png", "1", "0.2500", "0.7500", "0.8571"},
	}
	if err := writeReport(fname, []string{"image", "class", "foreground", "iou", "dice"}, rows); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	if df.Err != nil {
		t.Fatal(df.Err)
	}
	if df.Nrow() != 1 || df.Ncol() != 5 {
		t.Errorf("want 1x5 report, got %vx%v", df.Nrow(), df.Ncol())
	}
}
