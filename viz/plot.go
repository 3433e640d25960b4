// Package viz plots attention weights with gonum/plot.
package viz

import (
	"fmt"
	"io"

	ts "github.com/sugarme/gotch/tensor"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Grid is an attention map [h, w] implementing plotter.GridXYZ.
// Row 0 is the top of the image.
type Grid struct {
	rows, cols int
	vals       []float64
}

// NewGrid creates Grid from an attention map [1, h, w] or [h, w].
func NewGrid(attn *ts.Tensor) (*Grid, error) {
	size := attn.MustSize()
	if len(size) == 3 && size[0] == 1 {
		size = size[1:]
	}
	if len(size) != 2 {
		return nil, fmt.Errorf("Expected attention map of shape [1 h w]. Got %v", attn.MustSize())
	}

	return &Grid{
		rows: int(size[0]),
		cols: int(size[1]),
		vals: attn.Float64Values(),
	}, nil
}

// Dims implements plotter.GridXYZ.
func (g *Grid) Dims() (c, r int) { return g.cols, g.rows }

// Z implements plotter.GridXYZ.
func (g *Grid) Z(c, r int) float64 { return g.vals[(g.rows-1-r)*g.cols+c] }

// X implements plotter.GridXYZ.
func (g *Grid) X(c int) float64 { return float64(c) }

// Y implements plotter.GridXYZ.
func (g *Grid) Y(r int) float64 { return float64(r) }

// Sum returns total attention weight.
func (g *Grid) Sum() float64 {
	var s float64
	for _, v := range g.vals {
		s += v
	}
	return s
}

// HeatMapPlot creates heat map plot of an attention map.
func HeatMapPlot(attn *ts.Tensor, title string) (*plot.Plot, error) {
	g, err := NewGrid(attn)
	if err != nil {
		return nil, err
	}

	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Add(plotter.NewHeatMap(g, palette.Heat(64, 1)))

	return p, nil
}

// HistogramPlot creates histogram of attention weights of one or more maps.
func HistogramPlot(maps []*ts.Tensor, bins int, title string) (*plot.Plot, error) {
	var v plotter.Values
	for _, m := range maps {
		v = append(v, m.Float64Values()...)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("No attention weights to plot")
	}

	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	h, err := plotter.NewHist(v, bins)
	if err != nil {
		return nil, err
	}
	p.Title.Text = title
	p.X.Label.Text = "weight"
	p.Add(h)

	return p, nil
}

// Save writes plot to file. Format is given by file extension.
func Save(p *plot.Plot, filename string) error {
	return p.Save(4*vg.Inch, 4*vg.Inch, filename)
}

// Write renders plot in format ("png", "svg", ...) to w.
func Write(p *plot.Plot, format string, w io.Writer) error {
	wt, err := p.WriterTo(4*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
