package attseg

import (
	"fmt"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ClassEncoder projects a class-indicator vector to the channel space of the
// encoder features with a single linear layer. No activation is applied.
type ClassEncoder struct {
	linear *nn.Linear
	inDim  int64
	outDim int64
}

// NewClassEncoder creates ClassEncoder.
func NewClassEncoder(p *nn.Path, inDim, outDim int64) *ClassEncoder {
	return &ClassEncoder{
		linear: nn.NewLinear(p, inDim, outDim, nn.DefaultLinearConfig()),
		inDim:  inDim,
		outDim: outDim,
	}
}

// Forward maps v [N, inDim] to embedding [N, outDim].
func (e *ClassEncoder) Forward(v *ts.Tensor) (*ts.Tensor, error) {
	size := v.MustSize()
	if len(size) != 2 || size[1] != e.inDim {
		return nil, fmt.Errorf("Expected class vector of shape [N %v]. Got %v", e.inDim, size)
	}

	return e.linear.Forward(v), nil
}

// OneHot builds class-indicator vectors [len(indices), width] with 1 at each
// index and 0 elsewhere.
func OneHot(indices []int64, width int64, device gotch.Device) (*ts.Tensor, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("Empty class indices")
	}
	if width <= 0 {
		return nil, fmt.Errorf("Invalid class vector width %v", width)
	}

	data := make([]float32, int64(len(indices))*width)
	for i, idx := range indices {
		if idx < 0 || idx >= width {
			return nil, fmt.Errorf("Class index %v out of range [0, %v)", idx, width)
		}
		data[int64(i)*width+idx] = 1
	}

	x := ts.MustOfSlice(data).MustView([]int64{int64(len(indices)), width}, true)
	return x.MustTo(device, true), nil
}
