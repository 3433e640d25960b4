package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// NewSegmentationHead creates new SegmentatationHead (nn.SequentialT)
// projecting cIn channels to cOut class logits. If outSize is given, logits
// are bilinearly upsampled to it.
func NewSegmentationHead(p *nn.Path, cIn, cOut, ksize int64, outSize ...int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2d(p, cIn, cOut, ksize, ksize/2, 1))
	if len(outSize) == 2 {
		size := []int64{outSize[0], outSize[1]}
		seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
			return Resize(xs, size)
		}))
	}

	return seq
}
