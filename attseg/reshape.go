package attseg

import (
	"fmt"

	ts "github.com/sugarme/gotch/tensor"
)

// ToSequence flattens a channel-first feature map [N, C, H, W] to a sequence
// of H*W feature vectors [N, H*W, C]. Element (n, c, h, w) moves to (n, h*W+w, c).
//
// Channels are permuted to the last axis before flattening. Viewing
// [N, C, H, W] directly as [N, H*W, C] gives the right shape but mixes
// channels and positions.
func ToSequence(x *ts.Tensor) (*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) != 4 {
		return nil, fmt.Errorf("Expected feature map of shape [N C H W]. Got %v", size)
	}
	n, c, h, w := size[0], size[1], size[2], size[3]

	nhwc := x.MustPermute([]int64{0, 2, 3, 1}, false).MustContiguous(true) // [N H W C]
	seq := nhwc.MustView([]int64{n, h * w, c}, true)

	return seq, nil
}

// ToSpatial is the inverse of ToSequence: it turns a sequence [N, H*W, C]
// back into a feature map [N, C, H, W] of given spatial size [H W].
func ToSpatial(seq *ts.Tensor, spatial []int64) (*ts.Tensor, error) {
	size := seq.MustSize()
	if len(spatial) != 2 {
		return nil, fmt.Errorf("Expected spatial size [H W]. Got %v", spatial)
	}
	h, w := spatial[0], spatial[1]
	if len(size) != 3 || size[1] != h*w {
		return nil, fmt.Errorf("Expected sequence of shape [N %v C]. Got %v", h*w, size)
	}
	n, c := size[0], size[2]

	ncs := seq.MustPermute([]int64{0, 2, 1}, false).MustContiguous(true) // [N C H*W]
	x := ncs.MustView([]int64{n, c, h, w}, true)

	return x, nil
}
