package decoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attseg/base"
)

// DefaultRates are ASPP dilation rates.
var DefaultRates = []int64{1, 6, 12, 18}

const (
	asppChannels     int64 = 256
	lowLevelChannels int64 = 48
)

// ASPP is atrous spatial pyramid pooling: parallel dilated convolutions at
// several rates plus an image-level pooling branch, concatenated and
// projected.
// Ref. https://arxiv.org/abs/1706.05587
type ASPP struct {
	branches []*nn.SequentialT
	pool     *nn.SequentialT
	project  *nn.SequentialT
}

// NewASPP creates ASPP.
func NewASPP(p *nn.Path, cIn, cOut int64, rates []int64) *ASPP {
	var branches []*nn.SequentialT
	for i, rate := range rates {
		branches = append(branches, base.AtrousConv2dRelu(p.Sub(fmt.Sprintf("aspp%v", i+1)), cIn, cOut, rate))
	}

	// NOTE. no BatchNorm after global pooling: it has a single value
	// per channel when batch size is 1.
	pool := nn.SeqT()
	pool.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	}))
	pool.Add(base.Conv2d(p.Sub("pool").Sub("conv"), cIn, cOut, 1, 0, 1))
	pool.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	project := base.Conv2dRelu(p.Sub("project"), cOut*int64(len(rates)+1), cOut, 1, 0, 1)
	project.Add(base.Dropout(0.5))

	return &ASPP{
		branches: branches,
		pool:     pool,
		project:  project,
	}
}

// ForwardT implements ts.ModuleT for ASPP struct.
func (a *ASPP) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	var outs []ts.Tensor
	for _, b := range a.branches {
		outs = append(outs, *b.ForwardT(x, train))
	}
	pooled := a.pool.ForwardT(x, train)
	up := base.ResizeLike(pooled, x)
	pooled.MustDrop()
	outs = append(outs, *up)

	cat := ts.MustCat(outs, 1)
	for i := range outs {
		outs[i].MustDrop()
	}
	res := a.project.ForwardT(cat, train)
	cat.MustDrop()

	return res
}

// Decoder is DeepLab-v3+ decoder. It fuses the ASPP output of high-level
// features with projected low-level features and predicts per-pixel class logits.
// Ref. https://arxiv.org/abs/1802.02611
type Decoder struct {
	aspp     *ASPP
	lowProj  *nn.SequentialT
	fuse     *nn.SequentialT
	head     *nn.SequentialT
	numClass int64
	imgSize  []int64
}

// New creates Decoder with output of numClasses channels at imgSize (height, width).
func New(p *nn.Path, numClasses, encoderDim, lowLevelDim int64, imgSize []int64, rates []int64) (*Decoder, error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("Invalid number of classes %v", numClasses)
	}
	if encoderDim <= 0 || lowLevelDim <= 0 {
		return nil, fmt.Errorf("Invalid channel sizes: encoder %v, low-level %v", encoderDim, lowLevelDim)
	}
	if len(imgSize) != 2 || imgSize[0] <= 0 || imgSize[1] <= 0 {
		return nil, fmt.Errorf("Invalid image size %v. Expected [height width]", imgSize)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("Empty dilation rates")
	}
	for _, r := range rates {
		if r <= 0 {
			return nil, fmt.Errorf("Invalid dilation rate %v in %v", r, rates)
		}
	}

	aspp := NewASPP(p.Sub("aspp"), encoderDim, asppChannels, rates)
	lowProj := base.Conv2dRelu(p.Sub("low_level"), lowLevelDim, lowLevelChannels, 1, 0, 1)

	fuse := base.Conv2dRelu(p.Sub("fuse1"), asppChannels+lowLevelChannels, asppChannels, 3, 1, 1)
	fuse.Add(base.Dropout(0.5))
	fuse.Add(base.Conv2dRelu(p.Sub("fuse2"), asppChannels, asppChannels, 3, 1, 1))
	fuse.Add(base.Dropout(0.1))

	head := base.NewSegmentationHead(p.Sub("logit"), asppChannels, numClasses, 1, imgSize[0], imgSize[1])

	return &Decoder{
		aspp:     aspp,
		lowProj:  lowProj,
		fuse:     fuse,
		head:     head,
		numClass: numClasses,
		imgSize:  []int64{imgSize[0], imgSize[1]},
	}, nil
}

// NumClasses returns number of output channels.
func (d *Decoder) NumClasses() int64 { return d.numClass }

// ImgSize returns output spatial size [height width].
func (d *Decoder) ImgSize() []int64 { return []int64{d.imgSize[0], d.imgSize[1]} }

// ForwardT decodes high-level [N, C_enc, h, w] and low-level [N, C_low, H/4, W/4]
// feature maps into logits [N, numClasses, H, W].
func (d *Decoder) ForwardT(high, low *ts.Tensor, train bool) *ts.Tensor {
	aspp := d.aspp.ForwardT(high, train)      // [N 256 h w]
	lowFeat := d.lowProj.ForwardT(low, train) // [N 48 H/4 W/4]
	up := base.ResizeLike(aspp, lowFeat)      // [N 256 H/4 W/4]
	aspp.MustDrop()

	cat := ts.MustCat([]ts.Tensor{*up, *lowFeat}, 1) // [N 304 H/4 W/4]
	up.MustDrop()
	lowFeat.MustDrop()

	fused := d.fuse.ForwardT(cat, train)
	cat.MustDrop()
	logit := d.head.ForwardT(fused, train) // [N numClasses H W]
	fused.MustDrop()

	return logit
}
