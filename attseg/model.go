package attseg

import (
	"fmt"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attseg/attention"
	"github.com/sugarme/attseg/decoder"
	"github.com/sugarme/attseg/encoder"
)

// AttSegmentator is a segmentation model conditioned on a class vector.
//
// High-level backbone features are attended by an embedding of the class
// vector; the attended features are decoded together with low-level backbone
// features into a per-pixel class map.
//
//	image ---> extractor ---> low ---------------------------> decoder ---> logits
//	                     `--> high --> attention --> context --^
//	class vector --> class encoder ---^
type AttSegmentator struct {
	config    Config
	extractor *encoder.FeatureExtractor
	classEnc  *ClassEncoder
	attention *attention.Attention
	decoder   *decoder.Decoder
}

// New creates AttSegmentator. Its own parameters live under p; backbone
// parameters are owned by the caller, typically in a separate nn.VarStore.
func New(p *nn.Path, backbone encoder.Backbone, cfg Config) (*AttSegmentator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config: %w", err)
	}

	extractor, err := encoder.NewFeatureExtractor(backbone, cfg.LowLayer, cfg.HighLayer, cfg.FreezeBackbone)
	if err != nil {
		return nil, err
	}
	encoderDim := extractor.HighChannels()
	lowLevelDim := extractor.LowChannels()

	classEnc := NewClassEncoder(p.Sub("class_encoder"), cfg.ClassDim, encoderDim)

	att, err := attention.New(p.Sub("attention_enc"), encoderDim, cfg.AttType)
	if err != nil {
		return nil, err
	}

	dec, err := decoder.New(p.Sub("decoder"), cfg.NumClasses, encoderDim, lowLevelDim, cfg.ImgSize, cfg.Rates)
	if err != nil {
		return nil, err
	}

	return &AttSegmentator{
		config:    cfg,
		extractor: extractor,
		classEnc:  classEnc,
		attention: att,
		decoder:   dec,
	}, nil
}

// Config returns model config.
func (m *AttSegmentator) Config() Config { return m.config }

// Forward returns segmentation logits [N, NumClasses, H, W] of images x
// [N, 3, H, W] conditioned on class vectors v [N, ClassDim].
func (m *AttSegmentator) Forward(x, v *ts.Tensor, train bool) (*ts.Tensor, error) {
	logits, alpha, err := m.forward(x, v, train)
	if err != nil {
		return nil, err
	}
	alpha.MustDrop()

	return logits, nil
}

// ForwardWithAttention is Forward that also returns one attention map per
// image. Maps are [1, h, w] at the resolution of the high-level features,
// detached and on CPU.
func (m *AttSegmentator) ForwardWithAttention(x, v *ts.Tensor, train bool) (*ts.Tensor, []*ts.Tensor, error) {
	logits, alpha, err := m.forward(x, v, train)
	if err != nil {
		return nil, nil, err
	}

	maps := splitMaps(alpha)
	alpha.MustDrop()

	return logits, maps, nil
}

// AttentionMaps runs model in evaluation mode without gradient and returns
// only attention maps.
func (m *AttSegmentator) AttentionMaps(x, v *ts.Tensor) ([]*ts.Tensor, error) {
	var (
		maps []*ts.Tensor
		err  error
	)
	ts.NoGrad(func() {
		var logits *ts.Tensor
		logits, maps, err = m.ForwardWithAttention(x, v, false)
		if err == nil {
			logits.MustDrop()
		}
	})

	return maps, err
}

// forward returns logits and attention weights [N, 1, h, w].
func (m *AttSegmentator) forward(x, v *ts.Tensor, train bool) (logits, alpha *ts.Tensor, err error) {
	if err := m.checkInput(x, v); err != nil {
		return nil, nil, err
	}

	low, high, err := m.extractor.Extract(x, train) // low: [N 64 H/4 W/4], high: [N 512 H/32 W/32]
	if err != nil {
		return nil, nil, err
	}
	defer low.MustDrop()

	classVec, err := m.classEnc.Forward(v) // [N 512]
	if err != nil {
		high.MustDrop()
		return nil, nil, err
	}
	defer classVec.MustDrop()

	highSize := high.MustSize()
	n, c, spatial := highSize[0], highSize[1], highSize[2:]
	s := spatial[0] * spatial[1]

	seq, err := ToSequence(high) // [N S C]
	high.MustDrop()
	if err != nil {
		return nil, nil, err
	}

	context, weights, err := m.attention.ForwardT(seq, classVec, train)
	seq.MustDrop()
	if err != nil {
		return nil, nil, err
	}
	defer weights.MustDrop()

	if got := context.MustSize(); len(got) != 3 || got[0] != n || got[1] != s || got[2] != c {
		context.MustDrop()
		return nil, nil, fmt.Errorf("Expected attention context of shape [%v %v %v]. Got %v", n, s, c, got)
	}
	if got := weights.Numel(); int64(got) != n*s {
		context.MustDrop()
		return nil, nil, fmt.Errorf("Expected %v attention weights (%v x %v). Got %v", n*s, n, s, got)
	}

	attended, err := ToSpatial(context, spatial) // [N C h w]
	context.MustDrop()
	if err != nil {
		return nil, nil, err
	}

	logits = m.decoder.ForwardT(attended, low, train)
	attended.MustDrop()

	alpha = weights.MustView([]int64{n, 1, spatial[0], spatial[1]}, false)

	return logits, alpha, nil
}

func (m *AttSegmentator) checkInput(x, v *ts.Tensor) error {
	xSize := x.MustSize()
	h, w := m.config.ImgSize[0], m.config.ImgSize[1]
	if len(xSize) != 4 || xSize[1] != 3 || xSize[2] != h || xSize[3] != w {
		return fmt.Errorf("Expected image of shape [N 3 %v %v]. Got %v", h, w, xSize)
	}

	vSize := v.MustSize()
	if len(vSize) != 2 || vSize[0] != xSize[0] || vSize[1] != m.config.ClassDim {
		return fmt.Errorf("Expected class vector of shape [%v %v]. Got %v", xSize[0], m.config.ClassDim, vSize)
	}

	return nil
}

// splitMaps splits alpha [N, 1, h, w] into N detached CPU tensors [1, h, w].
func splitMaps(alpha *ts.Tensor) []*ts.Tensor {
	n := alpha.MustSize()[0]
	maps := make([]*ts.Tensor, 0, n)
	for i := int64(0); i < n; i++ {
		a := alpha.MustSelect(0, i, false).MustDetach(true).MustTo(gotch.CPU, true)
		maps = append(maps, a)
	}

	return maps
}
