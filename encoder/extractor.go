package encoder

import (
	"fmt"

	ts "github.com/sugarme/gotch/tensor"
)

// FeatureExtractor is a truncated encoder returning a shallow (low-level)
// and a deep (high-level) activation of a backbone.
//
// A frozen extractor always runs its backbone in evaluation mode and without
// gradient tracking, regardless of the `train` flag passed to Extract.
type FeatureExtractor struct {
	backbone     Backbone
	low          string
	high         string
	lowChannels  int64
	highChannels int64
	frozen       bool
}

// NewFeatureExtractor creates FeatureExtractor. It fails if either layer
// name does not exist in backbone.
func NewFeatureExtractor(backbone Backbone, low, high string, frozen bool) (*FeatureExtractor, error) {
	if backbone == nil {
		return nil, fmt.Errorf("Nil backbone")
	}
	if low == high {
		return nil, fmt.Errorf("Low-level and high-level layers must differ. Got %q for both", low)
	}

	lowChannels, err := backbone.Channels(low)
	if err != nil {
		return nil, fmt.Errorf("Invalid low-level layer: %w", err)
	}
	highChannels, err := backbone.Channels(high)
	if err != nil {
		return nil, fmt.Errorf("Invalid high-level layer: %w", err)
	}

	return &FeatureExtractor{
		backbone:     backbone,
		low:          low,
		high:         high,
		lowChannels:  lowChannels,
		highChannels: highChannels,
		frozen:       frozen,
	}, nil
}

// LowChannels returns channel size of the low-level feature map.
func (f *FeatureExtractor) LowChannels() int64 { return f.lowChannels }

// HighChannels returns channel size of the high-level feature map.
func (f *FeatureExtractor) HighChannels() int64 { return f.highChannels }

// Frozen reports whether backbone is run in evaluation mode without gradient.
func (f *FeatureExtractor) Frozen() bool { return f.frozen }

// Extract runs backbone once and returns low-level and high-level feature maps.
func (f *FeatureExtractor) Extract(x *ts.Tensor, train bool) (low, high *ts.Tensor, err error) {
	var feats map[string]*ts.Tensor
	if f.frozen {
		ts.NoGrad(func() {
			feats, err = f.backbone.ForwardLayers(x, []string{f.low, f.high}, false)
		})
	} else {
		feats, err = f.backbone.ForwardLayers(x, []string{f.low, f.high}, train)
	}
	if err != nil {
		return nil, nil, err
	}

	low, lok := feats[f.low]
	high, hok := feats[f.high]
	if !lok || !hok {
		for _, t := range feats {
			t.MustDrop()
		}
		return nil, nil, fmt.Errorf("Backbone did not return layers %q and %q", f.low, f.high)
	}

	return low, high, nil
}
