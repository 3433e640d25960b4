package attseg

import (
	"fmt"

	"github.com/sugarme/attseg/attention"
	"github.com/sugarme/attseg/decoder"
)

// Config holds AttSegmentator construction options.
type Config struct {
	NumClasses     int64   // number of output (segmentation) classes
	ClassDim       int64   // width of the class-indicator vector
	AttType        string  // attention scoring, see attention.ParseType
	ImgSize        []int64 // input [height width]
	LowLayer       string  // backbone layer feeding the decoder's low-level branch
	HighLayer      string  // backbone layer attended by the class embedding
	Rates          []int64 // ASPP dilation rates
	FreezeBackbone bool    // run backbone in eval mode without gradient
}

// DefaultConfig returns config for a ResNet-18 backbone, 5-wide class
// vectors and binary segmentation of 512x512 images.
func DefaultConfig() Config {
	return Config{
		NumClasses:     2,
		ClassDim:       5,
		AttType:        string(attention.ScaledDotProd),
		ImgSize:        []int64{512, 512},
		LowLayer:       "layer1",
		HighLayer:      "layer4",
		Rates:          append([]int64{}, decoder.DefaultRates...),
		FreezeBackbone: true,
	}
}

// Validate checks config values that do not depend on the backbone.
func (c Config) Validate() error {
	if c.NumClasses <= 0 {
		return fmt.Errorf("Invalid NumClasses %v", c.NumClasses)
	}
	if c.ClassDim <= 0 {
		return fmt.Errorf("Invalid ClassDim %v", c.ClassDim)
	}
	if _, err := attention.ParseType(c.AttType); err != nil {
		return err
	}
	if len(c.ImgSize) != 2 || c.ImgSize[0] <= 0 || c.ImgSize[1] <= 0 {
		return fmt.Errorf("Invalid ImgSize %v. Expected [height width]", c.ImgSize)
	}
	if c.LowLayer == "" || c.HighLayer == "" {
		return fmt.Errorf("Empty layer name: LowLayer %q, HighLayer %q", c.LowLayer, c.HighLayer)
	}
	if len(c.Rates) == 0 {
		return fmt.Errorf("Empty dilation rates")
	}

	return nil
}
