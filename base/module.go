package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// AtrousConv2dNoBias creates a dilated Conv2D with no bias.
// Rate 1 gives a 1x1 convolution, any other rate a 3x3 kernel
// whose taps are `rate` pixels apart. Spatial size is preserved.
func AtrousConv2dNoBias(p *nn.Path, cIn, cOut, rate int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	if rate == 1 {
		config.Padding = []int64{0, 0}
		return nn.NewConv2D(p, cIn, cOut, 1, config)
	}

	config.Padding = []int64{rate, rate}
	config.Dilation = []int64{rate, rate}

	return nn.NewConv2D(p, cIn, cOut, 3, config)
}

func relu() nn.Func {
	return nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	})
}

// Conv2dRelu creates a SequentialT composing of Conv2D No bias, BatchNorm and a ReLU activation.
func Conv2dRelu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	bnConfig := nn.DefaultBatchNormConfig()
	bnConfig.Eps = 0.001
	seq := nn.SeqT()
	seq.Add(Conv2dNoBias(p.Sub("conv"), cIn, cOut, ksize, padding, stride))
	seq.Add(nn.BatchNorm2D(p.Sub("bn"), cOut, bnConfig))
	seq.AddFn(relu())

	return seq
}

// AtrousConv2dRelu is Conv2dRelu with a dilated convolution.
func AtrousConv2dRelu(p *nn.Path, cIn, cOut, rate int64) *nn.SequentialT {
	bnConfig := nn.DefaultBatchNormConfig()
	bnConfig.Eps = 0.001
	seq := nn.SeqT()
	seq.Add(AtrousConv2dNoBias(p.Sub("conv"), cIn, cOut, rate))
	seq.Add(nn.BatchNorm2D(p.Sub("bn"), cOut, bnConfig))
	seq.AddFn(relu())

	return seq
}

// Dropout returns a FuncT that zeroes activations with probability p in training mode only.
func Dropout(p float64) nn.FuncT {
	return nn.NewFuncT(func(xs *ts.Tensor, train bool) *ts.Tensor {
		return ts.MustDropout(xs, p, train)
	})
}

// Resize interpolates a [N, C, H, W] tensor to spatial `size` using bilinear algorithm.
func Resize(x *ts.Tensor, size []int64) *ts.Tensor {
	return x.MustUpsampleBilinear2d(size, false, nil, nil, false)
}

// ResizeLike interpolates x to the spatial size of ref.
func ResizeLike(x, ref *ts.Tensor) *ts.Tensor {
	refSize := ref.MustSize()
	return Resize(x, refSize[2:])
}
