package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ResNetEncoder is a ResNet with BasicBlock layers (ResNet-18, ResNet-34)
// without its classification layer. Layer names are:
//
//	layer0	stem (conv1, bn1, relu, maxpool)	64 channels	1/4
//	layer1						64 channels	1/4
//	layer2						128 channels	1/8
//	layer3						256 channels	1/16
//	layer4						512 channels	1/32
//
// Variable names follow gotch vision ResNet so pretrained `.ot` weights
// can be loaded with VarStore.LoadPartial.
type ResNetEncoder struct {
	names    []string
	channels []int64
	layers   []ts.ModuleT
}

// Layers implements Backbone interface for ResNetEncoder.
func (e *ResNetEncoder) Layers() []string {
	names := make([]string, len(e.names))
	copy(names, e.names)
	return names
}

// Channels implements Backbone interface for ResNetEncoder.
func (e *ResNetEncoder) Channels(name string) (int64, error) {
	idx, err := e.index(name)
	if err != nil {
		return 0, err
	}
	return e.channels[idx], nil
}

func (e *ResNetEncoder) index(name string) (int, error) {
	for i, n := range e.names {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("Unknown layer %q. Expected one of %v", name, e.names)
}

// ForwardLayers implements Backbone interface for ResNetEncoder.
func (e *ResNetEncoder) ForwardLayers(x *ts.Tensor, names []string, train bool) (map[string]*ts.Tensor, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("No layer requested")
	}

	wanted := make(map[int]string, len(names))
	last := 0
	for _, n := range names {
		idx, err := e.index(n)
		if err != nil {
			return nil, err
		}
		wanted[idx] = n
		if idx > last {
			last = idx
		}
	}

	size := x.MustSize()
	if len(size) != 4 || size[1] != 3 {
		return nil, fmt.Errorf("Expected input of shape [N 3 H W]. Got %v", size)
	}

	out := make(map[string]*ts.Tensor, len(wanted))
	xs := rgbNormalize(x)
	kept := false
	for i := 0; i <= last; i++ {
		next := e.layers[i].ForwardT(xs, train)
		if !kept {
			xs.MustDrop()
		}
		var n string
		n, kept = wanted[i]
		if kept {
			out[n] = next
		}
		xs = next
	}

	return out, nil
}

// NewResNet18Encoder creates ResNet-18 encoder.
func NewResNet18Encoder(p *nn.Path) *ResNetEncoder {
	return newResNetEncoder(p, []int64{2, 2, 2, 2})
}

// NewResNet34Encoder creates ResNet-34 encoder.
func NewResNet34Encoder(p *nn.Path) *ResNetEncoder {
	return newResNetEncoder(p, []int64{3, 4, 6, 3})
}

// NewResNetEncoder creates ResNet encoder of given depth (18 or 34).
func NewResNetEncoder(p *nn.Path, depth int) (*ResNetEncoder, error) {
	switch depth {
	case 18:
		return NewResNet18Encoder(p), nil
	case 34:
		return NewResNet34Encoder(p), nil
	default:
		return nil, fmt.Errorf("Unsupported ResNet depth %v. Expected 18 or 34", depth)
	}
}

func newResNetEncoder(p *nn.Path, blocks []int64) *ResNetEncoder {
	return &ResNetEncoder{
		names:    []string{"layer0", "layer1", "layer2", "layer3", "layer4"},
		channels: []int64{64, 64, 128, 256, 512},
		layers: []ts.ModuleT{
			layerZero(p), // NOTE. `conv1` and `bn1` are at root of pretrained model
			basicLayer(p.Sub("layer1"), 64, 64, 1, blocks[0]),
			basicLayer(p.Sub("layer2"), 64, 128, 2, blocks[1]),
			basicLayer(p.Sub("layer3"), 128, 256, 2, blocks[2]),
			basicLayer(p.Sub("layer4"), 256, 512, 2, blocks[3]),
		},
	}
}

func rgbNormalize(x *ts.Tensor) *ts.Tensor {
	meanVals := []float32{0.485, 0.456, 0.406} // image RGB mean
	sdVals := []float32{0.229, 0.224, 0.225}   // image RGB standard error

	device := x.MustDevice()
	mean := ts.MustOfSlice(meanVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)
	sd := ts.MustOfSlice(sdVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)

	// x = (x - mean)/sd
	n := x.MustSub(mean, false).MustDiv(sd, true)
	mean.MustDrop()
	sd.MustDrop()

	return n
}

func layerZero(p *nn.Path) ts.ModuleT {
	conv1 := conv2dNoBias(p.Sub("conv1"), 3, 64, 7, 3, 2)
	bn1 := nn.BatchNorm2D(p.Sub("bn1"), 64, nn.DefaultBatchNormConfig())
	layer0 := nn.SeqT()
	layer0.Add(conv1)
	layer0.Add(bn1)
	layer0.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	layer0.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustMaxPool2d([]int64{3, 3}, []int64{2, 2}, []int64{1, 1}, []int64{1, 1}, false, false)
	}))

	return layer0
}

func basicLayer(path *nn.Path, cIn, cOut, stride, cnt int64) ts.ModuleT {
	layer := nn.SeqT()
	layer.Add(NewBasicBlock(path.Sub("0"), cIn, cOut, stride))
	for blockIndex := 1; blockIndex < int(cnt); blockIndex++ {
		layer.Add(NewBasicBlock(path.Sub(fmt.Sprint(blockIndex)), cOut, cOut, 1))
	}

	return layer
}

func conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

func downSample(path *nn.Path, cIn, cOut, stride int64) ts.ModuleT {
	if stride != 1 || cIn != cOut {
		seq := nn.SeqT()
		seq.Add(conv2dNoBias(path.Sub("0"), cIn, cOut, 1, 0, stride))
		seq.Add(nn.BatchNorm2D(path.Sub("1"), cOut, nn.DefaultBatchNormConfig()))

		return seq
	}
	return nil
}

// BasicBlock is the two 3x3 convolution residual block of ResNet-18/34.
type BasicBlock struct {
	Conv1      *nn.Conv2D
	Bn1        *nn.BatchNorm
	Conv2      *nn.Conv2D
	Bn2        *nn.BatchNorm
	Downsample ts.ModuleT // nil when the shortcut is identity
}

func NewBasicBlock(path *nn.Path, cIn, cOut, stride int64) *BasicBlock {
	conv1 := conv2dNoBias(path.Sub("conv1"), cIn, cOut, 3, 1, stride)
	bn1 := nn.BatchNorm2D(path.Sub("bn1"), cOut, nn.DefaultBatchNormConfig())
	conv2 := conv2dNoBias(path.Sub("conv2"), cOut, cOut, 3, 1, 1)
	bn2 := nn.BatchNorm2D(path.Sub("bn2"), cOut, nn.DefaultBatchNormConfig())
	downsample := downSample(path.Sub("downsample"), cIn, cOut, stride)

	return &BasicBlock{conv1, bn1, conv2, bn2, downsample}
}

func (bb *BasicBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := bb.Conv1.ForwardT(x, train)
	bn1Ts := bb.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	relu := bn1Ts.MustRelu(true)
	c2 := bb.Conv2.ForwardT(relu, train)
	relu.MustDrop()
	bn2Ts := bb.Bn2.ForwardT(c2, train)
	c2.MustDrop()

	var res *ts.Tensor
	if bb.Downsample != nil {
		dsl := bb.Downsample.ForwardT(x, train)
		res = dsl.MustAdd(bn2Ts, true)
	} else {
		res = x.MustAdd(bn2Ts, false)
	}
	bn2Ts.MustDrop()

	return res.MustRelu(true)
}
