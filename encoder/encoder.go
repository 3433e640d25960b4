package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Backbone is a pretrained image network whose intermediate activations can
// be retrieved by layer name.
type Backbone interface {
	// Layers returns layer names in forward order.
	Layers() []string
	// Channels returns number of output channels of a named layer.
	Channels(name string) (int64, error)
	// ForwardLayers runs the network once and returns the activations of the
	// requested layers, keyed by name. Each is a channel-first [N, C, H, W] map.
	ForwardLayers(x *ts.Tensor, names []string, train bool) (map[string]*ts.Tensor, error)
}
