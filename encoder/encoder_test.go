package encoder_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attseg/encoder"
)

func TestResNet18ForwardLayers(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := encoder.NewResNet18Encoder(vs.Root())

	x := ts.MustRand([]int64{2, 3, 64, 96}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	feats, err := net.ForwardLayers(x, []string{"layer1", "layer4"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(feats) != 2 {
		t.Fatalf("want 2 feature maps, got %v", len(feats))
	}

	want := map[string][]int64{
		"layer1": {2, 64, 16, 24},
		"layer4": {2, 512, 2, 3},
	}
	for name, size := range want {
		if got := feats[name].MustSize(); !reflect.DeepEqual(got, size) {
			t.Errorf("%v: want shape %v, got %v", name, size, got)
		}
		feats[name].MustDrop()
	}
}

func TestResNetChannels(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net, err := encoder.NewResNetEncoder(vs.Root(), 34)
	if err != nil {
		t.Fatal(err)
	}

	want := []int64{64, 64, 128, 256, 512}
	for i, name := range net.Layers() {
		c, err := net.Channels(name)
		if err != nil {
			t.Fatal(err)
		}
		if c != want[i] {
			t.Errorf("%v: want %v channels, got %v", name, want[i], c)
		}
	}

	if _, err := net.Channels("fc"); err == nil {
		t.Error("want error for unknown layer")
	}

	if _, err := encoder.NewResNetEncoder(vs.Root().Sub("r50"), 50); err == nil {
		t.Error("want error for unsupported depth")
	}
}

func TestForwardLayersUnknownLayer(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := encoder.NewResNet18Encoder(vs.Root())
	x := ts.MustRand([]int64{1, 3, 32, 32}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	if _, err := net.ForwardLayers(x, []string{"layer9"}, false); err == nil {
		t.Error("want error for unknown layer")
	}
}

// fakeBackbone records the mode it was run with.
type fakeBackbone struct {
	lastTrain bool
	calls     int
}

func (b *fakeBackbone) Layers() []string { return []string{"low", "high"} }

func (b *fakeBackbone) Channels(name string) (int64, error) {
	switch name {
	case "low":
		return 4, nil
	case "high":
		return 8, nil
	}
	return 0, fmt.Errorf("unknown layer %q", name)
}

func (b *fakeBackbone) ForwardLayers(x *ts.Tensor, names []string, train bool) (map[string]*ts.Tensor, error) {
	b.lastTrain = train
	b.calls++
	n := x.MustSize()[0]
	return map[string]*ts.Tensor{
		"low":  ts.MustOnes([]int64{n, 4, 8, 8}, gotch.Float, gotch.CPU),
		"high": ts.MustOnes([]int64{n, 8, 2, 2}, gotch.Float, gotch.CPU),
	}, nil
}

func TestNewFeatureExtractorFailsFast(t *testing.T) {
	b := &fakeBackbone{}
	tests := []struct {
		low, high string
	}{
		{"low", "missing"},
		{"missing", "high"},
		{"low", "low"},
	}
	for _, tt := range tests {
		if _, err := encoder.NewFeatureExtractor(b, tt.low, tt.high, true); err == nil {
			t.Errorf("(%v, %v): want error", tt.low, tt.high)
		}
	}
	if _, err := encoder.NewFeatureExtractor(nil, "low", "high", true); err == nil {
		t.Error("want error for nil backbone")
	}
	if b.calls != 0 {
		t.Errorf("backbone must not run at construction, ran %v times", b.calls)
	}
}

func TestFrozenExtractorRunsInEvalMode(t *testing.T) {
	b := &fakeBackbone{}
	fe, err := encoder.NewFeatureExtractor(b, "low", "high", true)
	if err != nil {
		t.Fatal(err)
	}
	if fe.LowChannels() != 4 || fe.HighChannels() != 8 {
		t.Errorf("want channels (4, 8), got (%v, %v)", fe.LowChannels(), fe.HighChannels())
	}

	x := ts.MustRand([]int64{3, 3, 32, 32}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	low, high, err := fe.Extract(x, true)
	if err != nil {
		t.Fatal(err)
	}
	if b.lastTrain {
		t.Error("frozen extractor ran backbone in training mode")
	}
	if got := low.MustSize(); !reflect.DeepEqual(got, []int64{3, 4, 8, 8}) {
		t.Errorf("unexpected low-level shape %v", got)
	}
	if got := high.MustSize(); !reflect.DeepEqual(got, []int64{3, 8, 2, 2}) {
		t.Errorf("unexpected high-level shape %v", got)
	}
	low.MustDrop()
	high.MustDrop()

	unfrozen, err := encoder.NewFeatureExtractor(b, "low", "high", false)
	if err != nil {
		t.Fatal(err)
	}
	low, high, err = unfrozen.Extract(x, true)
	if err != nil {
		t.Fatal(err)
	}
	if !b.lastTrain {
		t.Error("unfrozen extractor must forward train flag")
	}
	low.MustDrop()
	high.MustDrop()
}

func TestFrozenExtractorNoGrad(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := encoder.NewResNet18Encoder(vs.Root())
	fe, err := encoder.NewFeatureExtractor(net, "layer1", "layer4", true)
	if err != nil {
		t.Fatal(err)
	}

	x := ts.MustRand([]int64{1, 3, 64, 64}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	low, high, err := fe.Extract(x, true)
	if err != nil {
		t.Fatal(err)
	}
	if low.MustRequiresGrad() || high.MustRequiresGrad() {
		t.Error("frozen features must not track gradient")
	}
	low.MustDrop()
	high.MustDrop()
}
