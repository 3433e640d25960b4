package base_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attseg/base"
)

func TestAtrousConv2dReluKeepsSize(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	x := ts.MustRand([]int64{2, 8, 16, 16}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	for _, rate := range []int64{1, 6, 12, 18} {
		m := base.AtrousConv2dRelu(vs.Root().Sub(fmt.Sprintf("aspp%v", rate)), 8, 4, rate)
		out := m.ForwardT(x, false)
		want := []int64{2, 4, 16, 16}
		if got := out.MustSize(); !reflect.DeepEqual(got, want) {
			t.Errorf("rate %v: want shape %v, got %v", rate, want, got)
		}
		out.MustDrop()
	}
}

func TestSegmentationHeadUpsamples(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	head := base.NewSegmentationHead(vs.Root().Sub("logit"), 16, 2, 1, 64, 48)

	x := ts.MustRand([]int64{3, 16, 16, 12}, gotch.Float, gotch.CPU)
	out := head.ForwardT(x, false)
	x.MustDrop()

	want := []int64{3, 2, 64, 48}
	if got := out.MustSize(); !reflect.DeepEqual(got, want) {
		t.Errorf("want shape %v, got %v", want, got)
	}
	out.MustDrop()
}

func TestResizeLike(t *testing.T) {
	x := ts.MustRand([]int64{1, 3, 4, 4}, gotch.Float, gotch.CPU)
	ref := ts.MustRand([]int64{1, 1, 8, 10}, gotch.Float, gotch.CPU)

	out := base.ResizeLike(x, ref)
	want := []int64{1, 3, 8, 10}
	if got := out.MustSize(); !reflect.DeepEqual(got, want) {
		t.Errorf("want shape %v, got %v", want, got)
	}

	x.MustDrop()
	ref.MustDrop()
	out.MustDrop()
}

func TestDropout(t *testing.T) {
	x := ts.MustOnes([]int64{4, 8}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	drop := base.Dropout(0.5)

	out := drop.ForwardT(x, false)
	if !reflect.DeepEqual(out.Float64Values(), x.Float64Values()) {
		t.Errorf("want input unchanged in evaluation mode")
	}
	out.MustDrop()

	// In training mode kept units are scaled by 1/(1-p).
	out = drop.ForwardT(x, true)
	for _, v := range out.Float64Values() {
		if v != 0 && v != 2 {
			t.Fatalf("want values in {0, 2}, got %v", v)
		}
	}
	out.MustDrop()
}
