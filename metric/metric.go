package metric

import (
	"fmt"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

const eps = 1e-7

func sum(x *ts.Tensor) float64 {
	s := x.MustSum(gotch.Double, false)
	val := s.Float64Values()[0]
	s.MustDrop()
	return val
}

func checkSize(pred, target *ts.Tensor) {
	if pred.Numel() != target.Numel() {
		panic(fmt.Sprintf("metric: size mismatch: prediction %v, target %v", pred.MustSize(), target.MustSize()))
	}
}

// counts thresholds both masks at 0.5 and returns overlap and foreground sizes.
func counts(pred, target *ts.Tensor) (inter, p, t float64) {
	checkSize(pred, target)

	pflat := pred.MustView([]int64{-1}, false)
	tflat := target.MustView([]int64{-1}, false)
	pMask := pflat.MustGt(ts.FloatScalar(0.5), true)
	tMask := tflat.MustGt(ts.FloatScalar(0.5), true)
	ptMul := pMask.MustMul(tMask, false)

	inter = sum(ptMul)
	p = sum(pMask)
	t = sum(tMask)

	ptMul.MustDrop()
	pMask.MustDrop()
	tMask.MustDrop()

	return inter, p, t
}

// IoU is intersection over union of binary masks.
// Values greater than 0.5 are foreground.
func IoU(pred, target *ts.Tensor) float64 {
	inter, p, t := counts(pred, target)
	union := p + t - inter
	if union == 0 {
		return 1
	}
	return inter / (union + eps)
}

// DiceCoeff is Sorensen-Dice coefficient 2|P∩T|/(|P|+|T|) of binary masks.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	inter, p, t := counts(pred, target)
	if p+t == 0 {
		return 1
	}
	return 2 * inter / (p + t + eps)
}

// JaccardIndex is IoU averaged over classes of integer label maps
// (pred and target hold class indices in [0, numClasses)).
// Classes absent from both maps are skipped.
func JaccardIndex(pred, target *ts.Tensor, numClasses int) float64 {
	checkSize(pred, target)

	pflat := pred.MustView([]int64{-1}, false)
	tflat := target.MustView([]int64{-1}, false)
	defer pflat.MustDrop()
	defer tflat.MustDrop()

	var total float64
	var present int
	for c := 0; c < numClasses; c++ {
		pc := pflat.MustEq(ts.IntScalar(int64(c)), false)
		tc := tflat.MustEq(ts.IntScalar(int64(c)), false)
		and := pc.MustLogicalAnd(tc, false)
		or := pc.MustLogicalOr(tc, true)
		tc.MustDrop()

		inter, union := sum(and), sum(or)
		and.MustDrop()
		or.MustDrop()

		if union == 0 {
			continue
		}
		total += inter / union
		present++
	}
	if present == 0 {
		return 1
	}

	return total / float64(present)
}

// Argmax returns class index map [N, H, W] of logits [N, C, H, W] as a flat
// slice in row-major order.
func Argmax(logits *ts.Tensor) ([]int64, error) {
	size := logits.MustSize()
	if len(size) != 4 {
		return nil, fmt.Errorf("Expected logits of shape [N C H W]. Got %v", size)
	}

	labels := logits.MustArgmax([]int64{1}, false, false)
	vals := labels.Int64Values()
	labels.MustDrop()

	return vals, nil
}
