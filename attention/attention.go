// Package attention implements soft attention of a query vector over a
// sequence of feature vectors.
//
// Given features [N, S, C] and a query [N, C], a score is computed for each
// of the S positions, scores are normalized with softmax over S and each
// feature vector is scaled by its weight:
//
//	weights = softmax(score(features, query))	// [N, S]
//	context = features * weights			// [N, S, C]
package attention

import (
	"fmt"
	"math"
	"strings"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Type is attention scoring function.
type Type string

const (
	// DotProd scores by <f, q>.
	DotProd Type = "dotprod"
	// ScaledDotProd scores by <f, q>/sqrt(C).
	ScaledDotProd Type = "sdotprod"
	// General scores by <f, Wq> with learned W.
	General Type = "general"
	// Additive scores by v.tanh(W_f f + W_q q) with learned W_f, W_q, v.
	Additive Type = "additive"
	// None gives every position the same weight and returns features as context.
	None Type = "none"
)

var aliases = map[string]Type{
	"dotprod":        DotProd,
	"dot":            DotProd,
	"sdotprod":       ScaledDotProd,
	"scaled-dotprod": ScaledDotProd,
	"general":        General,
	"additive":       Additive,
	"add":            Additive,
	"none":           None,
	"identity":       None,
}

// ParseType converts attention type name to Type.
func ParseType(name string) (Type, error) {
	typ, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("Unsupported attention type %q. Expected one of: dotprod, sdotprod, general, additive, none", name)
	}
	return typ, nil
}

// Attention is a soft attention module.
type Attention struct {
	typ Type
	dim int64

	general    *nn.Linear // General
	encTrans   *nn.Linear // Additive
	queryTrans *nn.Linear // Additive
	outTrans   *nn.Linear // Additive
}

// New creates Attention over feature vectors of size dim.
func New(p *nn.Path, dim int64, attType string) (*Attention, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("Invalid attention dim %v", dim)
	}
	typ, err := ParseType(attType)
	if err != nil {
		return nil, err
	}

	a := &Attention{typ: typ, dim: dim}
	switch typ {
	case General:
		a.general = nn.NewLinear(p.Sub("general"), dim, dim, nn.DefaultLinearConfig())
	case Additive:
		a.encTrans = nn.NewLinear(p.Sub("enc_trans"), dim, dim, nn.DefaultLinearConfig())
		a.queryTrans = nn.NewLinear(p.Sub("query_trans"), dim, dim, nn.DefaultLinearConfig())
		a.outTrans = nn.NewLinear(p.Sub("out_trans"), dim, 1, nn.DefaultLinearConfig())
	}

	return a, nil
}

// Type returns attention scoring type.
func (a *Attention) Type() Type { return a.typ }

// Dim returns feature vector size.
func (a *Attention) Dim() int64 { return a.dim }

// ForwardT attends query [N, C] over features [N, S, C]. It returns context
// [N, S, C] and weights [N, S] which sum to 1 over S.
func (a *Attention) ForwardT(features, query *ts.Tensor, train bool) (context, weights *ts.Tensor, err error) {
	fSize := features.MustSize()
	qSize := query.MustSize()
	if len(fSize) != 3 || fSize[2] != a.dim {
		return nil, nil, fmt.Errorf("Expected features of shape [N S %v]. Got %v", a.dim, fSize)
	}
	if len(qSize) != 2 || qSize[0] != fSize[0] || qSize[1] != a.dim {
		return nil, nil, fmt.Errorf("Expected query of shape [%v %v]. Got %v", fSize[0], a.dim, qSize)
	}

	scores := a.score(features, query)
	weights = scores.MustSoftmax(1, features.DType(), true)
	if a.typ == None {
		return features.MustMul1(ts.FloatScalar(1), false), weights, nil
	}

	w := weights.MustUnsqueeze(2, false)
	context = features.MustMul(w, false)
	w.MustDrop()

	return context, weights, nil
}

func (a *Attention) score(features, query *ts.Tensor) *ts.Tensor {
	size := features.MustSize()
	n, s := size[0], size[1]

	switch a.typ {
	case DotProd, ScaledDotProd, General:
		var q *ts.Tensor
		if a.typ == General {
			q = a.general.Forward(query).MustUnsqueeze(2, true) // [N C 1]
		} else {
			q = query.MustUnsqueeze(2, false) // [N C 1]
		}
		scores := features.MustBmm(q, false).MustView([]int64{n, s}, true)
		q.MustDrop()
		if a.typ == ScaledDotProd {
			scores = scores.MustMul1(ts.FloatScalar(1/math.Sqrt(float64(a.dim))), true)
		}
		return scores

	case Additive:
		enc := a.encTrans.Forward(features)                       // [N S C]
		qry := a.queryTrans.Forward(query).MustUnsqueeze(1, true) // [N 1 C]
		hidden := enc.MustAdd(qry, true).MustTanh(true)
		qry.MustDrop()
		scores := a.outTrans.Forward(hidden).MustView([]int64{n, s}, true) // [N S]
		hidden.MustDrop()
		return scores

	default: // None
		return ts.MustZeros([]int64{n, s}, gotch.Float, features.MustDevice()).MustTotype(features.DType(), true)
	}
}
