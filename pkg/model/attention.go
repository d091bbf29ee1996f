package model

import (
	"fmt"
	"math"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/utils"
)

// Attention is multi-head causal self-attention. Each head projects the
// (T x d) hidden states to queries, keys, and values, computes scaled
// dot-product scores masked so position i never attends to j > i, and the
// concatenated head outputs pass through a final output projection.
type Attention struct {
	Heads  int
	DModel int
	DHead  int

	Wq []*Parameter // per head (d x dHead)
	Wk []*Parameter
	Wv []*Parameter
	Wo *Parameter // (d x d)

	// backward cache, owned by the forward pass that filled it
	x      *mat.Dense
	q      []*mat.Dense // per head (T x dHead)
	k      []*mat.Dense
	v      []*mat.Dense
	attn   []*mat.Dense // per head (T x T) softmax rows
	concat *mat.Dense   // (T x d)

	maskCache map[int]*mat.Dense
}

// NewAttention allocates the per-head projections. dModel must be divisible
// by heads; the caller validates this at configuration time, so a violation
// here is fatal.
func NewAttention(name string, dModel, heads int, src xrand.Source) *Attention {
	if heads <= 0 || dModel%heads != 0 {
		panic(fmt.Sprintf("%s: dModel %d not divisible by %d heads", name, dModel, heads))
	}
	dHead := dModel / heads
	a := &Attention{
		Heads:     heads,
		DModel:    dModel,
		DHead:     dHead,
		Wq:        make([]*Parameter, heads),
		Wk:        make([]*Parameter, heads),
		Wv:        make([]*Parameter, heads),
		q:         make([]*mat.Dense, heads),
		k:         make([]*mat.Dense, heads),
		v:         make([]*mat.Dense, heads),
		attn:      make([]*mat.Dense, heads),
		maskCache: make(map[int]*mat.Dense),
	}
	for h := 0; h < heads; h++ {
		a.Wq[h] = NewParameter(fmt.Sprintf("%s.wq%d", name, h), dModel, dHead,
			utils.RandomArray(dModel*dHead, float64(dModel), src))
		a.Wk[h] = NewParameter(fmt.Sprintf("%s.wk%d", name, h), dModel, dHead,
			utils.RandomArray(dModel*dHead, float64(dModel), src))
		a.Wv[h] = NewParameter(fmt.Sprintf("%s.wv%d", name, h), dModel, dHead,
			utils.RandomArray(dModel*dHead, float64(dModel), src))
	}
	a.Wo = NewParameter(name+".wo", dModel, dModel,
		utils.RandomArray(dModel*dModel, float64(dModel), src))
	return a
}

func (a *Attention) mask(T int) *mat.Dense {
	m, ok := a.maskCache[T]
	if !ok {
		m = utils.CausalMask(T)
		a.maskCache[T] = m
	}
	return m
}

// Forward computes the attended output for X (T x d).
func (a *Attention) Forward(X *mat.Dense) (*mat.Dense, error) {
	T, c := X.Dims()
	if c != a.DModel {
		return nil, errs.Shape("attention.forward", T, a.DModel, T, c)
	}
	a.x = X
	rescale := 1.0 / math.Sqrt(float64(a.DHead))
	mask := a.mask(T)

	concat := mat.NewDense(T, a.DModel, nil)
	for h := 0; h < a.Heads; h++ {
		a.q[h] = utils.Dot(X, a.Wq[h].Value)
		a.k[h] = utils.Dot(X, a.Wk[h].Value)
		a.v[h] = utils.Dot(X, a.Wv[h].Value)

		scores := utils.Scale(rescale, utils.Dot(a.q[h], a.k[h].T()))
		a.attn[h] = utils.RowSoftmaxMasked(scores, mask)

		out := utils.Dot(a.attn[h], a.v[h]) // (T x dHead)
		base := h * a.DHead
		dst := concat.Slice(0, T, base, base+a.DHead).(*mat.Dense)
		dst.Copy(out)
	}
	a.concat = concat
	return utils.Dot(concat, a.Wo.Value), nil
}

// Backward routes dY through the output projection, the per-head softmax
// Jacobians, and all query/key/value projections, accumulating parameter
// gradients and returning the gradient with respect to X. Masked score
// positions carry zero attention weight, so they receive zero gradient.
func (a *Attention) Backward(dY *mat.Dense) (*mat.Dense, error) {
	T, c := dY.Dims()
	if a.concat == nil {
		return nil, errs.Shape("attention.backward", 0, a.DModel, T, c)
	}
	if xr, _ := a.x.Dims(); c != a.DModel || T != xr {
		return nil, errs.Shape("attention.backward", xr, a.DModel, T, c)
	}
	rescale := 1.0 / math.Sqrt(float64(a.DHead))

	a.Wo.AddGrad(utils.Dot(a.concat.T(), dY))
	dConcat := utils.Dot(dY, a.Wo.Value.T())

	dX := mat.NewDense(T, a.DModel, nil)
	for h := 0; h < a.Heads; h++ {
		base := h * a.DHead
		dO := dConcat.Slice(0, T, base, base+a.DHead).(*mat.Dense)

		// out = attn * v
		dA := utils.Dot(dO, a.v[h].T())      // (T x T)
		dV := utils.Dot(a.attn[h].T(), dO)   // (T x dHead)
		dS := utils.SoftmaxBackward(dA, a.attn[h])

		// scores = (q k^T) * rescale
		dQ := utils.Scale(rescale, utils.Dot(dS, a.k[h]))      // (T x dHead)
		dK := utils.Scale(rescale, utils.Dot(dS.T(), a.q[h]))  // (T x dHead)

		a.Wq[h].AddGrad(utils.Dot(a.x.T(), dQ))
		a.Wk[h].AddGrad(utils.Dot(a.x.T(), dK))
		a.Wv[h].AddGrad(utils.Dot(a.x.T(), dV))

		dX.Add(dX, utils.Dot(dQ, a.Wq[h].Value.T()))
		dX.Add(dX, utils.Dot(dK, a.Wk[h].Value.T()))
		dX.Add(dX, utils.Dot(dV, a.Wv[h].Value.T()))
	}
	return dX, nil
}

// Parameters returns all projection weights in a stable order.
func (a *Attention) Parameters() []*Parameter {
	out := make([]*Parameter, 0, 3*a.Heads+1)
	for h := 0; h < a.Heads; h++ {
		out = append(out, a.Wq[h], a.Wk[h], a.Wv[h])
	}
	return append(out, a.Wo)
}
