package model

import (
	"math"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/utils"
)

// Projection maps final hidden states to vocabulary logits and computes
// the next-token cross-entropy loss with its exact gradient.
type Projection struct {
	W *Parameter // (d x vocabSize)
	B *Parameter // (1 x vocabSize)

	dModel    int
	vocabSize int

	x *mat.Dense // input of last forward
}

// NewProjection allocates the output head.
func NewProjection(dModel, vocabSize int, src xrand.Source) *Projection {
	return &Projection{
		W:         NewParameter("proj.w", dModel, vocabSize, utils.RandomArray(dModel*vocabSize, float64(dModel), src)),
		B:         NewParameter("proj.b", 1, vocabSize, nil),
		dModel:    dModel,
		vocabSize: vocabSize,
	}
}

// Forward returns the (T x vocabSize) logits for X (T x d).
func (p *Projection) Forward(X *mat.Dense) (*mat.Dense, error) {
	T, c := X.Dims()
	if c != p.dModel {
		return nil, errs.Shape("projection.forward", T, p.dModel, T, c)
	}
	p.x = X
	return utils.AddRowBias(utils.Dot(X, p.W.Value), p.B.Value), nil
}

// LossAndGrad computes the mean cross-entropy over positions whose target
// id is non-negative and the matching logit gradient. Negative targets
// mark padding: they contribute no loss and a zero gradient row. The
// softmax and the gradient share one pass, dLogits = (softmax - onehot) / nValid.
func (p *Projection) LossAndGrad(logits *mat.Dense, targets []int) (float64, *mat.Dense, error) {
	T, V := logits.Dims()
	if len(targets) != T {
		return 0, nil, errs.Shape("projection.loss", T, V, len(targets), V)
	}
	probs := utils.RowSoftmax(logits)
	dLogits := mat.NewDense(T, V, nil)

	nValid := 0
	for _, id := range targets {
		if id < 0 {
			continue
		}
		if id >= V {
			return 0, nil, &errs.InvalidIDError{ID: id, Size: V}
		}
		nValid++
	}
	if nValid == 0 {
		return 0, dLogits, nil
	}

	loss := 0.0
	inv := 1.0 / float64(nValid)
	for t, id := range targets {
		if id < 0 {
			continue
		}
		loss -= math.Log(probs.At(t, id) + 1e-12)
		for j := 0; j < V; j++ {
			g := probs.At(t, j)
			if j == id {
				g -= 1.0
			}
			dLogits.Set(t, j, g*inv)
		}
	}
	loss *= inv
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, nil, errs.Numeric("projection.loss", "non-finite loss %v", loss)
	}
	return loss, dLogits, nil
}

// Backward accumulates the head gradients and returns dX.
func (p *Projection) Backward(dLogits *mat.Dense) (*mat.Dense, error) {
	T, V := dLogits.Dims()
	if p.x == nil || V != p.vocabSize {
		return nil, errs.Shape("projection.backward", T, p.vocabSize, T, V)
	}
	p.W.AddGrad(utils.Dot(p.x.T(), dLogits))
	p.B.AddGrad(utils.ColSums(dLogits))
	return utils.Dot(dLogits, p.W.Value.T()), nil
}

// Parameters returns the head weight and bias.
func (p *Projection) Parameters() []*Parameter {
	return []*Parameter{p.W, p.B}
}
