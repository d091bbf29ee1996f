package model

import (
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/utils"
)

// FeedForward is the position-wise two-layer MLP: expand to the hidden
// width, apply the nonlinearity, project back to the model width. Every
// row of the input is transformed independently.
type FeedForward struct {
	W1 *Parameter // (d x hidden)
	B1 *Parameter // (1 x hidden)
	W2 *Parameter // (hidden x d)
	B2 *Parameter // (1 x d)

	Act utils.ActivationKind

	dModel int
	hidden int

	x   *mat.Dense // input of last forward
	pre *mat.Dense // W1 output before activation
	act *mat.Dense // activation output
}

// NewFeedForward allocates the expansion and contraction layers.
func NewFeedForward(name string, dModel, hidden int, act utils.ActivationKind, src xrand.Source) *FeedForward {
	return &FeedForward{
		W1:     NewParameter(name+".w1", dModel, hidden, utils.RandomArray(dModel*hidden, float64(dModel), src)),
		B1:     NewParameter(name+".b1", 1, hidden, nil),
		W2:     NewParameter(name+".w2", hidden, dModel, utils.RandomArray(hidden*dModel, float64(hidden), src)),
		B2:     NewParameter(name+".b2", 1, dModel, nil),
		Act:    act,
		dModel: dModel,
		hidden: hidden,
	}
}

// Forward computes act(X*W1 + b1)*W2 + b2 for X (T x d).
func (f *FeedForward) Forward(X *mat.Dense) (*mat.Dense, error) {
	T, c := X.Dims()
	if c != f.dModel {
		return nil, errs.Shape("feedforward.forward", T, f.dModel, T, c)
	}
	f.x = X
	f.pre = utils.AddRowBias(utils.Dot(X, f.W1.Value), f.B1.Value)
	f.act = f.Act.Activate(f.pre)
	return utils.AddRowBias(utils.Dot(f.act, f.W2.Value), f.B2.Value), nil
}

// Backward accumulates parameter gradients and returns dX.
func (f *FeedForward) Backward(dY *mat.Dense) (*mat.Dense, error) {
	T, c := dY.Dims()
	if f.x == nil {
		return nil, errs.Shape("feedforward.backward", 0, f.dModel, T, c)
	}
	if xr, _ := f.x.Dims(); c != f.dModel || T != xr {
		return nil, errs.Shape("feedforward.backward", xr, f.dModel, T, c)
	}

	f.W2.AddGrad(utils.Dot(f.act.T(), dY))
	f.B2.AddGrad(utils.ColSums(dY))

	dAct := utils.Dot(dY, f.W2.Value.T())
	dPre := utils.MulElem(dAct, f.Act.Prime(f.pre))

	f.W1.AddGrad(utils.Dot(f.x.T(), dPre))
	f.B1.AddGrad(utils.ColSums(dPre))

	return utils.Dot(dPre, f.W1.Value.T()), nil
}

// Parameters returns the four learnable tensors.
func (f *FeedForward) Parameters() []*Parameter {
	return []*Parameter{f.W1, f.B1, f.W2, f.B2}
}
