package model

import (
	"fmt"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/utils"
)

// Block is one pre-norm transformer layer:
//
//	x1 = x + Attention(LN1(x))
//	y  = x1 + FeedForward(LN2(x1))
//
// The residual stream carries the raw input past each sublayer, so
// gradients flow to the input both through the sublayer and directly.
type Block struct {
	Ln1  *LayerNorm
	Attn *Attention
	Ln2  *LayerNorm
	FF   *FeedForward
}

// NewBlock wires the two sublayers and their norms.
func NewBlock(idx, dModel, hidden, heads int, act utils.ActivationKind, src xrand.Source) *Block {
	name := fmt.Sprintf("block%d", idx)
	return &Block{
		Ln1:  NewLayerNorm(name+".ln1", dModel),
		Attn: NewAttention(name+".attn", dModel, heads, src),
		Ln2:  NewLayerNorm(name+".ln2", dModel),
		FF:   NewFeedForward(name+".ff", dModel, hidden, act, src),
	}
}

// Forward runs both sublayers over X (T x d).
func (b *Block) Forward(X *mat.Dense) (*mat.Dense, error) {
	n1, err := b.Ln1.Forward(X)
	if err != nil {
		return nil, err
	}
	a, err := b.Attn.Forward(n1)
	if err != nil {
		return nil, err
	}
	x1 := utils.Add(X, a)

	n2, err := b.Ln2.Forward(x1)
	if err != nil {
		return nil, err
	}
	f, err := b.FF.Forward(n2)
	if err != nil {
		return nil, err
	}
	return utils.Add(x1, f), nil
}

// Backward reverses the two residual sublayers, accumulating parameter
// gradients and returning dX.
func (b *Block) Backward(dY *mat.Dense) (*mat.Dense, error) {
	dN2, err := b.FF.Backward(dY)
	if err != nil {
		return nil, err
	}
	dLn2, err := b.Ln2.Backward(dN2)
	if err != nil {
		return nil, err
	}
	dX1 := utils.Add(dY, dLn2)

	dN1, err := b.Attn.Backward(dX1)
	if err != nil {
		return nil, err
	}
	dLn1, err := b.Ln1.Backward(dN1)
	if err != nil {
		return nil, err
	}
	return utils.Add(dX1, dLn1), nil
}

// Parameters returns the block's tensors in sublayer order.
func (b *Block) Parameters() []*Parameter {
	var out []*Parameter
	out = append(out, b.Ln1.Parameters()...)
	out = append(out, b.Attn.Parameters()...)
	out = append(out, b.Ln2.Parameters()...)
	out = append(out, b.FF.Parameters()...)
	return out
}
