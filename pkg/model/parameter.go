// Package model implements the transformer forward/backward engine: token
// embedding, stacked pre-norm blocks of causal self-attention and
// position-wise feed-forward layers, and the output projection with its
// cross-entropy loss.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Parameter is a named weight tensor owned by exactly one layer, paired
// with a gradient accumulator of identical shape. Gradients are zeroed at
// the start of each backward pass and summed into during backpropagation;
// only the optimizer mutates Value.
type Parameter struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParameter allocates a parameter with the given contents (nil data
// means zeros) and a zero gradient accumulator.
func NewParameter(name string, rows, cols int, data []float64) *Parameter {
	return &Parameter{
		Name:  name,
		Value: mat.NewDense(rows, cols, data),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Dims returns the parameter shape.
func (p *Parameter) Dims() (int, int) { return p.Value.Dims() }

// ZeroGrad clears the gradient accumulator.
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

// AddGrad sums g into the accumulator. Shape disagreement here is a
// programming error, not a recoverable condition.
func (p *Parameter) AddGrad(g mat.Matrix) {
	pr, pc := p.Grad.Dims()
	gr, gc := g.Dims()
	if gr != pr || gc != pc {
		panic(fmt.Sprintf("parameter %s: grad shape (%dx%d) != (%dx%d)", p.Name, gr, gc, pr, pc))
	}
	p.Grad.Add(p.Grad, g)
}

// Elements returns the number of scalar values in the parameter.
func (p *Parameter) Elements() int {
	r, c := p.Value.Dims()
	return r * c
}
