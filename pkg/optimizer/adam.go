// Package optimizer implements Adam over the model's parameter list with
// global gradient-norm clipping.
package optimizer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/model"
	"github.com/SinanGncgl/RustGPT/pkg/utils"
)

// Adam holds first and second moment estimates for every parameter and a
// single step counter shared by all of them. The counter advances once per
// Step call, never per parameter.
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Eps     float64
	MaxNorm float64 // global clip threshold, <= 0 disables clipping

	step int
	m    []*mat.Dense
	v    []*mat.Dense
}

// New allocates moment buffers matching each parameter's shape.
func New(lr, beta1, beta2, eps, maxNorm float64, ps []*model.Parameter) *Adam {
	a := &Adam{
		LR:      lr,
		Beta1:   beta1,
		Beta2:   beta2,
		Eps:     eps,
		MaxNorm: maxNorm,
		m:       make([]*mat.Dense, len(ps)),
		v:       make([]*mat.Dense, len(ps)),
	}
	for i, p := range ps {
		r, c := p.Dims()
		a.m[i] = mat.NewDense(r, c, nil)
		a.v[i] = mat.NewDense(r, c, nil)
	}
	return a
}

// StepCount returns how many updates have been applied.
func (a *Adam) StepCount() int { return a.step }

// Step clips the global gradient norm, then applies one bias-corrected
// Adam update to every parameter. The pre-clip norm is returned for
// metrics. If any gradient holds a NaN or Inf the whole update is skipped:
// no parameter moves, no moment changes, the step counter stays put, and a
// NumericInstability error is returned.
func (a *Adam) Step(ps []*model.Parameter) (float64, error) {
	if len(ps) != len(a.m) {
		return 0, errs.Numeric("adam.step", "parameter count %d != %d at construction", len(ps), len(a.m))
	}
	grads := make([]*mat.Dense, len(ps))
	for i, p := range ps {
		grads[i] = p.Grad
	}
	if !utils.AllFinite(grads...) {
		return 0, errs.Numeric("adam.step", "non-finite gradient, update skipped")
	}
	norm := utils.GlobalNorm(grads...)
	utils.ClipGrads(a.MaxNorm, grads...)

	a.step++
	c1 := 1.0 / (1.0 - math.Pow(a.Beta1, float64(a.step)))
	c2 := 1.0 / (1.0 - math.Pow(a.Beta2, float64(a.step)))

	for i, p := range ps {
		r, c := p.Dims()
		for row := 0; row < r; row++ {
			for col := 0; col < c; col++ {
				g := p.Grad.At(row, col)
				mv := a.Beta1*a.m[i].At(row, col) + (1.0-a.Beta1)*g
				vv := a.Beta2*a.v[i].At(row, col) + (1.0-a.Beta2)*g*g
				a.m[i].Set(row, col, mv)
				a.v[i].Set(row, col, vv)

				mHat := mv * c1
				vHat := vv * c2
				p.Value.Set(row, col, p.Value.At(row, col)-a.LR*mHat/(math.Sqrt(vHat)+a.Eps))
			}
		}
	}
	return norm, nil
}

// State exports the moment buffers and step counter for checkpointing.
// The returned slices alias the live buffers; callers copy before
// persisting.
func (a *Adam) State() (m, v []*mat.Dense, step int) {
	return a.m, a.v, a.step
}

// LoadState restores moments and the step counter from a checkpoint. Shapes
// must match the parameters the optimizer was built for.
func (a *Adam) LoadState(m, v []*mat.Dense, step int) error {
	if len(m) != len(a.m) || len(v) != len(a.v) {
		return errs.Checkpoint("optimizer state has %d/%d tensors, want %d", len(m), len(v), len(a.m))
	}
	for i := range m {
		mr, mc := m[i].Dims()
		ar, ac := a.m[i].Dims()
		if mr != ar || mc != ac {
			return errs.Checkpoint("optimizer moment %d is (%dx%d), want (%dx%d)", i, mr, mc, ar, ac)
		}
		a.m[i].Copy(m[i])
		a.v[i].Copy(v[i])
	}
	a.step = step
	return nil
}
