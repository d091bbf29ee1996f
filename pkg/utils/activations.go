package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ActivationKind selects the feed-forward nonlinearity. The set is closed:
// each kind pairs a forward formula with its exact derivative.
type ActivationKind int

const (
	// ActGELU is the tanh-approximated GELU used by GPT-style models.
	ActGELU ActivationKind = iota
	// ActReLU is max(0, x).
	ActReLU
)

func (k ActivationKind) String() string {
	switch k {
	case ActGELU:
		return "gelu"
	case ActReLU:
		return "relu"
	}
	return "unknown"
}

const geluK = 0.7978845608028654 // sqrt(2/pi)

func geluApply(_, _ int, x float64) float64 {
	t := geluK * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + math.Tanh(t))
}

func reluApply(_, _ int, x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Activate applies the nonlinearity element-wise.
func (k ActivationKind) Activate(m mat.Matrix) *mat.Dense {
	switch k {
	case ActReLU:
		return Apply(reluApply, m)
	default:
		return Apply(geluApply, m)
	}
}

// Prime returns the element-wise derivative evaluated at the
// pre-activation values in m.
func (k ActivationKind) Prime(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	switch k {
	case ActReLU:
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if m.At(i, j) > 0 {
					out.Set(i, j, 1)
				}
			}
		}
	default:
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				x := m.At(i, j)
				t := geluK * (x + 0.044715*x*x*x)
				th := math.Tanh(t)
				cosh := math.Cosh(t)
				sech2 := 1.0 / (cosh * cosh)
				dt := geluK * (1.0 + 3.0*0.044715*x*x)
				out.Set(i, j, 0.5*(1.0+th)+0.5*x*sech2*dt)
			}
		}
	}
	return out
}
