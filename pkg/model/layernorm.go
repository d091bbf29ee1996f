package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
)

// lnEps keeps the variance strictly positive.
const lnEps = 1e-5

// LayerNorm normalizes each row of its input to zero mean and unit
// variance before a learned per-feature scale and shift. Gamma starts at
// one and Beta at zero, so a fresh layer is the identity up to the
// normalization itself.
type LayerNorm struct {
	Gamma *Parameter // (1 x d)
	Beta  *Parameter // (1 x d)

	dim int

	xhat   *mat.Dense // normalized rows of last forward
	invStd []float64  // per-row 1/sqrt(var+eps)
}

// NewLayerNorm allocates a d-wide normalization layer.
func NewLayerNorm(name string, dim int) *LayerNorm {
	gamma := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1.0
	}
	return &LayerNorm{
		Gamma: NewParameter(name+".gamma", 1, dim, gamma),
		Beta:  NewParameter(name+".beta", 1, dim, nil),
		dim:   dim,
	}
}

// Forward normalizes each row of X (T x d) and applies gamma and beta.
func (l *LayerNorm) Forward(X *mat.Dense) (*mat.Dense, error) {
	T, c := X.Dims()
	if c != l.dim {
		return nil, errs.Shape("layernorm.forward", T, l.dim, T, c)
	}
	l.xhat = mat.NewDense(T, c, nil)
	l.invStd = make([]float64, T)
	out := mat.NewDense(T, c, nil)
	inv := 1.0 / float64(c)
	for t := 0; t < T; t++ {
		mean := 0.0
		for j := 0; j < c; j++ {
			mean += X.At(t, j)
		}
		mean *= inv
		variance := 0.0
		for j := 0; j < c; j++ {
			d := X.At(t, j) - mean
			variance += d * d
		}
		variance *= inv
		istd := 1.0 / math.Sqrt(variance+lnEps)
		l.invStd[t] = istd
		for j := 0; j < c; j++ {
			xh := (X.At(t, j) - mean) * istd
			l.xhat.Set(t, j, xh)
			out.Set(t, j, xh*l.Gamma.Value.At(0, j)+l.Beta.Value.At(0, j))
		}
	}
	return out, nil
}

// Backward applies the exact layer-norm gradient per row. With
// g = dY*gamma, sum1 = sum(g), sum2 = sum(g*xhat):
//
//	dX[t,i] = (d*g[i] - sum1 - xhat[t,i]*sum2) * invStd[t] / d
func (l *LayerNorm) Backward(dY *mat.Dense) (*mat.Dense, error) {
	T, c := dY.Dims()
	if l.xhat == nil {
		return nil, errs.Shape("layernorm.backward", 0, l.dim, T, c)
	}
	if xr, _ := l.xhat.Dims(); c != l.dim || T != xr {
		return nil, errs.Shape("layernorm.backward", xr, l.dim, T, c)
	}
	dX := mat.NewDense(T, c, nil)
	d := float64(c)
	for t := 0; t < T; t++ {
		sum1, sum2 := 0.0, 0.0
		for j := 0; j < c; j++ {
			g := dY.At(t, j) * l.Gamma.Value.At(0, j)
			xh := l.xhat.At(t, j)
			sum1 += g
			sum2 += g * xh

			l.Gamma.Grad.Set(0, j, l.Gamma.Grad.At(0, j)+dY.At(t, j)*xh)
			l.Beta.Grad.Set(0, j, l.Beta.Grad.At(0, j)+dY.At(t, j))
		}
		istd := l.invStd[t]
		for j := 0; j < c; j++ {
			g := dY.At(t, j) * l.Gamma.Value.At(0, j)
			dX.Set(t, j, (d*g-sum1-l.xhat.At(t, j)*sum2)*istd/d)
		}
	}
	return dX, nil
}

// Parameters returns gamma and beta.
func (l *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{l.Gamma, l.Beta}
}
