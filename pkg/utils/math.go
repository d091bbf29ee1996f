// Package utils provides the gonum matrix helpers shared by every layer.
//
// Hidden states are row-major throughout the engine: a (T x d) mat.Dense
// holds one sequence position per row.
package utils

import (
	"math"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dot returns m * n as a fresh Dense.
func Dot(m, n mat.Matrix) *mat.Dense {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

// ToDense converts any mat.Matrix to *mat.Dense without copying when possible.
func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

// Add returns m + n.
func Add(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

// Sub returns m - n.
func Sub(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Sub(m, n)
	return o
}

// Scale returns s * m.
func Scale(s float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

// MulElem returns the element-wise product of m and n.
func MulElem(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

// Apply maps fn over m into a fresh Dense.
func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

// AddRowBias adds a (1 x c) bias row to every row of m.
func AddRowBias(m *mat.Dense, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	br, bc := bias.Dims()
	if br != 1 || bc != c {
		panic("AddRowBias: bias must be (1 x c)")
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j)+bias.At(0, j))
		}
	}
	return out
}

// ColSums returns the per-column sums of m as a (1 x c) row.
func ColSums(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(1, c, nil)
	for j := 0; j < c; j++ {
		s := 0.0
		for i := 0; i < r; i++ {
			s += m.At(i, j)
		}
		out.Set(0, j, s)
	}
	return out
}

// ZerosLike returns a zero matrix with a's shape.
func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

// OnesLike returns an all-ones matrix with a's shape.
func OnesLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}

// negInf stands in for -infinity in masks; finite so masked scores survive
// arithmetic before the softmax max-subtraction.
const negInf = -1e30

// CausalMask returns a (T x T) additive mask: 0 on and below the diagonal,
// a large negative value strictly above it.
func CausalMask(T int) *mat.Dense {
	out := mat.NewDense(T, T, nil)
	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			out.Set(i, j, negInf)
		}
	}
	return out
}

// RowSoftmax applies a numerically stable softmax independently to each row.
// The row maximum is subtracted before exponentiation.
func RowSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		mx := m.At(i, 0)
		for j := 1; j < c; j++ {
			if v := m.At(i, j); v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			e := math.Exp(m.At(i, j) - mx)
			out.Set(i, j, e)
			sum += e
		}
		inv := 1.0 / sum
		for j := 0; j < c; j++ {
			out.Set(i, j, out.At(i, j)*inv)
		}
	}
	return out
}

// RowSoftmaxMasked computes softmax(m + mask) row-wise with the same
// stabilization as RowSoftmax. mask must have m's shape.
func RowSoftmaxMasked(m, mask *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if mr, mc := mask.Dims(); mr != r || mc != c {
		panic("RowSoftmaxMasked: mask shape mismatch")
	}
	return RowSoftmax(Add(m, mask))
}

// SoftmaxBackward inverts the row-wise softmax Jacobian:
// for each row i, s = sum_k dA[i,k]*A[i,k]; dS[i,j] = A[i,j]*(dA[i,j]-s).
// Rows where A is zero (masked positions) receive zero gradient.
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for k := 0; k < c; k++ {
			s += dA.At(i, k) * A.At(i, k)
		}
		for j := 0; j < c; j++ {
			aj := A.At(i, j)
			dS.Set(i, j, aj*(dA.At(i, j)-s))
		}
	}
	return dS
}

// FroNorm returns the Frobenius norm of a.
func FroNorm(a *mat.Dense) float64 {
	r, c := a.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// GlobalNorm returns the L2 norm over the concatenation of all matrices.
func GlobalNorm(grads ...*mat.Dense) float64 {
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := FroNorm(g)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// ClipGrads rescales every gradient in place so their combined norm is at
// most maxNorm. Returns the scale applied (1.0 when no clip happened).
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	gn := GlobalNorm(grads...)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / gn
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return s
}

// AllFinite reports whether every element of every matrix is finite.
func AllFinite(ms ...*mat.Dense) bool {
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := m.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
		}
	}
	return true
}

// RandomArray draws size values uniformly from +-1/sqrt(fanIn) using the
// given seeded source, so identical seeds give identical initializations.
func RandomArray(size int, fanIn float64, src xrand.Source) []float64 {
	bound := 1.0 / math.Sqrt(fanIn+1e-12)
	u := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	out := make([]float64, size)
	for i := range out {
		out[i] = u.Rand()
	}
	return out
}

// OneHot returns a (1 x n) row with a single 1 at idx.
func OneHot(n, idx int) *mat.Dense {
	v := make([]float64, n)
	if idx >= 0 && idx < n {
		v[idx] = 1.0
	}
	return mat.NewDense(1, n, v)
}

// ArgmaxRow returns the index of the maximum value in row i of m.
func ArgmaxRow(m *mat.Dense, i int) int {
	_, c := m.Dims()
	best := 0
	bv := m.At(i, 0)
	for j := 1; j < c; j++ {
		if v := m.At(i, j); v > bv {
			bv = v
			best = j
		}
	}
	return best
}

// LastRow returns row r-1 of m as a (1 x c) copy.
func LastRow(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(1, c, nil)
	for j := 0; j < c; j++ {
		out.Set(0, j, m.At(r-1, j))
	}
	return out
}
