package utils

import (
	"math"
	"testing"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestRowSoftmaxSumsToOne(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, -1, 0, 1})
	p := RowSoftmax(m)
	for i := 0; i < 2; i++ {
		sum := 0.0
		for j := 0; j < 3; j++ {
			sum += p.At(i, j)
		}
		if math.Abs(sum-1.0) > 1e-12 {
			t.Fatalf("row %d sums to %v", i, sum)
		}
	}
}

func TestRowSoftmaxStableAtLargeMagnitudes(t *testing.T) {
	m := mat.NewDense(1, 3, []float64{1e6, 1e6 + 1, 1e6 - 1})
	p := RowSoftmax(m)
	if !AllFinite(p) {
		t.Fatal("softmax overflowed on large logits")
	}
	if p.At(0, 1) <= p.At(0, 0) || p.At(0, 0) <= p.At(0, 2) {
		t.Fatal("softmax ordering lost under large magnitudes")
	}
}

func TestCausalMaskZeroesFutureAttention(t *testing.T) {
	scores := mat.NewDense(3, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	a := RowSoftmaxMasked(scores, CausalMask(3))
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if a.At(i, j) != 0 {
				t.Fatalf("position %d attends to future %d: weight %v", i, j, a.At(i, j))
			}
		}
		sum := 0.0
		for j := 0; j <= i; j++ {
			sum += a.At(i, j)
		}
		if math.Abs(sum-1.0) > 1e-12 {
			t.Fatalf("masked row %d sums to %v", i, sum)
		}
	}
}

func TestSoftmaxBackwardMatchesFiniteDiff(t *testing.T) {
	s := mat.NewDense(1, 4, []float64{0.3, -0.7, 1.2, 0.1})
	dA := mat.NewDense(1, 4, []float64{0.5, -0.2, 0.9, 0.0})

	loss := func(sv *mat.Dense) float64 {
		a := RowSoftmax(sv)
		total := 0.0
		for j := 0; j < 4; j++ {
			total += dA.At(0, j) * a.At(0, j)
		}
		return total
	}

	a := RowSoftmax(s)
	dS := SoftmaxBackward(dA, a)

	eps := 1e-6
	for j := 0; j < 4; j++ {
		orig := s.At(0, j)
		s.Set(0, j, orig+eps)
		lp := loss(s)
		s.Set(0, j, orig-eps)
		lm := loss(s)
		s.Set(0, j, orig)

		num := (lp - lm) / (2 * eps)
		if math.Abs(num-dS.At(0, j)) > 1e-6 {
			t.Fatalf("dS[0,%d]: num=%.8g ana=%.8g", j, num, dS.At(0, j))
		}
	}
}

func TestClipGradsAppliesExactFactor(t *testing.T) {
	g1 := mat.NewDense(1, 2, []float64{3, 0})
	g2 := mat.NewDense(1, 2, []float64{0, 4})
	// global norm is 5
	scale := ClipGrads(1.0, g1, g2)
	if math.Abs(scale-0.2) > 1e-12 {
		t.Fatalf("scale = %v, want 0.2", scale)
	}
	if math.Abs(GlobalNorm(g1, g2)-1.0) > 1e-12 {
		t.Fatalf("post-clip norm = %v, want 1.0", GlobalNorm(g1, g2))
	}
}

func TestClipGradsLeavesSmallGradientsAlone(t *testing.T) {
	g := mat.NewDense(1, 2, []float64{0.3, 0.4})
	scale := ClipGrads(5.0, g)
	if scale != 1.0 {
		t.Fatalf("scale = %v, want 1.0", scale)
	}
	if g.At(0, 0) != 0.3 || g.At(0, 1) != 0.4 {
		t.Fatal("gradient under the threshold was rescaled")
	}
}

func TestAllFinite(t *testing.T) {
	ok := mat.NewDense(1, 2, []float64{1, 2})
	if !AllFinite(ok) {
		t.Fatal("finite matrix reported non-finite")
	}
	bad := mat.NewDense(1, 2, []float64{1, math.NaN()})
	if AllFinite(bad) {
		t.Fatal("NaN slipped through")
	}
	inf := mat.NewDense(1, 2, []float64{math.Inf(1), 2})
	if AllFinite(inf) {
		t.Fatal("Inf slipped through")
	}
}

func TestRandomArrayDeterministicPerSeed(t *testing.T) {
	a := RandomArray(16, 8, xrand.NewSource(7))
	b := RandomArray(16, 8, xrand.NewSource(7))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("element %d differs across identical seeds", i)
		}
	}
	bound := 1.0 / math.Sqrt(8)
	for i, v := range a {
		if v < -bound || v > bound {
			t.Fatalf("element %d = %v outside +-%v", i, v, bound)
		}
	}
}

func TestGELUPrimeMatchesFiniteDiff(t *testing.T) {
	xs := mat.NewDense(1, 5, []float64{-2, -0.5, 0, 0.5, 2})
	prime := ActGELU.Prime(xs)
	eps := 1e-6
	for j := 0; j < 5; j++ {
		x := xs.At(0, j)
		up := mat.NewDense(1, 1, []float64{x + eps})
		dn := mat.NewDense(1, 1, []float64{x - eps})
		num := (ActGELU.Activate(up).At(0, 0) - ActGELU.Activate(dn).At(0, 0)) / (2 * eps)
		if math.Abs(num-prime.At(0, j)) > 1e-6 {
			t.Fatalf("gelu'(%v): num=%.8g ana=%.8g", x, num, prime.At(0, j))
		}
	}
}
