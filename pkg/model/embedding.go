package model

import (
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/utils"
)

// Embedding maps token ids to learned vectors and adds a learned position
// table, so sequences of equal length always receive identical positional
// offsets.
type Embedding struct {
	Token *Parameter // (vocabSize x d)
	Pos   *Parameter // (maxSeqLen x d)

	dim       int
	maxSeqLen int

	// backward cache, valid for one forward/backward cycle
	lastIDs []int
}

// NewEmbedding initializes the token and position tables from the seeded
// source.
func NewEmbedding(vocabSize, dim, maxSeqLen int, src xrand.Source) *Embedding {
	return &Embedding{
		Token:     NewParameter("embed.token", vocabSize, dim, utils.RandomArray(vocabSize*dim, float64(dim), src)),
		Pos:       NewParameter("embed.pos", maxSeqLen, dim, utils.RandomArray(maxSeqLen*dim, float64(dim), src)),
		dim:       dim,
		maxSeqLen: maxSeqLen,
	}
}

// Forward returns a (T x d) matrix whose row t is the embedding of ids[t]
// plus the position-t offset.
func (e *Embedding) Forward(ids []int) (*mat.Dense, error) {
	T := len(ids)
	if T == 0 {
		return nil, errs.Shape("embedding.forward", 1, e.dim, 0, e.dim)
	}
	if T > e.maxSeqLen {
		return nil, errs.Shape("embedding.forward", e.maxSeqLen, e.dim, T, e.dim)
	}
	vocabSize, _ := e.Token.Dims()
	out := mat.NewDense(T, e.dim, nil)
	for t, id := range ids {
		if id < 0 || id >= vocabSize {
			return nil, &errs.InvalidIDError{ID: id, Size: vocabSize}
		}
		for j := 0; j < e.dim; j++ {
			out.Set(t, j, e.Token.Value.At(id, j)+e.Pos.Value.At(t, j))
		}
	}
	e.lastIDs = ids
	return out, nil
}

// Backward scatter-adds dY rows into the token table rows used by the last
// forward pass. Rows used multiple times accumulate, not overwrite. The
// embedding is the first layer, so no upstream gradient is returned.
func (e *Embedding) Backward(dY *mat.Dense) error {
	r, c := dY.Dims()
	if r != len(e.lastIDs) || c != e.dim {
		return errs.Shape("embedding.backward", len(e.lastIDs), e.dim, r, c)
	}
	for t, id := range e.lastIDs {
		for j := 0; j < e.dim; j++ {
			g := dY.At(t, j)
			e.Token.Grad.Set(id, j, e.Token.Grad.At(id, j)+g)
			e.Pos.Grad.Set(t, j, e.Pos.Grad.At(t, j)+g)
		}
	}
	return nil
}

// Parameters returns the embedding's learnable tensors.
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Token, e.Pos}
}
