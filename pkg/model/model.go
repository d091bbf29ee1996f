package model

import (
	"fmt"
	"math/rand"
	"strings"

	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/params"
	"github.com/SinanGncgl/RustGPT/pkg/utils"
	"github.com/SinanGncgl/RustGPT/pkg/vocab"
)

// LLM is the full language model: embedding, stacked blocks, and the
// output projection. One LLM instance is not safe for concurrent
// forward/backward use; the trainer owns it exclusively.
type LLM struct {
	Vocab  *vocab.Vocabulary
	Embed  *Embedding
	Blocks []*Block
	Proj   *Projection

	cfg params.ModelConfig

	lastDLogits *mat.Dense
}

// New builds a model for the given dimensions and vocabulary. All weight
// initialization flows from seed, so equal seeds give equal models.
func New(cfg params.ModelConfig, v *vocab.Vocabulary, seed int64) (*LLM, error) {
	if cfg.EmbeddingDim <= 0 || cfg.NumHeads <= 0 || cfg.EmbeddingDim%cfg.NumHeads != 0 {
		return nil, errs.Config("model", "embedding_dim %d not divisible by num_heads %d",
			cfg.EmbeddingDim, cfg.NumHeads)
	}
	if v.Size() == 0 {
		return nil, errs.Config("model", "empty vocabulary")
	}
	src := xrand.NewSource(uint64(seed))

	m := &LLM{
		Vocab: v,
		Embed: NewEmbedding(v.Size(), cfg.EmbeddingDim, cfg.MaxSeqLen, src),
		cfg:   cfg,
	}
	for i := 0; i < cfg.NumBlocks; i++ {
		m.Blocks = append(m.Blocks, NewBlock(i, cfg.EmbeddingDim, cfg.HiddenDim, cfg.NumHeads, utils.ActGELU, src))
	}
	m.Proj = NewProjection(cfg.EmbeddingDim, v.Size(), src)
	return m, nil
}

// Config returns the dimensions the model was built with.
func (m *LLM) Config() params.ModelConfig { return m.cfg }

// MaxSeqLen returns the longest sequence the model accepts.
func (m *LLM) MaxSeqLen() int { return m.cfg.MaxSeqLen }

// Logits runs the forward pass and returns (T x vocabSize) logits.
func (m *LLM) Logits(ids []int) (*mat.Dense, error) {
	x, err := m.Embed.Forward(ids)
	if err != nil {
		return nil, err
	}
	for _, b := range m.Blocks {
		if x, err = b.Forward(x); err != nil {
			return nil, err
		}
	}
	return m.Proj.Forward(x)
}

// Loss runs a full forward pass and the cross-entropy loss against
// targets, caching the logit gradient for Backward.
func (m *LLM) Loss(ids, targets []int) (float64, error) {
	logits, err := m.Logits(ids)
	if err != nil {
		return 0, err
	}
	loss, dLogits, err := m.Proj.LossAndGrad(logits, targets)
	if err != nil {
		return 0, err
	}
	m.lastDLogits = dLogits
	return loss, nil
}

// Backward propagates the cached loss gradient through every layer,
// accumulating into each parameter's Grad. Call ZeroGrads first unless
// gradients should sum across examples.
func (m *LLM) Backward() error {
	if m.lastDLogits == nil {
		return errs.Numeric("model.backward", "no cached loss gradient; call Loss first")
	}
	d, err := m.Proj.Backward(m.lastDLogits)
	if err != nil {
		return err
	}
	for i := len(m.Blocks) - 1; i >= 0; i-- {
		if d, err = m.Blocks[i].Backward(d); err != nil {
			return err
		}
	}
	return m.Embed.Backward(d)
}

// Parameters returns every learnable tensor in a stable order: embedding,
// blocks front to back, projection. The optimizer and checkpoints rely on
// this order never changing for a given architecture.
func (m *LLM) Parameters() []*Parameter {
	out := m.Embed.Parameters()
	for _, b := range m.Blocks {
		out = append(out, b.Parameters()...)
	}
	return append(out, m.Proj.Parameters()...)
}

// ZeroGrads clears every gradient accumulator.
func (m *LLM) ZeroGrads() {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

// NumParameters returns the total scalar parameter count.
func (m *LLM) NumParameters() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Elements()
	}
	return n
}

// Describe returns a short human-readable architecture summary.
func (m *LLM) Describe() string {
	return fmt.Sprintf("%d blocks, %d heads, dim %d, hidden %d, vocab %d, %d parameters",
		m.cfg.NumBlocks, m.cfg.NumHeads, m.cfg.EmbeddingDim, m.cfg.HiddenDim,
		m.Vocab.Size(), m.NumParameters())
}

// Predict greedily extends the prompt until the end token or the length
// limit, returning only the generated continuation as text.
func (m *LLM) Predict(prompt string) (string, error) {
	return m.generate(prompt, nil, 0, 0)
}

// Generate extends the prompt by sampling from the output distribution
// with optional top-k and nucleus truncation. rng nil falls back to
// greedy decoding.
func (m *LLM) Generate(prompt string, rng *rand.Rand, topK int, topP float64) (string, error) {
	return m.generate(prompt, rng, topK, topP)
}

func (m *LLM) generate(prompt string, rng *rand.Rand, topK int, topP float64) (string, error) {
	ids := m.Vocab.EncodeText(prompt)
	if len(ids) == 0 {
		return "", errs.Shape("model.generate", 1, 1, 0, 0)
	}
	if len(ids) >= m.cfg.MaxSeqLen {
		ids = ids[len(ids)-m.cfg.MaxSeqLen+1:]
	}
	promptLen := len(ids)

	for len(ids) < m.cfg.MaxSeqLen {
		logits, err := m.Logits(ids)
		if err != nil {
			return "", err
		}
		last := utils.RowSoftmax(utils.LastRow(logits))

		var next int
		if rng == nil {
			next = utils.ArgmaxRow(last, 0)
		} else {
			next = utils.SampleFromProbs(mat.Row(nil, 0, last), topK, topP, rng)
		}
		if next == m.Vocab.EndID() {
			break
		}
		ids = append(ids, next)
	}

	var sb strings.Builder
	for i, id := range ids[promptLen:] {
		tok, ok := m.Vocab.Decode(id)
		if !ok || tok == vocab.PadToken {
			continue
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String(), nil
}
