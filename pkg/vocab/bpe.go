package vocab

import (
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/bpe"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
)

// BPE wraps a trained subword tokenizer as an alternative to the word-level
// Vocabulary. The id space comes from the tokenizer's own vocabulary.
type BPE struct {
	tok   *tk.Tokenizer
	vocab *Vocabulary
}

// TrainOrLoadBPE loads a persisted tokenizer from tokPath, or trains one on
// the corpus files and saves it there.
func TrainOrLoadBPE(corpusPaths []string, tokPath string, vocabSize int) (*BPE, error) {
	if _, err := os.Stat(tokPath); err == nil {
		t, err := pretrained.FromFile(tokPath)
		if err != nil {
			return nil, errs.DataLoad("load tokenizer %s: %v", tokPath, err)
		}
		return fromTokenizer(t)
	}

	m, err := bpe.DefaultBPE()
	if err != nil {
		return nil, errs.DataLoad("new BPE model: %v", err)
	}
	t := tk.NewTokenizer(m)
	t.WithNormalizer(normalizer.NewSequence([]normalizer.Normalizer{
		normalizer.NewNFKC(),
		normalizer.Lowercase(),
	}))
	t.WithPreTokenizer(pretokenizer.NewWhitespaceSplit())

	tr := bpe.NewBpeTrainer(0, vocabSize)
	tr.SpecialTokens = []tk.AddedToken{
		tk.NewAddedToken(PadToken, true),
		tk.NewAddedToken(UnkToken, true),
		tk.NewAddedToken(EndToken, true),
	}

	if err := t.Train(tr, corpusPaths); err != nil {
		return nil, errs.DataLoad("train tokenizer: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(tokPath), 0o755); err != nil {
		return nil, err
	}
	if err := t.Save(tokPath, false); err != nil {
		return nil, errs.DataLoad("save tokenizer %s: %v", tokPath, err)
	}
	return fromTokenizer(t)
}

func fromTokenizer(t *tk.Tokenizer) (*BPE, error) {
	raw := t.GetVocab(true)
	idToToken := make([]string, len(raw))
	tokenToID := make(map[string]int, len(raw))
	for tok, id := range raw {
		if id < 0 || id >= len(raw) {
			return nil, errs.DataLoad("tokenizer vocabulary has non-dense id %d", id)
		}
		idToToken[id] = tok
		tokenToID[tok] = id
	}
	return &BPE{
		tok:   t,
		vocab: &Vocabulary{tokenToID: tokenToID, idToToken: idToToken},
	}, nil
}

// Vocabulary exposes the tokenizer's id space through the standard lookup
// surface.
func (b *BPE) Vocabulary() *Vocabulary { return b.vocab }

// EncodeText encodes raw text into subword token ids.
func (b *BPE) EncodeText(text string) ([]int, error) {
	enc, err := b.tok.EncodeSingle(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(enc.Ids))
	for i, v := range enc.Ids {
		ids[i] = int(v)
	}
	return ids, nil
}
