// Package vocab provides the bidirectional token/id mapping used by the
// embedding layer and the dataset pipeline.
//
// A Vocabulary is built once before training and is read-only afterward:
// all lookups are purely functional.
package vocab

import (
	"sort"
	"strings"
	"unicode"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
)

// Reserved tokens. They occupy the lowest ids in every vocabulary so their
// positions are stable across runs.
const (
	PadToken = "<pad>"
	UnkToken = "<unk>"
	EndToken = "</s>"
)

var special = []string{PadToken, UnkToken, EndToken}

// Vocabulary maps tokens to dense 0-based ids and back. The mapping is a
// bijection over its domain.
type Vocabulary struct {
	tokenToID map[string]int
	idToToken []string
}

// New builds a vocabulary from an ordered token list. Special tokens are
// prepended; duplicates in the input are dropped, keeping first occurrence.
func New(tokens []string) *Vocabulary {
	v := &Vocabulary{tokenToID: make(map[string]int, len(tokens)+len(special))}
	for _, t := range special {
		v.add(t)
	}
	for _, t := range tokens {
		v.add(t)
	}
	return v
}

// Build constructs a deterministic vocabulary from raw corpora: tokens are
// collected with SplitText, deduplicated, and sorted, so re-running on
// identical input yields identical ids.
func Build(corpora ...[]string) *Vocabulary {
	seen := make(map[string]struct{})
	for _, texts := range corpora {
		for _, text := range texts {
			for _, tok := range SplitText(text) {
				seen[tok] = struct{}{}
			}
		}
	}
	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return New(tokens)
}

func (v *Vocabulary) add(tok string) {
	if _, ok := v.tokenToID[tok]; ok {
		return
	}
	v.tokenToID[tok] = len(v.idToToken)
	v.idToToken = append(v.idToToken, tok)
}

// Encode returns the id for tok.
func (v *Vocabulary) Encode(tok string) (int, bool) {
	id, ok := v.tokenToID[tok]
	return id, ok
}

// EncodeOrErr returns the id for tok or an UnknownToken failure.
func (v *Vocabulary) EncodeOrErr(tok string) (int, error) {
	id, ok := v.tokenToID[tok]
	if !ok {
		return 0, &errs.UnknownTokenError{Token: tok}
	}
	return id, nil
}

// Decode returns the token for id.
func (v *Vocabulary) Decode(id int) (string, bool) {
	if id < 0 || id >= len(v.idToToken) {
		return "", false
	}
	return v.idToToken[id], true
}

// DecodeOrErr returns the token for id or an InvalidID failure.
func (v *Vocabulary) DecodeOrErr(id int) (string, error) {
	tok, ok := v.Decode(id)
	if !ok {
		return "", &errs.InvalidIDError{ID: id, Size: v.Size()}
	}
	return tok, nil
}

// Size returns the vocabulary cardinality.
func (v *Vocabulary) Size() int { return len(v.idToToken) }

// Contains reports whether tok is in the vocabulary.
func (v *Vocabulary) Contains(tok string) bool {
	_, ok := v.tokenToID[tok]
	return ok
}

// Tokens returns the id-ordered token list. The slice is shared; callers
// must not mutate it.
func (v *Vocabulary) Tokens() []string { return v.idToToken }

// PadID returns the padding token id.
func (v *Vocabulary) PadID() int { return v.tokenToID[PadToken] }

// UnknownID returns the unknown token id.
func (v *Vocabulary) UnknownID() int { return v.tokenToID[UnkToken] }

// EndID returns the end-of-sequence token id.
func (v *Vocabulary) EndID() int { return v.tokenToID[EndToken] }

// EncodeText tokenizes raw text and maps every token to an id, substituting
// the unknown id for out-of-vocabulary tokens.
func (v *Vocabulary) EncodeText(text string) []int {
	toks := SplitText(text)
	ids := make([]int, 0, len(toks))
	for _, tok := range toks {
		if id, ok := v.tokenToID[tok]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, v.UnknownID())
		}
	}
	return ids
}

// DecodeIDs renders ids back into a space-joined string, skipping padding.
func (v *Vocabulary) DecodeIDs(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		tok, ok := v.Decode(id)
		if !ok || tok == PadToken {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}

// SplitText breaks text on whitespace, then splits punctuation off words so
// "mountains." yields ["mountains", "."]. The end-of-sequence marker is
// passed through intact.
func SplitText(text string) []string {
	var out []string
	for _, word := range strings.Fields(text) {
		if word == EndToken {
			out = append(out, word)
			continue
		}
		var cur strings.Builder
		for _, c := range word {
			if unicode.IsPunct(c) || unicode.IsSymbol(c) {
				if cur.Len() > 0 {
					out = append(out, cur.String())
					cur.Reset()
				}
				out = append(out, string(c))
			} else {
				cur.WriteRune(c)
			}
		}
		if cur.Len() > 0 {
			out = append(out, cur.String())
		}
	}
	return out
}

// Stats summarizes a vocabulary for logging.
type Stats struct {
	TotalTokens int
	HasEndToken bool
	HasUnkToken bool
}

// Statistics returns summary counts for logging.
func (v *Vocabulary) Statistics() Stats {
	return Stats{
		TotalTokens: v.Size(),
		HasEndToken: v.Contains(EndToken),
		HasUnkToken: v.Contains(UnkToken),
	}
}
