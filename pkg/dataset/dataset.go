// Package dataset loads the pretraining and instruction-tuning corpora and
// turns raw text into token id training pairs.
//
// The engine itself never touches files: it consumes the []Example slices
// produced here.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"math/rand"
	"os"
	"strings"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/vocab"
)

// Format selects the on-disk encoding of a corpus file.
type Format int

const (
	// JSON is a single array of strings.
	JSON Format = iota
	// CSV joins each record's fields with commas, one sample per row.
	CSV
)

// ParseFormat maps a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	}
	return JSON, errs.Config("data.format", "unsupported format %q", s)
}

// Dataset holds both corpora as raw text samples.
type Dataset struct {
	Pretraining []string
	Chat        []string
}

// Load reads both corpus files in the given format.
func Load(pretrainingPath, chatPath string, format Format) (*Dataset, error) {
	pre, err := loadFile(pretrainingPath, format)
	if err != nil {
		return nil, err
	}
	chat, err := loadFile(chatPath, format)
	if err != nil {
		return nil, err
	}
	d := &Dataset{Pretraining: pre, Chat: chat}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func loadFile(path string, format Format) ([]string, error) {
	switch format {
	case CSV:
		return fromCSV(path)
	default:
		return fromJSON(path)
	}
}

func fromJSON(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.DataLoad("read %s: %v", path, err)
	}
	var data []string
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errs.DataLoad("parse %s: %v", path, err)
	}
	return data, nil
}

func fromCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.DataLoad("open %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errs.DataLoad("read %s: %v", path, err)
	}
	data := make([]string, 0, len(records))
	for _, rec := range records {
		data = append(data, strings.Join(rec, ","))
	}
	return data, nil
}

// TotalSamples returns the combined sample count.
func (d *Dataset) TotalSamples() int {
	return len(d.Pretraining) + len(d.Chat)
}

// Validate rejects datasets with no usable samples.
func (d *Dataset) Validate() error {
	if len(d.Pretraining) == 0 && len(d.Chat) == 0 {
		return errs.DataLoad("both corpora are empty")
	}
	return nil
}

// Example is one immutable training pair: input ids and next-token targets
// of equal length.
type Example struct {
	Input  []int
	Target []int
}

// BuildExamples tokenizes each text, appends the end-of-sequence token, and
// windows the id sequence to at most maxSeqLen+1 tokens, producing
// shifted-by-one input/target pairs. Texts shorter than two tokens are
// skipped.
func BuildExamples(v *vocab.Vocabulary, texts []string, maxSeqLen int) []Example {
	out := make([]Example, 0, len(texts))
	for _, text := range texts {
		ids := v.EncodeText(text)
		ids = append(ids, v.EndID())
		if len(ids) > maxSeqLen+1 {
			ids = ids[:maxSeqLen+1]
		}
		if len(ids) < 2 {
			continue
		}
		out = append(out, Example{
			Input:  ids[:len(ids)-1],
			Target: ids[1:],
		})
	}
	return out
}

// Shuffle returns a permuted copy of examples driven by the given seed, so
// the order is reproducible across runs.
func Shuffle(examples []Example, seed int64) []Example {
	out := make([]Example, len(examples))
	copy(out, examples)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
