// Package params holds the read-only run configuration.
//
// A Config is loaded once at startup (file, environment, CLI overrides),
// validated, and then passed by value through the engine. Nothing in this
// package is mutated after Load returns.
package params

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
)

// Config is the top-level run configuration.
type Config struct {
	Model    ModelConfig    `json:"model"`
	Training TrainingConfig `json:"training"`
	Data     DataConfig     `json:"data"`
	Output   OutputConfig   `json:"output"`
}

// ModelConfig sets the transformer dimensions.
type ModelConfig struct {
	EmbeddingDim int `json:"embedding_dim"`
	HiddenDim    int `json:"hidden_dim"`
	MaxSeqLen    int `json:"max_seq_len"`
	NumBlocks    int `json:"num_blocks"`
	NumHeads     int `json:"num_heads"`
	// VocabSize 0 means the vocabulary is sized from the data.
	VocabSize int `json:"vocab_size"`
}

// TrainingConfig sets the two-phase training schedule and optimizer knobs.
type TrainingConfig struct {
	PretrainingEpochs int     `json:"pretraining_epochs"`
	FinetuningEpochs  int     `json:"finetuning_epochs"`
	PretrainingLR     float64 `json:"pretraining_lr"`
	FinetuningLR      float64 `json:"finetuning_lr"`
	GradientClip      float64 `json:"gradient_clip"`
	AdamBeta1         float64 `json:"adam_beta1"`
	AdamBeta2         float64 `json:"adam_beta2"`
	AdamEps           float64 `json:"adam_eps"`
	Shuffle           bool    `json:"shuffle"`
	Seed              int64   `json:"seed"`
	CheckpointEnabled bool    `json:"checkpoint_enabled"`
	// CheckpointInterval is in epochs.
	CheckpointInterval int `json:"checkpoint_interval"`
	MetricsWindow      int `json:"metrics_window"`
}

// DataConfig locates the corpora.
type DataConfig struct {
	PretrainingData  string `json:"pretraining_data"`
	ChatTrainingData string `json:"chat_training_data"`
	// Format is "json" or "csv".
	Format string `json:"format"`
	// Tokenizer is "word" (corpus-built vocabulary) or "bpe".
	Tokenizer string `json:"tokenizer"`
	// TokenizerPath is where a trained BPE tokenizer is persisted.
	TokenizerPath string `json:"tokenizer_path"`
}

// OutputConfig controls checkpoints and logging.
type OutputConfig struct {
	CheckpointDir  string `json:"checkpoint_dir"`
	MaxCheckpoints int    `json:"max_checkpoints"`
	LogLevel       string `json:"log_level"`
	ShowProgress   bool   `json:"show_progress"`
}

// Default returns the stock configuration for small experiments.
func Default() Config {
	return Config{
		Model: ModelConfig{
			EmbeddingDim: 128,
			HiddenDim:    256,
			MaxSeqLen:    80,
			NumBlocks:    3,
			NumHeads:     4,
		},
		Training: TrainingConfig{
			PretrainingEpochs:  100,
			FinetuningEpochs:   100,
			PretrainingLR:      0.0005,
			FinetuningLR:       0.0001,
			GradientClip:       5.0,
			AdamBeta1:          0.9,
			AdamBeta2:          0.999,
			AdamEps:            1e-8,
			Shuffle:            false,
			Seed:               42,
			CheckpointEnabled:  true,
			CheckpointInterval: 10,
			MetricsWindow:      100,
		},
		Data: DataConfig{
			PretrainingData:  "data/pretraining_data.json",
			ChatTrainingData: "data/chat_training_data.json",
			Format:           "json",
			Tokenizer:        "word",
			TokenizerPath:    "data/tokenizer.json",
		},
		Output: OutputConfig{
			CheckpointDir:  "./checkpoints",
			MaxCheckpoints: 3,
			LogLevel:       "info",
			ShowProgress:   true,
		},
	}
}

// Load reads a JSON config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errs.Config("file", "read %s: %v", path, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errs.Config("file", "parse %s: %v", path, err)
	}
	return cfg, nil
}

// FromEnv applies LLM_* environment overrides in place.
func (c *Config) FromEnv() error {
	if err := envInt("LLM_EMBEDDING_DIM", &c.Model.EmbeddingDim); err != nil {
		return err
	}
	if err := envInt("LLM_HIDDEN_DIM", &c.Model.HiddenDim); err != nil {
		return err
	}
	if err := envInt("LLM_MAX_SEQ_LEN", &c.Model.MaxSeqLen); err != nil {
		return err
	}
	if err := envInt("LLM_NUM_BLOCKS", &c.Model.NumBlocks); err != nil {
		return err
	}
	if err := envInt("LLM_NUM_HEADS", &c.Model.NumHeads); err != nil {
		return err
	}
	if err := envFloat("LLM_PRETRAINING_LR", &c.Training.PretrainingLR); err != nil {
		return err
	}
	if err := envFloat("LLM_FINETUNING_LR", &c.Training.FinetuningLR); err != nil {
		return err
	}
	return nil
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errs.Config(key, "invalid integer %q", v)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errs.Config(key, "invalid number %q", v)
	}
	*dst = f
	return nil
}

// Save writes the configuration as indented JSON.
func (c Config) Save(path string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errs.Config("file", "encode: %v", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// Validate fails fast before any forward pass runs.
func (c Config) Validate() error {
	if c.Model.EmbeddingDim <= 0 {
		return errs.Config("model.embedding_dim", "must be > 0, got %d", c.Model.EmbeddingDim)
	}
	if c.Model.HiddenDim <= 0 {
		return errs.Config("model.hidden_dim", "must be > 0, got %d", c.Model.HiddenDim)
	}
	if c.Model.MaxSeqLen <= 0 {
		return errs.Config("model.max_seq_len", "must be > 0, got %d", c.Model.MaxSeqLen)
	}
	if c.Model.NumBlocks <= 0 {
		return errs.Config("model.num_blocks", "must be > 0, got %d", c.Model.NumBlocks)
	}
	if c.Model.NumHeads <= 0 {
		return errs.Config("model.num_heads", "must be > 0, got %d", c.Model.NumHeads)
	}
	if c.Model.EmbeddingDim%c.Model.NumHeads != 0 {
		return errs.Config("model.num_heads",
			"embedding_dim %d not divisible by num_heads %d", c.Model.EmbeddingDim, c.Model.NumHeads)
	}
	if c.Training.PretrainingLR <= 0 {
		return errs.Config("training.pretraining_lr", "must be > 0, got %g", c.Training.PretrainingLR)
	}
	if c.Training.FinetuningLR <= 0 {
		return errs.Config("training.finetuning_lr", "must be > 0, got %g", c.Training.FinetuningLR)
	}
	if c.Training.AdamBeta1 <= 0 || c.Training.AdamBeta1 >= 1 {
		return errs.Config("training.adam_beta1", "must be in (0,1), got %g", c.Training.AdamBeta1)
	}
	if c.Training.AdamBeta2 <= 0 || c.Training.AdamBeta2 >= 1 {
		return errs.Config("training.adam_beta2", "must be in (0,1), got %g", c.Training.AdamBeta2)
	}
	if c.Training.AdamEps <= 0 {
		return errs.Config("training.adam_eps", "must be > 0, got %g", c.Training.AdamEps)
	}
	switch c.Data.Format {
	case "json", "csv":
	default:
		return errs.Config("data.format", "must be json or csv, got %q", c.Data.Format)
	}
	switch c.Data.Tokenizer {
	case "", "word", "bpe":
	default:
		return errs.Config("data.tokenizer", "must be word or bpe, got %q", c.Data.Tokenizer)
	}
	return nil
}
