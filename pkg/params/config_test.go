package params

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsIndivisibleHeads(t *testing.T) {
	cfg := Default()
	cfg.Model.EmbeddingDim = 10
	cfg.Model.NumHeads = 4
	if err := cfg.Validate(); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestValidateRejectsBadBetas(t *testing.T) {
	cfg := Default()
	cfg.Training.AdamBeta1 = 1.0
	if err := cfg.Validate(); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("beta1=1 err = %v, want ErrConfiguration", err)
	}
	cfg = Default()
	cfg.Training.AdamBeta2 = -0.1
	if err := cfg.Validate(); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("beta2<0 err = %v, want ErrConfiguration", err)
	}
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	cfg := Default()
	cfg.Data.Format = "xml"
	if err := cfg.Validate(); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	raw := `{"model": {"embedding_dim": 64}, "training": {"seed": 7}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.EmbeddingDim != 64 {
		t.Fatalf("embedding_dim = %d, want 64", cfg.Model.EmbeddingDim)
	}
	if cfg.Training.Seed != 7 {
		t.Fatalf("seed = %d, want 7", cfg.Training.Seed)
	}
	// untouched fields keep their defaults
	if cfg.Model.HiddenDim != Default().Model.HiddenDim {
		t.Fatalf("hidden_dim = %d, want default %d", cfg.Model.HiddenDim, Default().Model.HiddenDim)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/cfg.json"); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LLM_EMBEDDING_DIM", "96")
	t.Setenv("LLM_PRETRAINING_LR", "0.002")
	cfg := Default()
	if err := cfg.FromEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Model.EmbeddingDim != 96 {
		t.Fatalf("embedding_dim = %d, want 96", cfg.Model.EmbeddingDim)
	}
	if cfg.Training.PretrainingLR != 0.002 {
		t.Fatalf("pretraining_lr = %v, want 0.002", cfg.Training.PretrainingLR)
	}
}

func TestFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("LLM_NUM_HEADS", "four")
	cfg := Default()
	if err := cfg.FromEnv(); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	cfg := Default()
	cfg.Model.NumBlocks = 5
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Model.NumBlocks != 5 {
		t.Fatalf("num_blocks = %d after round trip, want 5", back.Model.NumBlocks)
	}
}
