package checkpoint

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/SinanGncgl/RustGPT/pkg/model"
	"github.com/SinanGncgl/RustGPT/pkg/optimizer"
	"github.com/SinanGncgl/RustGPT/pkg/params"
	"github.com/SinanGncgl/RustGPT/pkg/vocab"
)

func buildPair(t *testing.T, seed int64) (*model.LLM, *optimizer.Adam) {
	t.Helper()
	cfg := params.ModelConfig{EmbeddingDim: 8, HiddenDim: 12, MaxSeqLen: 6, NumBlocks: 1, NumHeads: 2}
	v := vocab.New([]string{"a", "b", "c"})
	m, err := model.New(cfg, v, seed)
	if err != nil {
		t.Fatal(err)
	}
	opt := optimizer.New(0.01, 0.9, 0.999, 1e-8, 5.0, m.Parameters())
	return m, opt
}

func stepOnce(t *testing.T, m *model.LLM, opt *optimizer.Adam) {
	t.Helper()
	if _, err := m.Loss([]int{3, 4}, []int{4, 5}); err != nil {
		t.Fatal(err)
	}
	m.ZeroGrads()
	if err := m.Backward(); err != nil {
		t.Fatal(err)
	}
	if _, err := opt.Step(m.Parameters()); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m, opt := buildPair(t, 1)
	stepOnce(t, m, opt)

	path := filepath.Join(t.TempDir(), "snap.gob")
	snap := Capture(m, opt, params.Default(), 7, 1.5)
	if err := snap.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Epoch != 7 || loaded.Loss != 1.5 {
		t.Fatalf("epoch/loss = %d/%v, want 7/1.5", loaded.Epoch, loaded.Loss)
	}

	m2, opt2 := buildPair(t, 2)
	if err := loaded.Restore(m2, opt2); err != nil {
		t.Fatal(err)
	}

	pa, pb := m.Parameters(), m2.Parameters()
	for i := range pa {
		r, c := pa[i].Dims()
		for x := 0; x < r; x++ {
			for y := 0; y < c; y++ {
				if pa[i].Value.At(x, y) != pb[i].Value.At(x, y) {
					t.Fatalf("%s not restored exactly", pa[i].Name)
				}
			}
		}
	}
	if opt2.StepCount() != opt.StepCount() {
		t.Fatalf("optimizer step = %d, want %d", opt2.StepCount(), opt.StepCount())
	}

	// a post-restore step must match the original trajectory
	stepOnce(t, m, opt)
	stepOnce(t, m2, opt2)
	for i := range pa {
		if math.Abs(pa[i].Value.At(0, 0)-pb[i].Value.At(0, 0)) > 1e-15 {
			t.Fatalf("%s diverged after restore", pa[i].Name)
		}
	}
}

func TestRestoreRejectsArchitectureMismatch(t *testing.T) {
	m, opt := buildPair(t, 1)
	snap := Capture(m, opt, params.Default(), 1, 0)

	cfg := params.ModelConfig{EmbeddingDim: 4, HiddenDim: 6, MaxSeqLen: 6, NumBlocks: 1, NumHeads: 2}
	other, err := model.New(cfg, vocab.New([]string{"a", "b", "c"}), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := snap.Restore(other, nil); err == nil {
		t.Fatal("restore into a different architecture succeeded")
	}
}

func TestManagerIntervalAndPrune(t *testing.T) {
	m, opt := buildPair(t, 1)
	dir := t.TempDir()
	mg := NewManager(dir, 2, 2)

	var written []string
	for epoch := 1; epoch <= 8; epoch++ {
		snap := Capture(m, opt, params.Default(), epoch, 0)
		path, err := mg.MaybeSave(snap)
		if err != nil {
			t.Fatal(err)
		}
		if path != "" {
			written = append(written, path)
		}
	}
	// epochs 2, 4, 6, 8 hit the interval
	if len(written) != 4 {
		t.Fatalf("wrote %d checkpoints, want 4", len(written))
	}
	files, _ := filepath.Glob(filepath.Join(dir, "checkpoint_epoch_*.gob"))
	if len(files) != 2 {
		t.Fatalf("%d files remain after pruning, want 2", len(files))
	}

	latest, err := mg.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Epoch != 8 {
		t.Fatalf("Latest epoch = %v, want 8", latest)
	}
}

func TestManagerLatestEmptyDir(t *testing.T) {
	mg := NewManager(t.TempDir(), 1, 3)
	snap, err := mg.Latest()
	if err != nil || snap != nil {
		t.Fatalf("Latest on empty dir = %v, %v; want nil, nil", snap, err)
	}
}
