package trainer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/SinanGncgl/RustGPT/pkg/dataset"
	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/metrics"
	"github.com/SinanGncgl/RustGPT/pkg/model"
	"github.com/SinanGncgl/RustGPT/pkg/optimizer"
	"github.com/SinanGncgl/RustGPT/pkg/params"
	"github.com/SinanGncgl/RustGPT/pkg/vocab"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildSession(t *testing.T) (*Session, []dataset.Example) {
	t.Helper()
	cfg := params.Default()
	cfg.Model = params.ModelConfig{EmbeddingDim: 32, HiddenDim: 48, MaxSeqLen: 16, NumBlocks: 2, NumHeads: 4}
	cfg.Training.Shuffle = true
	cfg.Training.CheckpointEnabled = false

	texts := []string{
		"the sun rises in the east",
		"rain falls from dark clouds",
		"mountains rise above the plains",
		"rivers flow toward the sea",
	}
	v := vocab.Build(texts)
	m, err := model.New(cfg.Model, v, cfg.Training.Seed)
	if err != nil {
		t.Fatal(err)
	}
	tr := cfg.Training
	opt := optimizer.New(0.01, tr.AdamBeta1, tr.AdamBeta2, tr.AdamEps, tr.GradientClip, m.Parameters())

	s := &Session{
		Model:     m,
		Opt:       opt,
		Collector: metrics.NewCollector(0),
		Cfg:       cfg,
		Log:       quietLogger(),
	}
	return s, dataset.BuildExamples(v, texts, cfg.Model.MaxSeqLen)
}

func TestTrainLossDecreasesOnToyCorpus(t *testing.T) {
	s, examples := buildSession(t)

	first, err := s.Model.Loss(examples[0].Input, examples[0].Target)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Train(context.Background(), "pretraining", examples, 5); err != nil {
		t.Fatal(err)
	}
	after, err := s.Model.Loss(examples[0].Input, examples[0].Target)
	if err != nil {
		t.Fatal(err)
	}
	if after >= first {
		t.Fatalf("loss did not decrease: %.4f -> %.4f", first, after)
	}
	if got := s.Opt.StepCount(); got != 5*len(examples) {
		t.Fatalf("optimizer steps = %d, want %d", got, 5*len(examples))
	}
}

func TestTrainEpochsNumberFromOne(t *testing.T) {
	s, examples := buildSession(t)
	events := make(chan Event, 1024)
	s.Events = events

	if err := s.Train(context.Background(), "pretraining", examples, 3); err != nil {
		t.Fatal(err)
	}
	close(events)

	var epochs []int
	for ev := range events {
		if ev.Phase == EpochComplete {
			epochs = append(epochs, ev.Epoch)
		}
	}
	want := []int{1, 2, 3}
	if len(epochs) != len(want) {
		t.Fatalf("saw %d epoch events, want %d", len(epochs), len(want))
	}
	for i, e := range epochs {
		if e != want[i] {
			t.Fatalf("epoch sequence %v, want %v", epochs, want)
		}
	}
}

func TestTrainStopsOnCancelledContext(t *testing.T) {
	s, examples := buildSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Train(ctx, "pretraining", examples, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s.Opt.StepCount() != 0 {
		t.Fatalf("%d steps applied after pre-cancelled context", s.Opt.StepCount())
	}
	if s.Phase() != Idle {
		t.Fatalf("phase = %v after cancellation, want Idle", s.Phase())
	}
}

func TestTrainRejectsEmptyExamples(t *testing.T) {
	s, _ := buildSession(t)
	err := s.Train(context.Background(), "pretraining", nil, 1)
	if !errors.Is(err, errs.ErrDataLoad) {
		t.Fatalf("err = %v, want ErrDataLoad", err)
	}
}

func TestShuffledTrainingIsReproducible(t *testing.T) {
	run := func() float64 {
		s, examples := buildSession(t)
		if err := s.Train(context.Background(), "pretraining", examples, 2); err != nil {
			t.Fatal(err)
		}
		loss, err := s.Model.Loss(examples[0].Input, examples[0].Target)
		if err != nil {
			t.Fatal(err)
		}
		return loss
	}
	if run() != run() {
		t.Fatal("two identically seeded runs diverged")
	}
}
