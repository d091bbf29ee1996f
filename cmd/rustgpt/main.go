// Command rustgpt trains a small transformer language model from scratch
// and chats with it: pretraining on raw text, instruction tuning on chat
// transcripts, then an interactive prompt loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/SinanGncgl/RustGPT/pkg/checkpoint"
	"github.com/SinanGncgl/RustGPT/pkg/dataset"
	"github.com/SinanGncgl/RustGPT/pkg/metrics"
	"github.com/SinanGncgl/RustGPT/pkg/model"
	"github.com/SinanGncgl/RustGPT/pkg/optimizer"
	"github.com/SinanGncgl/RustGPT/pkg/params"
	"github.com/SinanGncgl/RustGPT/pkg/trainer"
	"github.com/SinanGncgl/RustGPT/pkg/tui"
	"github.com/SinanGncgl/RustGPT/pkg/vocab"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rustgpt:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "JSON config file (defaults apply when empty)")
		train      = flag.Bool("train", true, "run the training phases before the prompt loop")
		resume     = flag.String("checkpoint", "", "checkpoint file to resume from")
		logLevel   = flag.String("log-level", "", "debug, info, warn, or error")
		logJSON    = flag.Bool("log-json", false, "emit structured JSON logs")
		visualize  = flag.Bool("visualize", false, "show the live training dashboard")
		preData    = flag.String("pretraining-data", "", "override pretraining corpus path")
		chatData   = flag.String("chat-data", "", "override chat corpus path")
		outDir     = flag.String("output-dir", "", "override checkpoint directory")
	)
	flag.Parse()

	cfg := params.Default()
	if *configPath != "" {
		var err error
		if cfg, err = params.Load(*configPath); err != nil {
			return err
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return err
	}
	if *preData != "" {
		cfg.Data.PretrainingData = *preData
	}
	if *chatData != "" {
		cfg.Data.ChatTrainingData = *chatData
	}
	if *outDir != "" {
		cfg.Output.CheckpointDir = *outDir
	}
	if *logLevel != "" {
		cfg.Output.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.Output.LogLevel, *logJSON)
	slog.SetDefault(log)

	format, err := dataset.ParseFormat(cfg.Data.Format)
	if err != nil {
		return err
	}
	ds, err := dataset.Load(cfg.Data.PretrainingData, cfg.Data.ChatTrainingData, format)
	if err != nil {
		return err
	}
	log.Info("dataset loaded",
		"pretraining", len(ds.Pretraining), "chat", len(ds.Chat))

	v, encode, err := buildTokenizer(cfg, ds)
	if err != nil {
		return err
	}
	log.Info("vocabulary ready", "size", v.Size(), "tokenizer", cfg.Data.Tokenizer)

	m, err := model.New(cfg.Model, v, cfg.Training.Seed)
	if err != nil {
		return err
	}
	log.Info("model built", "summary", m.Describe())

	if *resume != "" {
		snap, err := checkpoint.Load(*resume)
		if err != nil {
			return err
		}
		if err := snap.Restore(m, nil); err != nil {
			return err
		}
		log.Info("checkpoint restored", "path", *resume, "epoch", snap.Epoch, "loss", snap.Loss)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *train {
		showSamples(log, m, "before training")

		pre := buildExamples(encode, v, ds.Pretraining, cfg.Model.MaxSeqLen)
		chat := buildExamples(encode, v, ds.Chat, cfg.Model.MaxSeqLen)

		if len(pre) > 0 {
			if err := runPhase(ctx, log, cfg, m, "pretraining", pre,
				cfg.Training.PretrainingEpochs, cfg.Training.PretrainingLR, *visualize); err != nil {
				return err
			}
		}
		if len(chat) > 0 {
			if err := runPhase(ctx, log, cfg, m, "finetuning", chat,
				cfg.Training.FinetuningEpochs, cfg.Training.FinetuningLR, *visualize); err != nil {
				return err
			}
		}
		showSamples(log, m, "after training")
	}

	return promptLoop(ctx, m, cfg.Training.Seed)
}

func newLogger(level string, jsonOut bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonOut {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// buildTokenizer returns the vocabulary plus the encode function examples
// are built with: word-level splitting or a trained BPE model.
func buildTokenizer(cfg params.Config, ds *dataset.Dataset) (*vocab.Vocabulary, func(string) []int, error) {
	if cfg.Data.Tokenizer == "bpe" {
		paths := []string{cfg.Data.PretrainingData, cfg.Data.ChatTrainingData}
		size := cfg.Model.VocabSize
		if size <= 0 {
			size = 2048
		}
		bpe, err := vocab.TrainOrLoadBPE(paths, cfg.Data.TokenizerPath, size)
		if err != nil {
			return nil, nil, err
		}
		enc := func(text string) []int {
			ids, err := bpe.EncodeText(text)
			if err != nil {
				return nil
			}
			return ids
		}
		return bpe.Vocabulary(), enc, nil
	}
	v := vocab.Build(ds.Pretraining, ds.Chat)
	return v, v.EncodeText, nil
}

// buildExamples mirrors dataset.BuildExamples but goes through the active
// encoder, so BPE and word tokenization share one path.
func buildExamples(encode func(string) []int, v *vocab.Vocabulary, texts []string, maxSeqLen int) []dataset.Example {
	out := make([]dataset.Example, 0, len(texts))
	for _, text := range texts {
		ids := append(encode(text), v.EndID())
		if len(ids) > maxSeqLen+1 {
			ids = ids[:maxSeqLen+1]
		}
		if len(ids) < 2 {
			continue
		}
		out = append(out, dataset.Example{Input: ids[:len(ids)-1], Target: ids[1:]})
	}
	return out
}

func runPhase(ctx context.Context, log *slog.Logger, cfg params.Config, m *model.LLM,
	name string, examples []dataset.Example, epochs int, lr float64, visualize bool) error {

	t := cfg.Training
	opt := optimizer.New(lr, t.AdamBeta1, t.AdamBeta2, t.AdamEps, t.GradientClip, m.Parameters())

	session := &trainer.Session{
		Model:     m,
		Opt:       opt,
		Collector: metrics.NewCollector(t.MetricsWindow),
		Cfg:       cfg,
		Log:       log,
	}
	if t.CheckpointEnabled {
		session.Manager = checkpoint.NewManager(
			filepath.Join(cfg.Output.CheckpointDir, name), t.CheckpointInterval, cfg.Output.MaxCheckpoints)
	}

	if !visualize {
		return session.Train(ctx, name, examples, epochs)
	}

	events := make(chan trainer.Event, 64)
	session.Events = events
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Train(ctx, name, examples, epochs)
		close(events)
	}()
	if err := tui.Run(events, cancel); err != nil {
		return err
	}
	if err := <-errCh; err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func showSamples(log *slog.Logger, m *model.LLM, label string) {
	prompts := []string{
		"What causes rain",
		"How do mountains form",
	}
	for _, p := range prompts {
		out, err := m.Predict(p)
		if err != nil {
			log.Warn("sample generation failed", "prompt", p, "err", err)
			continue
		}
		log.Info("sample", "stage", label, "prompt", p, "output", out)
	}
}

func promptLoop(ctx context.Context, m *model.LLM, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	fmt.Println("Enter a prompt (or 'quit' to exit):")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() || ctx.Err() != nil {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		out, err := m.Generate(line, rng, 40, 0.9)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		fmt.Println(out)
	}
}
