// Package trainer drives the epoch loop: forward, loss, backward,
// optimizer step, metrics, and checkpoints.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SinanGncgl/RustGPT/pkg/checkpoint"
	"github.com/SinanGncgl/RustGPT/pkg/dataset"
	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/metrics"
	"github.com/SinanGncgl/RustGPT/pkg/model"
	"github.com/SinanGncgl/RustGPT/pkg/optimizer"
	"github.com/SinanGncgl/RustGPT/pkg/params"
)

// Phase tracks where the session is inside one training step.
type Phase int

const (
	Idle Phase = iota
	ForwardPass
	LossComputed
	BackwardPass
	OptimizerStep
	EpochComplete
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ForwardPass:
		return "forward"
	case LossComputed:
		return "loss"
	case BackwardPass:
		return "backward"
	case OptimizerStep:
		return "optimizer"
	case EpochComplete:
		return "epoch-complete"
	}
	return "unknown"
}

// Event is one progress update pushed to observers (the dashboard, tests).
type Event struct {
	Phase    Phase
	Name     string // training phase label, e.g. "pretraining"
	Epoch    int
	Epochs   int
	Step     int
	Steps    int
	Loss     float64
	AvgLoss  float64
	GradNorm float64
	Done     bool
}

// Session owns one model/optimizer pair for the duration of a training
// phase. Not safe for concurrent use.
type Session struct {
	Model     *model.LLM
	Opt       *optimizer.Adam
	Collector *metrics.Collector
	Manager   *checkpoint.Manager
	Cfg       params.Config
	Log       *slog.Logger

	// Events receives progress updates when non-nil. Sends never block;
	// a slow observer just misses frames.
	Events chan<- Event

	phase Phase
}

// Phase returns the session's current position in the step cycle.
func (s *Session) Phase() Phase { return s.phase }

func (s *Session) emit(ev Event) {
	if s.Events == nil {
		return
	}
	select {
	case s.Events <- ev:
	default:
	}
}

// Train runs epochs full passes over examples. Epochs are numbered from 1.
// The context is checked between examples, so cancellation never leaves a
// half-applied optimizer step. A numerically unstable step is skipped with
// a warning; any other error aborts with epoch/step context attached.
func (s *Session) Train(ctx context.Context, name string, examples []dataset.Example, epochs int) error {
	if len(examples) == 0 {
		return errs.DataLoad("%s: no training examples", name)
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("training phase starting", "phase", name, "epochs", epochs,
		"examples", len(examples), "lr", s.Opt.LR)

	for epoch := 1; epoch <= epochs; epoch++ {
		order := examples
		if s.Cfg.Training.Shuffle {
			order = dataset.Shuffle(examples, s.Cfg.Training.Seed+int64(epoch))
		}

		epochLoss := 0.0
		counted := 0
		for step, ex := range order {
			select {
			case <-ctx.Done():
				s.phase = Idle
				return ctx.Err()
			default:
			}

			loss, norm, err := s.trainStep(ex)
			if err != nil {
				if errors.Is(err, errs.ErrNumericInstability) {
					log.Warn("unstable step skipped", "phase", name, "epoch", epoch, "step", step+1, "err", err)
					continue
				}
				s.phase = Idle
				return fmt.Errorf("%s epoch %d step %d: %w", name, epoch, step+1, err)
			}

			epochLoss += loss
			counted++
			s.Collector.RecordLoss(loss)
			s.Collector.RecordGradientNorm(norm)
			s.Collector.RecordLearningRate(s.Opt.LR)
			s.emit(Event{
				Phase: OptimizerStep, Name: name,
				Epoch: epoch, Epochs: epochs,
				Step: step + 1, Steps: len(order),
				Loss: loss, AvgLoss: s.Collector.Loss.Average(), GradNorm: norm,
			})
		}

		avg := 0.0
		if counted > 0 {
			avg = epochLoss / float64(counted)
		}
		s.phase = EpochComplete
		log.Info("epoch complete", "phase", name, "epoch", epoch, "avg_loss", avg)
		s.emit(Event{Phase: EpochComplete, Name: name, Epoch: epoch, Epochs: epochs, AvgLoss: avg})

		if s.Manager != nil && s.Cfg.Training.CheckpointEnabled {
			snap := checkpoint.Capture(s.Model, s.Opt, s.Cfg, epoch, avg)
			path, err := s.Manager.MaybeSave(snap)
			if err != nil {
				return fmt.Errorf("%s epoch %d: %w", name, epoch, err)
			}
			if path != "" {
				log.Info("checkpoint written", "path", path)
			}
		}
	}
	s.phase = Idle
	s.emit(Event{Phase: Idle, Name: name, Done: true})
	return nil
}

// trainStep runs one example through the full cycle and returns the loss
// and pre-clip gradient norm.
func (s *Session) trainStep(ex dataset.Example) (float64, float64, error) {
	s.phase = ForwardPass
	loss, err := s.Model.Loss(ex.Input, ex.Target)
	if err != nil {
		return 0, 0, err
	}
	s.phase = LossComputed

	s.phase = BackwardPass
	s.Model.ZeroGrads()
	if err := s.Model.Backward(); err != nil {
		return 0, 0, err
	}

	s.phase = OptimizerStep
	norm, err := s.Opt.Step(s.Model.Parameters())
	if err != nil {
		return 0, 0, err
	}
	return loss, norm, nil
}
