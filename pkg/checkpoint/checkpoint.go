// Package checkpoint persists model weights and optimizer state with gob,
// and manages a bounded directory of checkpoint files.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
	"github.com/SinanGncgl/RustGPT/pkg/model"
	"github.com/SinanGncgl/RustGPT/pkg/optimizer"
	"github.com/SinanGncgl/RustGPT/pkg/params"
)

// Tensor is the serialized form of one named matrix.
type Tensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// Snapshot is everything needed to resume training: weights, optimizer
// moments, the shared step counter, and the configuration the model was
// built with.
type Snapshot struct {
	Epoch     int
	Loss      float64
	CreatedAt time.Time
	Config    params.Config
	Params    []Tensor
	OptM      []Tensor
	OptV      []Tensor
	OptStep   int
}

func toTensor(name string, m *mat.Dense) Tensor {
	r, c := m.Dims()
	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[i*c+j] = m.At(i, j)
		}
	}
	return Tensor{Name: name, Rows: r, Cols: c, Data: data}
}

func (t Tensor) dense() *mat.Dense {
	return mat.NewDense(t.Rows, t.Cols, t.Data)
}

// Capture builds a snapshot from the live model and optimizer.
func Capture(m *model.LLM, opt *optimizer.Adam, cfg params.Config, epoch int, loss float64) *Snapshot {
	ps := m.Parameters()
	snap := &Snapshot{
		Epoch:     epoch,
		Loss:      loss,
		CreatedAt: time.Now(),
		Config:    cfg,
		Params:    make([]Tensor, len(ps)),
	}
	for i, p := range ps {
		snap.Params[i] = toTensor(p.Name, p.Value)
	}
	if opt != nil {
		om, ov, step := opt.State()
		snap.OptStep = step
		snap.OptM = make([]Tensor, len(om))
		snap.OptV = make([]Tensor, len(ov))
		for i := range om {
			snap.OptM[i] = toTensor(ps[i].Name, om[i])
			snap.OptV[i] = toTensor(ps[i].Name, ov[i])
		}
	}
	return snap
}

// Restore copies the snapshot's weights and optimizer state into the live
// model. The model must have been built with the same architecture.
func (s *Snapshot) Restore(m *model.LLM, opt *optimizer.Adam) error {
	ps := m.Parameters()
	if len(ps) != len(s.Params) {
		return errs.Checkpoint("snapshot has %d tensors, model has %d", len(s.Params), len(ps))
	}
	for i, p := range ps {
		t := s.Params[i]
		pr, pc := p.Dims()
		if t.Rows != pr || t.Cols != pc {
			return errs.Checkpoint("tensor %s is (%dx%d), model wants (%dx%d)", t.Name, t.Rows, t.Cols, pr, pc)
		}
		p.Value.Copy(t.dense())
	}
	if opt != nil && len(s.OptM) > 0 {
		om := make([]*mat.Dense, len(s.OptM))
		ov := make([]*mat.Dense, len(s.OptV))
		for i := range s.OptM {
			om[i] = s.OptM[i].dense()
			ov[i] = s.OptV[i].dense()
		}
		if err := opt.LoadState(om, ov, s.OptStep); err != nil {
			return err
		}
	}
	return nil
}

// Save gob-encodes the snapshot to path, creating parent directories.
func (s *Snapshot) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Checkpoint("mkdir %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.Checkpoint("create %s: %v", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(s); err != nil {
		return errs.Checkpoint("encode %s: %v", path, err)
	}
	return nil
}

// Load reads a snapshot from path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Checkpoint("open %s: %v", path, err)
	}
	defer f.Close()
	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errs.Checkpoint("decode %s: %v", path, err)
	}
	return &s, nil
}

// Manager writes epoch checkpoints into a directory, pruning old files so
// at most max remain.
type Manager struct {
	Dir      string
	Interval int // epochs between saves, <= 0 saves every epoch
	Max      int // files to keep, <= 0 keeps all
}

// NewManager returns a manager rooted at dir.
func NewManager(dir string, interval, max int) *Manager {
	return &Manager{Dir: dir, Interval: interval, Max: max}
}

func (mg *Manager) pathFor(epoch int) string {
	return filepath.Join(mg.Dir, fmt.Sprintf("checkpoint_epoch_%04d.gob", epoch))
}

// MaybeSave writes a snapshot when the epoch lands on the interval, then
// prunes. Returns the written path, or "" when the epoch was skipped.
func (mg *Manager) MaybeSave(s *Snapshot) (string, error) {
	if mg.Interval > 0 && s.Epoch%mg.Interval != 0 {
		return "", nil
	}
	path := mg.pathFor(s.Epoch)
	if err := s.Save(path); err != nil {
		return "", err
	}
	if err := mg.prune(); err != nil {
		return "", err
	}
	return path, nil
}

func (mg *Manager) prune() error {
	if mg.Max <= 0 {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(mg.Dir, "checkpoint_epoch_*.gob"))
	if err != nil {
		return err
	}
	if len(files) <= mg.Max {
		return nil
	}
	sort.Strings(files) // zero-padded epoch numbers sort chronologically
	for _, f := range files[:len(files)-mg.Max] {
		if err := os.Remove(f); err != nil {
			return errs.Checkpoint("prune %s: %v", f, err)
		}
	}
	return nil
}

// Latest loads the most recent checkpoint in the directory, or a nil
// snapshot when none exist.
func (mg *Manager) Latest() (*Snapshot, error) {
	files, err := filepath.Glob(filepath.Join(mg.Dir, "checkpoint_epoch_*.gob"))
	if err != nil || len(files) == 0 {
		return nil, err
	}
	sort.Strings(files)
	return Load(files[len(files)-1])
}
