// Package metrics collects bounded windows of training statistics and
// exports them as CSV or JSON.
package metrics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Window is a fixed-capacity series: once full, recording evicts the
// oldest value. A zero capacity means unbounded.
type Window struct {
	cap    int
	values []float64
}

// NewWindow returns a series bounded to capacity samples.
func NewWindow(capacity int) *Window {
	return &Window{cap: capacity}
}

// Record appends v, evicting the oldest sample when full.
func (w *Window) Record(v float64) {
	if w.cap > 0 && len(w.values) == w.cap {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = v
		return
	}
	w.values = append(w.values, v)
}

// Len returns the number of retained samples.
func (w *Window) Len() int { return len(w.values) }

// Latest returns the most recent sample, or 0 when empty.
func (w *Window) Latest() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return w.values[len(w.values)-1]
}

// Average returns the mean of retained samples, or 0 when empty.
func (w *Window) Average() float64 {
	if len(w.values) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range w.values {
		s += v
	}
	return s / float64(len(w.values))
}

// Trend returns the mean of the newer half minus the mean of the older
// half. Negative means the series is falling.
func (w *Window) Trend() float64 {
	n := len(w.values)
	if n < 2 {
		return 0
	}
	half := n / 2
	older, newer := 0.0, 0.0
	for _, v := range w.values[:half] {
		older += v
	}
	for _, v := range w.values[n-half:] {
		newer += v
	}
	return newer/float64(half) - older/float64(half)
}

// Values returns a copy of the retained samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// Collector aggregates the per-step training series.
type Collector struct {
	Loss         *Window
	GradientNorm *Window
	Accuracy     *Window
	LearningRate *Window

	steps   int
	started time.Time
}

// NewCollector bounds every series to window samples.
func NewCollector(window int) *Collector {
	return &Collector{
		Loss:         NewWindow(window),
		GradientNorm: NewWindow(window),
		Accuracy:     NewWindow(window),
		LearningRate: NewWindow(window),
		started:      time.Now(),
	}
}

// RecordLoss records one step's loss.
func (c *Collector) RecordLoss(v float64) {
	c.Loss.Record(v)
	c.steps++
}

// RecordGradientNorm records the pre-clip global gradient norm.
func (c *Collector) RecordGradientNorm(v float64) { c.GradientNorm.Record(v) }

// RecordAccuracy records a next-token accuracy sample.
func (c *Collector) RecordAccuracy(v float64) { c.Accuracy.Record(v) }

// RecordLearningRate records the learning rate in effect.
func (c *Collector) RecordLearningRate(v float64) { c.LearningRate.Record(v) }

// Steps returns how many losses have been recorded.
func (c *Collector) Steps() int { return c.steps }

// Elapsed returns the wall time since the collector was created.
func (c *Collector) Elapsed() time.Duration { return time.Since(c.started) }

// Summary is a point-in-time export of the collector.
type Summary struct {
	Steps          int     `json:"steps"`
	AvgLoss        float64 `json:"avg_loss"`
	LatestLoss     float64 `json:"latest_loss"`
	LossTrend      float64 `json:"loss_trend"`
	AvgGradNorm    float64 `json:"avg_grad_norm"`
	LatestGradNorm float64 `json:"latest_grad_norm"`
	AvgAccuracy    float64 `json:"avg_accuracy"`
	LearningRate   float64 `json:"learning_rate"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Summarize captures the current window statistics.
func (c *Collector) Summarize() Summary {
	return Summary{
		Steps:          c.steps,
		AvgLoss:        c.Loss.Average(),
		LatestLoss:     c.Loss.Latest(),
		LossTrend:      c.Loss.Trend(),
		AvgGradNorm:    c.GradientNorm.Average(),
		LatestGradNorm: c.GradientNorm.Latest(),
		AvgAccuracy:    c.Accuracy.Average(),
		LearningRate:   c.LearningRate.Latest(),
		ElapsedSeconds: time.Since(c.started).Seconds(),
	}
}

// WriteCSV appends the retained loss/gradient series to path, creating the
// file with a header when absent.
func (c *Collector) WriteCSV(path string) error {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write([]string{"step", "loss", "grad_norm"}); err != nil {
			return err
		}
	}
	losses := c.Loss.Values()
	norms := c.GradientNorm.Values()
	base := c.steps - len(losses)
	for i, loss := range losses {
		gn := 0.0
		if i < len(norms) {
			gn = norms[i]
		}
		rec := []string{
			fmt.Sprintf("%d", base+i+1),
			fmt.Sprintf("%.6f", loss),
			fmt.Sprintf("%.6f", gn),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteJSON writes the summary as indented JSON.
func (c *Collector) WriteJSON(path string) error {
	raw, err := json.MarshalIndent(c.Summarize(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
