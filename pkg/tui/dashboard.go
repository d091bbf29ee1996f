// Package tui renders a live training dashboard on top of the trainer's
// event stream.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/SinanGncgl/RustGPT/pkg/trainer"
)

const (
	maxSeries = 120
	fps       = 30
)

type styles struct {
	title lipgloss.Style
	panel lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	graph lipgloss.Style
	dim   lipgloss.Style
	warn  lipgloss.Style
}

func defaultStyles() styles {
	brand := lipgloss.AdaptiveColor{Light: "26", Dark: "81"}
	subtle := lipgloss.AdaptiveColor{Light: "245", Dark: "244"}
	border := lipgloss.AdaptiveColor{Light: "250", Dark: "238"}
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(brand),
		panel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1),
		label: lipgloss.NewStyle().Foreground(subtle),
		value: lipgloss.NewStyle().Bold(true),
		graph: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		dim:   lipgloss.NewStyle().Foreground(subtle),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
}

type eventMsg trainer.Event
type animTickMsg time.Time

// Dashboard is the bubbletea model. It owns nothing but presentation:
// training runs elsewhere and pushes events through the channel; quitting
// cancels the training context.
type Dashboard struct {
	events <-chan trainer.Event
	cancel context.CancelFunc

	styles styles
	spin   spinner.Model
	width  int

	phase    string
	epoch    int
	epochs   int
	step     int
	steps    int
	loss     float64
	avgLoss  float64
	gradNorm float64
	series   []float64
	done     bool

	lossAnim float64
	lossVel  float64
	spring   harmonica.Spring
	primed   bool
}

// New builds a dashboard reading from events. cancel is invoked when the
// user quits so the trainer stops cleanly.
func New(events <-chan trainer.Event, cancel context.CancelFunc) Dashboard {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	return Dashboard{
		events: events,
		cancel: cancel,
		styles: defaultStyles(),
		spin:   sp,
		width:  80,
		spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0),
	}
}

func waitEventCmd(ch <-chan trainer.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventMsg(trainer.Event{Done: true})
		}
		return eventMsg(ev)
	}
}

func animTickCmd() tea.Cmd {
	return tea.Tick(time.Second/fps, func(ts time.Time) tea.Msg { return animTickMsg(ts) })
}

func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.spin.Tick, waitEventCmd(d.events), animTickCmd())
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	d.spin, cmd = d.spin.Update(msg)
	cmds = append(cmds, cmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if d.cancel != nil {
				d.cancel()
			}
			return d, tea.Quit
		}

	case eventMsg:
		ev := trainer.Event(msg)
		if ev.Done {
			d.done = true
			return d, tea.Quit
		}
		d.phase = ev.Name
		d.epoch = ev.Epoch
		d.epochs = ev.Epochs
		if ev.Phase == trainer.OptimizerStep {
			d.step = ev.Step
			d.steps = ev.Steps
			d.loss = ev.Loss
			d.avgLoss = ev.AvgLoss
			d.gradNorm = ev.GradNorm
			d.series = append(d.series, ev.Loss)
			if len(d.series) > maxSeries {
				d.series = d.series[len(d.series)-maxSeries:]
			}
			if !d.primed {
				d.lossAnim = ev.Loss
				d.primed = true
			}
		}
		cmds = append(cmds, waitEventCmd(d.events))

	case animTickMsg:
		d.lossAnim, d.lossVel = d.spring.Update(d.lossAnim, d.lossVel, d.loss)
		cmds = append(cmds, animTickCmd())
	}
	return d, tea.Batch(cmds...)
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func sparkline(series []float64, width int) string {
	if len(series) == 0 {
		return strings.Repeat(" ", width)
	}
	if len(series) > width {
		series = series[len(series)-width:]
	}
	lo, hi := series[0], series[0]
	for _, v := range series {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	var sb strings.Builder
	for _, v := range series {
		idx := 0
		if span > 0 {
			idx = int((v - lo) / span * float64(len(sparkRunes)-1))
		}
		sb.WriteRune(sparkRunes[idx])
	}
	return sb.String()
}

func (d Dashboard) View() string {
	s := d.styles
	if d.done {
		return s.title.Render("training complete") + "\n"
	}

	header := fmt.Sprintf("%s %s  epoch %d/%d  step %d/%d",
		d.spin.View(), s.title.Render(d.phase), d.epoch, d.epochs, d.step, d.steps)

	stats := strings.Join([]string{
		s.label.Render("loss ") + s.value.Render(fmt.Sprintf("%.4f", d.lossAnim)),
		s.label.Render("avg ") + s.value.Render(fmt.Sprintf("%.4f", d.avgLoss)),
		s.label.Render("grad ") + s.value.Render(fmt.Sprintf("%.3f", d.gradNorm)),
	}, "   ")

	graphW := d.width - 6
	if graphW < 20 {
		graphW = 20
	}
	graph := s.graph.Render(sparkline(d.series, graphW))

	body := header + "\n" + stats + "\n" + graph + "\n" + s.dim.Render("press q to stop")
	return s.panel.Render(body) + "\n"
}

// Run blocks until training finishes or the user quits.
func Run(events <-chan trainer.Event, cancel context.CancelFunc) error {
	p := tea.NewProgram(New(events, cancel))
	_, err := p.Run()
	return err
}
