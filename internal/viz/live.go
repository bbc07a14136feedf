package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/stochsim/internal/dynamo"
	"github.com/san-kum/stochsim/internal/sde"
)

const (
	canvasWidth   = 60
	canvasHeight  = 16
	traceCapacity = 240
	tickInterval  = time.Second / 30
)

type TickMsg time.Time

// LiveModel steps a stepper on every tick and draws the focused dimension.
// Drift parameters can be tuned while running when the drift model
// implements dynamo.Configurable.
type LiveModel struct {
	stepper      *sde.Stepper
	title        string
	initial      dynamo.State
	stepsPerTick int

	tunable       dynamo.Configurable
	params        map[string]float64
	initialParams map[string]float64
	paramKeys     []string
	selected      int

	traces  [][]float64
	focus   int
	canvas  *Canvas
	running bool
	err     error
}

func NewLiveModel(stepper *sde.Stepper, title string, stepsPerTick int) LiveModel {
	if stepsPerTick < 1 {
		stepsPerTick = 1
	}
	m := LiveModel{
		stepper:       stepper,
		title:         title,
		initial:       stepper.Current().State,
		stepsPerTick:  stepsPerTick,
		params:        make(map[string]float64),
		initialParams: make(map[string]float64),
		traces:        make([][]float64, stepper.Dim()),
		focus:         stepper.ConditionIndex(),
		canvas:        NewCanvas(canvasWidth, canvasHeight),
		running:       true,
	}
	if c, ok := stepper.Drift().(dynamo.Configurable); ok {
		m.tunable = c
		for k, v := range c.GetParams() {
			m.params[k] = v
			m.initialParams[k] = v
			m.paramKeys = append(m.paramKeys, k)
		}
		sort.Strings(m.paramKeys)
	}
	m.record(stepper.Current())
	return m
}

func (m LiveModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "n":
			m.focus = (m.focus + 1) % len(m.traces)
		case "tab":
			if len(m.paramKeys) > 0 {
				m.selected = (m.selected + 1) % len(m.paramKeys)
			}
		case "up", "k":
			m.adjustParam(1.05)
		case "down", "j":
			m.adjustParam(0.95)
		}
	case TickMsg:
		if m.running && m.err == nil {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

func (m *LiveModel) advance() {
	for i := 0; i < m.stepsPerTick; i++ {
		if _, err := m.stepper.Step(); err != nil {
			m.err = err
			m.running = false
			return
		}
		m.record(m.stepper.Current())
	}
}

func (m *LiveModel) record(s dynamo.EvolutionState) {
	for d, v := range s.State {
		m.traces[d] = append(m.traces[d], v)
		if len(m.traces[d]) > traceCapacity {
			m.traces[d] = m.traces[d][1:]
		}
	}
}

// adjustParam scales the selected parameter. Values the model rejects are
// left unchanged.
func (m *LiveModel) adjustParam(factor float64) {
	if m.tunable == nil || len(m.paramKeys) == 0 {
		return
	}
	key := m.paramKeys[m.selected]
	val := m.params[key] * factor
	if val == 0 {
		val = 1e-3 * factor
	}
	if err := m.tunable.SetParam(key, val); err != nil {
		return
	}
	m.params[key] = val
}

func (m *LiveModel) reset() {
	for _, k := range m.paramKeys {
		if err := m.tunable.SetParam(k, m.initialParams[k]); err == nil {
			m.params[k] = m.initialParams[k]
		}
	}
	if err := m.stepper.Reset(m.initial); err != nil {
		m.err = err
		return
	}
	m.err = nil
	for d := range m.traces {
		m.traces[d] = m.traces[d][:0]
	}
	m.record(m.stepper.Current())
}

func (m LiveModel) Running() bool { return m.running }

func (m LiveModel) Err() error { return m.err }

func (m LiveModel) View() string {
	names := m.stepper.Names()
	cur := m.stepper.Current()

	m.canvas.Clear()
	m.canvas.HLine(m.initial[m.focus])
	m.canvas.Trace(m.traces[m.focus])
	canvasView := canvasStyle.Render(
		headerStyle.Render(strings.ToUpper(names[m.focus])) + "\n" + m.canvas.String(),
	)

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	switch {
	case m.err != nil:
		s.WriteString(errorStyle.Render("HALTED") + "\n\n")
	case m.running:
		s.WriteString(StatusRunning.Render("RUNNING") + "\n\n")
	default:
		s.WriteString(StatusPaused.Render("PAUSED") + "\n\n")
	}

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.2f", cur.Time)) + "\n")
	s.WriteString(labelStyle.Render("Steps") + valueStyle.Render(fmt.Sprintf("%d", m.stepper.TotalSteps())) + "\n")
	s.WriteString(labelStyle.Render("Regime") + RegimeBadge(cur.Regime) + "\n\n")

	for d, v := range cur.State {
		label := names[d]
		if d == m.focus {
			label = "> " + label
		}
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(fmt.Sprintf("%.3f ", v)) + Sparkline(m.traces[d], 20) + "\n")
	}

	if metrics := m.stepper.Metrics(); len(metrics) > 0 {
		s.WriteString("\nMETRICS\n")
		keys := make([]string, 0, len(metrics))
		for k := range metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.WriteString(MetricLabel.Render(fmt.Sprintf("%-18s", k)) + MetricValue.Render(fmt.Sprintf("%.4f", metrics[k])) + "\n")
		}
	}

	s.WriteString("\nPARAMETERS\n")
	if len(m.paramKeys) == 0 {
		s.WriteString(labelStyle.Render("  (none)") + "\n")
	}
	for i, k := range m.paramKeys {
		line := fmt.Sprintf("%-15s %.4f", k, m.params[k])
		if i == m.selected {
			s.WriteString(activeParamStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + labelStyle.Render(line) + "\n")
		}
	}

	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render("SP:Pause R:Reset N:Next Q:Quit\nTab:Param ↑↓:Tune"))

	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
}
