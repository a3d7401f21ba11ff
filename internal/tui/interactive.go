package tui

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/experiment"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/sim"
	"github.com/san-kum/multiphys/internal/solver"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

const (
	paramDt     = "dt"
	paramTFinal = "t-final"
)

type state int

const (
	stateMenu state = iota
	stateConfig
	stateRun
)

type entry struct {
	problem string
	preset  string
}

func (e entry) String() string { return e.problem + "/" + e.preset }

type stepMsg struct {
	iter   int
	t      float64
	tFinal float64
	res    float64
	state  []float64
}

type iterMsg newton.Iteration

// runMsg tags a solver event with the run that produced it, so events
// of a cancelled run are ignored.
type runMsg struct {
	gen int
	msg tea.Msg
}

type doneMsg struct {
	report  *solver.Report
	outputs map[string]float64
	err     error
}

type model struct {
	registry *experiment.Registry
	state    state
	cursor   int
	entries  []entry
	selected entry
	cfg      *config.Config

	params      map[string]float64
	paramNames  []string
	paramCursor int
	editing     bool
	editBuf     string

	events   chan tea.Msg
	gen      int
	cancel   context.CancelFunc
	running  bool
	steps    int
	simTime  float64
	tFinal   float64
	profile  []float64
	residual []float64
	report   *solver.Report
	outputs  map[string]float64
	err      error

	width  int
	height int
}

func NewInteractiveApp(reg *experiment.Registry) *model {
	var entries []entry
	for _, problem := range config.Problems() {
		for _, preset := range config.ListPresets(problem) {
			entries = append(entries, entry{problem: problem, preset: preset})
		}
	}
	return &model{
		registry: reg,
		state:    stateMenu,
		entries:  entries,
		params:   map[string]float64{},
		width:    80,
		height:   24,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case runMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.handleEvent(msg.msg)
	}
	return m, nil
}

func (m model) handleEvent(msg tea.Msg) (model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepMsg:
		m.steps, m.simTime, m.tFinal = msg.iter+1, msg.t, msg.tFinal
		m.profile = msg.state
		if msg.res > 0 {
			m.pushResidual(msg.res)
		}
		return m, m.wait()
	case iterMsg:
		m.steps = msg.Iter
		m.pushResidual(msg.Norm)
		return m, m.wait()
	case doneMsg:
		m.running = false
		m.report, m.outputs, m.err = msg.report, msg.outputs, msg.err
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil
	}
	return m, nil
}

func (m *model) pushResidual(norm float64) {
	m.residual = append(m.residual, math.Log10(norm))
	if len(m.residual) > historyCap {
		m.residual = m.residual[1:]
	}
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch m.state {
	case stateMenu:
		return m.menuKey(msg)
	case stateConfig:
		return m.configKey(msg)
	case stateRun:
		return m.runKey(msg)
	}
	return m, nil
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.entries) == 0 {
			return m, nil
		}
		m.selected = m.entries[m.cursor]
		m.cfg = config.GetPreset(m.selected.problem, m.selected.preset)
		m.state = stateConfig
		m.paramCursor = 0
		m.setParams()
	}
	return m, nil
}

func (m model) configKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "enter":
			var val float64
			if _, err := fmt.Sscanf(m.editBuf, "%g", &val); err == nil {
				m.params[m.paramNames[m.paramCursor]] = val
			}
			m.editing = false
			m.editBuf = ""
		case "esc":
			m.editing = false
			m.editBuf = ""
		case "backspace":
			if len(m.editBuf) > 0 {
				m.editBuf = m.editBuf[:len(m.editBuf)-1]
			}
		default:
			if len(msg.String()) == 1 {
				c := msg.String()[0]
				if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
					m.editBuf += string(c)
				}
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "esc":
		m.state = stateMenu
	case "up", "k":
		if m.paramCursor > 0 {
			m.paramCursor--
		}
	case "down", "j":
		if m.paramCursor < len(m.paramNames)-1 {
			m.paramCursor++
		}
	case "enter", " ":
		m.editing = true
		m.editBuf = fmt.Sprintf("%g", m.params[m.paramNames[m.paramCursor]])
	case "left", "h":
		m.params[m.paramNames[m.paramCursor]] *= 0.9
	case "right", "l":
		m.params[m.paramNames[m.paramCursor]] *= 1.1
	case "s":
		if err := m.start(); err != nil {
			m.err = err
			m.state = stateRun
			return m, nil
		}
		m.state = stateRun
		return m, m.wait()
	}
	return m, nil
}

func (m model) runKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.stop()
		m.state = stateMenu
		return m, tea.ClearScreen
	case "c":
		m.stop()
		m.state = stateConfig
		return m, tea.ClearScreen
	case "r":
		if m.running {
			return m, nil
		}
		if err := m.start(); err != nil {
			m.err = err
			return m, nil
		}
		return m, m.wait()
	}
	return m, nil
}

// setParams lists the editable scalars of the selected preset: its
// design inputs, then the step size and final time.
func (m *model) setParams() {
	m.params = map[string]float64{}
	names := make([]string, 0, len(m.cfg.Inputs)+2)
	for k, v := range m.cfg.Inputs {
		names = append(names, k)
		m.params[k] = v
	}
	sort.Strings(names)
	m.paramNames = append(names, paramDt, paramTFinal)
	m.params[paramDt] = m.cfg.TimeDis.Dt
	m.params[paramTFinal] = m.cfg.TimeDis.TFinal
}

// start builds the experiment from the edited parameters and solves it
// in the background. Progress arrives as messages on m.events.
func (m *model) start() error {
	cfg := m.cfg.Clone()
	cfg.NonlinSolver.PrintLevel = 0
	for _, name := range m.paramNames {
		switch name {
		case paramDt:
			cfg.TimeDis.Dt = m.params[name]
		case paramTFinal:
			cfg.TimeDis.TFinal = m.params[name]
		default:
			cfg.Inputs[name] = m.params[name]
		}
	}

	events := make(chan tea.Msg, 64)
	exp, err := m.registry.Build(cfg,
		solver.WithObserver(stepSender(events)),
		solver.WithMonitor(func(it newton.Iteration) { send(events, iterMsg(it)) }),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.events, m.cancel = events, cancel
	m.gen++
	m.running, m.err, m.report, m.outputs = true, nil, nil, nil
	m.steps, m.simTime, m.tFinal = 0, cfg.TimeDis.TInitial, cfg.TimeDis.TFinal
	m.profile = append([]float64(nil), exp.State()...)
	m.residual = nil

	go func() {
		report, err := exp.Run(ctx)
		done := doneMsg{report: report, err: err}
		if err == nil {
			done.outputs, done.err = exp.Outputs()
		}
		select {
		case events <- done:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (m *model) stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
}

// wait delivers the next solver event.
func (m model) wait() tea.Cmd {
	events, gen := m.events, m.gen
	if events == nil {
		return nil
	}
	return func() tea.Msg { return runMsg{gen: gen, msg: <-events} }
}

// send drops progress events when the view falls behind so the solver
// never blocks on the UI.
func send(events chan<- tea.Msg, msg tea.Msg) {
	select {
	case events <- msg:
	default:
	}
}

type stepSender chan<- tea.Msg

func (s stepSender) OnStep(info sim.StepInfo) {
	send(s, stepMsg{
		iter:   info.Iter,
		t:      info.T,
		tFinal: info.TFinal,
		res:    info.ResNorm,
		state:  append([]float64(nil), info.State...),
	})
}

func (m model) View() string {
	switch m.state {
	case stateMenu:
		return m.viewMenu()
	case stateConfig:
		return m.viewConfig()
	case stateRun:
		return m.viewRun()
	}
	return ""
}

func (m model) viewMenu() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("         " + cyan.Render("m u l t i p h y s") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("\n")

	for i, e := range m.entries {
		scheme := ""
		if cfg := config.GetPreset(e.problem, e.preset); cfg != nil {
			scheme = cfg.TimeDis.Type
		}
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-20s", e)) + dim.Render(scheme) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-20s", e)) + dimmer.Render(scheme) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dim.Render("      ↑↓ select   enter configure   q quit") + "\n")

	return b.String()
}

func (m model) viewConfig() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("      " + cyan.Render(m.selected.String()) + "  " + dim.Render(m.cfg.TimeDis.Type) + "\n")
	b.WriteString(dimmer.Render("      "+strings.Repeat("─", 30)) + "\n\n")

	for i, name := range m.paramNames {
		val := fmt.Sprintf("%10.4g", m.params[name])
		if m.editing && i == m.paramCursor {
			val = fmt.Sprintf("%10s", m.editBuf+"▋")
		}
		if i == m.paramCursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-18s", name)) + magenta.Render(val) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-18s", name)) + dim.Render(val) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dim.Render("      ↑↓ select  ←→ scale  enter edit  s solve  esc back") + "\n")

	return b.String()
}

func (m model) viewRun() string {
	var b strings.Builder

	statusIcon, statusText := green.Render("●"), green.Render("solving")
	switch {
	case m.err != nil:
		statusIcon, statusText = red.Render("✗"), red.Render("failed")
	case !m.running && m.report != nil:
		statusIcon, statusText = cyan.Render("✓"), cyan.Render(m.report.Scheme+" done")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", statusIcon, cyan.Render(m.selected.String()), statusText))

	barWidth := 36
	progress := 0.0
	if m.tFinal > 0 {
		progress = math.Min(m.simTime/m.tFinal, 1)
	}
	if m.report != nil {
		progress = 1
	}
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s\n\n", bar, dim.Render(fmt.Sprintf("step %d  t=%.4g", m.steps, m.simTime))))

	plotWidth := m.width - 16
	if plotWidth < 30 {
		plotWidth = 30
	}
	if len(m.profile) > 1 {
		b.WriteString(asciigraph.Plot(m.profile,
			asciigraph.Height(8),
			asciigraph.Width(plotWidth),
			asciigraph.Caption("state"),
		) + "\n\n")
	}
	if len(m.residual) > 1 {
		b.WriteString(fmt.Sprintf("   %s %s  %s\n", dim.Render("log10 res"), cyan.Render(sparkline(m.residual, 32)),
			white.Render(fmt.Sprintf("%.2f", m.residual[len(m.residual)-1]))))
	}

	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}
	if len(m.outputs) > 0 {
		names := make([]string, 0, len(m.outputs))
		for name := range m.outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n")
		for _, name := range names {
			b.WriteString("   " + dim.Render(fmt.Sprintf("%-10s", name)) + yellow.Render(fmt.Sprintf("%.6g", m.outputs[name])) + "\n")
		}
	}

	b.WriteString("\n" + dim.Render("   r rerun  c config  q menu") + "\n")

	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		v := data[i*step]
		idx := int((v - minVal) / rang * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

func RunInteractive(reg *experiment.Registry) error {
	p := tea.NewProgram(NewInteractiveApp(reg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
