package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/bdsim/internal/analysis"
	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/experiment"
)

const (
	width           = 60
	height          = 20
	historyCapacity = 600
	acceptWindow    = 50
)

// SampleMsg carries one Metropolis decision and the configuration after it.
type SampleMsg struct {
	Sample    dynamo.Sample
	Positions []dynamo.Vec3
}

// DoneMsg reports the end of the chain.
type DoneMsg struct{ Err error }

// plane selects the two coordinates drawn on the canvas.
type plane int

const (
	planeXY plane = iota
	planeXZ
	planeYZ
)

func (p plane) axes() (int, int, string) {
	switch p {
	case planeXZ:
		return 0, 2, "x-z"
	case planeYZ:
		return 1, 2, "y-z"
	default:
		return 0, 1, "x-y"
	}
}

// Model follows a running chain.
type Model struct {
	title      string
	scheme     string
	iterations int

	canvas    *Canvas
	plane     plane
	scale     float64
	positions []dynamo.Vec3
	previous  []dynamo.Vec3
	last      dynamo.Sample
	seen      int
	energies  []float64
	distances []float64
	accepted  []bool

	done     bool
	err      error
	showHelp bool
}

func NewModel(title, scheme string, iterations int) Model {
	return Model{
		title:      title,
		scheme:     scheme,
		iterations: iterations,
		canvas:     NewCanvas(width, height),
		scale:      1,
		energies:   make([]float64, 0, historyCapacity),
		distances:  make([]float64, 0, historyCapacity),
		accepted:   make([]bool, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p":
			m.plane = (m.plane + 1) % 3
		case "+", "=":
			m.scale *= 1.25
		case "-", "_":
			m.scale /= 1.25
		case "?":
			m.showHelp = !m.showHelp
		}
	case SampleMsg:
		m.seen++
		m.last = msg.Sample
		m.previous = m.positions
		m.positions = msg.Positions
		m.energies = appendCapped(m.energies, msg.Sample.Energy)
		if !math.IsNaN(msg.Sample.Distance) {
			m.distances = appendCapped(m.distances, msg.Sample.Distance)
		}
		m.accepted = append(m.accepted, msg.Sample.Accepted)
		if len(m.accepted) > historyCapacity {
			m.accepted = m.accepted[1:]
		}
	case DoneMsg:
		m.done = true
		m.err = msg.Err
	}
	return m, nil
}

func appendCapped(s []float64, v float64) []float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return s
	}
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

// draw projects the particles onto the canvas. Coordinates are centered
// on the centroid and scaled so the widest particle sits near the edge.
// Each particle trails a streak from where it was one sample earlier.
func (m *Model) draw() {
	m.canvas.Clear()
	if len(m.positions) == 0 {
		return
	}
	a, b, _ := m.plane.axes()

	var ca, cb float64
	for _, p := range m.positions {
		ca += p[a]
		cb += p[b]
	}
	ca /= float64(len(m.positions))
	cb /= float64(len(m.positions))

	extent := 1e-9
	for _, p := range m.positions {
		extent = math.Max(extent, math.Max(math.Abs(p[a]-ca), math.Abs(p[b]-cb)))
	}

	w, h := m.canvas.Width*2, m.canvas.Height*4
	half := float64(min(w, h)) / 2 * 0.85 * m.scale
	project := func(p dynamo.Vec3) (int, int) {
		return w/2 + int((p[a]-ca)/extent*half), h/2 - int((p[b]-cb)/extent*half)
	}

	streaks := len(m.previous) == len(m.positions)
	for i, p := range m.positions {
		x, y := project(p)
		if streaks {
			px, py := project(m.previous[i])
			m.canvas.DrawLine(px, py, x, y)
		}
		m.canvas.DrawDisc(x, y, 1)
	}
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return StatusFailed.Render("FAILED: " + m.err.Error())
	case m.done:
		return StatusDone.Render("DONE")
	default:
		return StatusRunning.Render("RUNNING")
	}
}

func (m Model) View() string {
	m.draw()
	_, _, planeName := m.plane.axes()
	canvasView := canvasStyle.Render(m.canvas.String() + "\n" + labelStyle.Render(planeName+" projection"))

	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	progress := 0.0
	if m.iterations > 0 {
		progress = float64(m.seen) / float64(m.iterations)
	}
	s.WriteString(ProgressBar(progress, 30) + fmt.Sprintf(" %d/%d\n\n", m.seen, m.iterations))

	if len(m.energies) > 1 {
		chart := asciigraph.Plot(m.energies, asciigraph.Height(5), asciigraph.Width(34), asciigraph.Caption("Energy"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Scheme", m.scheme)
	row("Energy", fmt.Sprintf("%.4f", m.last.Energy))
	row("Bias energy", fmt.Sprintf("%.4f", m.last.BiasedEnergy))
	row("Distance", fmt.Sprintf("%.4f", m.last.Distance))
	row("Acceptance", fmt.Sprintf("%.1f%%", 100*m.acceptance()))
	if len(m.energies) > 2 {
		row("Tau", fmt.Sprintf("%.1f", analysis.IntegratedAutocorrelationTime(m.energies)))
	}
	s.WriteString(labelStyle.Render("Distance") + Sparkline(m.distances, 30) + "\n")

	if m.showHelp {
		s.WriteString(helpStyle.Render("\nP: cycle projection\n+/-: zoom\nQ: quit\n?: hide help"))
	} else {
		s.WriteString(helpStyle.Render("\nP:Plane +/-:Zoom Q:Quit ?:Help"))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
}

// acceptance is the running acceptance rate over the last acceptWindow
// decisions.
func (m Model) acceptance() float64 {
	if len(m.accepted) == 0 {
		return 0
	}
	running := analysis.RunningAcceptance(m.accepted, acceptWindow)
	return running[len(running)-1]
}

// Run shows chain c in the terminal until the chain ends and the user
// quits. Quitting early cancels the chain.
func Run(ctx context.Context, c *experiment.Chain, title string, iterations, stepsPerIteration int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, c.Sampler.Scheme(), iterations), tea.WithAltScreen(), tea.WithContext(ctx))

	chainDone := make(chan error, 1)
	go func() {
		err := c.Driver.RunWithCallback(ctx, iterations, stepsPerIteration, func(s dynamo.Sample) bool {
			p.Send(SampleMsg{Sample: s, Positions: dynamo.CloneVecs(c.Host.Positions())})
			return true
		})
		chainDone <- err
		p.Send(DoneMsg{Err: err})
	}()

	_, runErr := p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	chainErr := <-chainDone

	if runErr != nil && !interrupted {
		return runErr
	}
	if chainErr != nil && !errors.Is(chainErr, context.Canceled) {
		return chainErr
	}
	return nil
}
