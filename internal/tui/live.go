package tui

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/sim"
)

const (
	width       = 70
	height      = 12
	historyCap  = 200
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws the state profile and the residual history on a
// plain terminal as a solve progresses. It observes time steps and
// Newton iterations and draws at most frameRate frames per second.
type LiveRenderer struct {
	out       io.Writer
	title     string
	frameRate int
	lastFrame time.Time

	t        float64
	tFinal   float64
	steps    int
	state    []float64
	residual []float64
}

func NewLiveRenderer(title string, frameRate int) *LiveRenderer {
	if frameRate < 1 {
		frameRate = 1
	}
	return &LiveRenderer{
		out:       os.Stdout,
		title:     title,
		frameRate: frameRate,
		residual:  make([]float64, 0, historyCap),
	}
}

// SetOutput redirects frames, mainly for tests.
func (r *LiveRenderer) SetOutput(w io.Writer) { r.out = w }

func (r *LiveRenderer) OnStep(info sim.StepInfo) {
	r.t, r.tFinal, r.steps = info.T, info.TFinal, info.Iter+1
	r.state = append(r.state[:0], info.State...)
	if info.ResNorm > 0 {
		r.push(info.ResNorm)
	}
	r.maybeRender()
}

// Monitor reports Newton iterations of a steady solve.
func (r *LiveRenderer) Monitor() newton.Monitor {
	return func(it newton.Iteration) {
		r.steps = it.Iter
		r.push(it.Norm)
		r.maybeRender()
	}
}

func (r *LiveRenderer) push(norm float64) {
	r.residual = append(r.residual, math.Log10(norm))
	if len(r.residual) > historyCap {
		r.residual = r.residual[1:]
	}
}

func (r *LiveRenderer) maybeRender() {
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	fmt.Fprint(r.out, clearScreen+r.Frame())
}

// Frame draws the current picture without clearing the screen.
func (r *LiveRenderer) Frame() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %s  step %d", r.title, r.steps))
	if r.tFinal > 0 {
		b.WriteString(fmt.Sprintf("  t=%.4g/%.4g", r.t, r.tFinal))
	}
	b.WriteString("\n  " + strings.Repeat("-", width) + "\n")

	if len(r.state) > 1 {
		b.WriteString(asciigraph.Plot(r.state,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption("state"),
		))
		b.WriteString("\n\n")
	}
	if len(r.residual) > 1 {
		b.WriteString(asciigraph.Plot(r.residual,
			asciigraph.Height(height/2),
			asciigraph.Width(width),
			asciigraph.Caption("log10 residual"),
		))
		b.WriteString("\n")
	}
	return b.String()
}

// Flush draws the last frame regardless of the frame rate.
func (r *LiveRenderer) Flush() {
	fmt.Fprint(r.out, clearScreen+r.Frame())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
