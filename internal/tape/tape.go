// Package tape is an explicit recording context for automatic
// differentiation.
//
// A Tape records elementary operations on [Var] values between Start and
// Stop. The same recording supports forward sweeps (directional
// derivatives) and reverse sweeps (adjoints). There is no shared global
// tape: each caller owns its Tape, so independent tapes can be used from
// different goroutines.
//
// # Example
//
//	tp := tape.New()
//	tp.Record(func() error {
//		x := tp.Input(2)
//		y := tp.Mul(x, tp.Sin(x))
//		bar := tp.Seed()
//		bar[y.Index()] = 1
//		tp.Reverse(bar)
//		dydx = bar[x.Index()]
//		return nil
//	})
package tape

import (
	"errors"
	"math"
)

// ErrRecording indicates Start on a tape that is already recording.
var ErrRecording = errors.New("tape: already recording")

const none = -1

type node struct {
	a, b   int
	da, db float64
}

type Tape struct {
	nodes     []node
	recording bool
}

func New() *Tape {
	return &Tape{}
}

// Var is a value, optionally tied to a node of the tape it was created on.
type Var struct {
	idx int
	val float64
}

// Value returns the primal value.
func (v Var) Value() float64 { return v.val }

// Index is the node position, or -1 for constants and values computed
// while the tape was not recording.
func (v Var) Index() int { return v.idx }

// Start clears the tape and begins recording.
func (t *Tape) Start() error {
	if t.recording {
		return ErrRecording
	}
	t.nodes = t.nodes[:0]
	t.recording = true
	return nil
}

// Stop ends recording. The nodes stay available for sweeps until the next Start.
func (t *Tape) Stop() {
	t.recording = false
}

func (t *Tape) Recording() bool { return t.recording }

// Len is the number of recorded nodes.
func (t *Tape) Len() int { return len(t.nodes) }

// Record runs fn between Start and Stop.
func (t *Tape) Record(fn func() error) error {
	if err := t.Start(); err != nil {
		return err
	}
	defer t.Stop()
	return fn()
}

// Seed returns a zeroed buffer with one slot per node, for use with
// Forward and Reverse.
func (t *Tape) Seed() []float64 {
	return make([]float64, len(t.nodes))
}

func (t *Tape) push(val float64, a int, da float64, b int, db float64) Var {
	if !t.recording || (a == none && b == none) {
		return Var{idx: none, val: val}
	}
	t.nodes = append(t.nodes, node{a: a, b: b, da: da, db: db})
	return Var{idx: len(t.nodes) - 1, val: val}
}

// Input registers an independent variable.
func (t *Tape) Input(x float64) Var {
	if !t.recording {
		return Var{idx: none, val: x}
	}
	t.nodes = append(t.nodes, node{a: none, b: none})
	return Var{idx: len(t.nodes) - 1, val: x}
}

// Inputs registers a slice of independent variables.
func (t *Tape) Inputs(xs []float64) []Var {
	out := make([]Var, len(xs))
	for i, x := range xs {
		out[i] = t.Input(x)
	}
	return out
}

func Const(x float64) Var {
	return Var{idx: none, val: x}
}

func (t *Tape) Add(a, b Var) Var {
	return t.push(a.val+b.val, a.idx, 1, b.idx, 1)
}

func (t *Tape) Sub(a, b Var) Var {
	return t.push(a.val-b.val, a.idx, 1, b.idx, -1)
}

func (t *Tape) Mul(a, b Var) Var {
	return t.push(a.val*b.val, a.idx, b.val, b.idx, a.val)
}

func (t *Tape) Div(a, b Var) Var {
	q := a.val / b.val
	return t.push(q, a.idx, 1/b.val, b.idx, -q/b.val)
}

func (t *Tape) Neg(a Var) Var {
	return t.push(-a.val, a.idx, -1, none, 0)
}

// Scale is c·a for a constant c.
func (t *Tape) Scale(a Var, c float64) Var {
	return t.push(c*a.val, a.idx, c, none, 0)
}

// Shift is a + c for a constant c.
func (t *Tape) Shift(a Var, c float64) Var {
	return t.push(a.val+c, a.idx, 1, none, 0)
}

// Pow is a^p for a constant exponent.
func (t *Tape) Pow(a Var, p float64) Var {
	return t.push(math.Pow(a.val, p), a.idx, p*math.Pow(a.val, p-1), none, 0)
}

func (t *Tape) Exp(a Var) Var {
	e := math.Exp(a.val)
	return t.push(e, a.idx, e, none, 0)
}

func (t *Tape) Log(a Var) Var {
	return t.push(math.Log(a.val), a.idx, 1/a.val, none, 0)
}

func (t *Tape) Sqrt(a Var) Var {
	s := math.Sqrt(a.val)
	return t.push(s, a.idx, 0.5/s, none, 0)
}

func (t *Tape) Sin(a Var) Var {
	return t.push(math.Sin(a.val), a.idx, math.Cos(a.val), none, 0)
}

func (t *Tape) Cos(a Var) Var {
	return t.push(math.Cos(a.val), a.idx, -math.Sin(a.val), none, 0)
}

// Sum adds the values left to right.
func (t *Tape) Sum(vs ...Var) Var {
	acc := Const(0)
	for _, v := range vs {
		acc = t.Add(acc, v)
	}
	return acc
}

// Forward propagates tangents in dot (seeded on inputs) through the
// recording, in place.
func (t *Tape) Forward(dot []float64) {
	for i, n := range t.nodes {
		if n.a != none {
			dot[i] += n.da * dot[n.a]
		}
		if n.b != none {
			dot[i] += n.db * dot[n.b]
		}
	}
}

// Reverse propagates adjoints in bar (seeded on outputs) back to the
// inputs, in place.
func (t *Tape) Reverse(bar []float64) {
	for i := len(t.nodes) - 1; i >= 0; i-- {
		w := bar[i]
		if w == 0 {
			continue
		}
		n := t.nodes[i]
		if n.a != none {
			bar[n.a] += n.da * w
		}
		if n.b != none {
			bar[n.b] += n.db * w
		}
	}
}

// At reads the slot of v in a seed buffer; constants read as zero.
func At(buf []float64, v Var) float64 {
	if v.idx == none {
		return 0
	}
	return buf[v.idx]
}

// Set writes the slot of v; writes to constants are dropped.
func Set(buf []float64, v Var, x float64) {
	if v.idx != none {
		buf[v.idx] = x
	}
}
