package models

import (
	"fmt"
	"math"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/tape"
	"github.com/san-kum/multiphys/internal/vec"
)

// Heat is 1D nonlinear conduction on interior nodes x_1..x_n with fixed
// temperatures at x_0 and x_{n+1}:
//
//	F_{i+1/2} = k·(1 + β·ū)·(u_{i+1} − u_i)/(x_{i+1} − x_i)
//	R_i       = −(F_{i+1/2} − F_{i−1/2}) − q·V_i
//
// with ū the face average. Every product is taken from one tape
// recording, re-recorded whenever the inputs change.
type Heat struct {
	n      int
	length float64
	beta   float64
	tLeft  float64
	tRight float64
	defK   float64
	defQ   float64
	mesh   []float64

	u    []float64
	x    []float64
	k, q float64

	tp    *tape.Tape
	dirty bool
	uVars []tape.Var
	xVars []tape.Var
	kVar  tape.Var
	qVar  tape.Var
	rVars []tape.Var
}

func NewHeat(n int) *Heat {
	h := &Heat{n: n, length: 1, defK: 1, defQ: 1, tp: tape.New(), dirty: true}
	h.mesh = UniformMesh(n, h.length)
	h.x, h.k, h.q = h.mesh, h.defK, h.defQ
	return h
}

func (h *Heat) Size() int { return h.n }

// Mesh returns the coordinates of the last inputs.
func (h *Heat) Mesh() []float64 { return h.x }

func (h *Heat) SetOptions(opts config.Options) error {
	n, err := opts.Int("nodes", h.n)
	if err != nil {
		return err
	}
	if n < 1 {
		return &config.ConfigurationError{Key: "nodes", Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	length, err := opts.Float("length", h.length)
	if err != nil {
		return err
	}
	if length <= 0 {
		return &config.ConfigurationError{Key: "length", Reason: fmt.Sprintf("must be positive, got %g", length)}
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"beta", &h.beta},
		{"t-left", &h.tLeft},
		{"t-right", &h.tRight},
		{Conductivity, &h.defK},
		{HeatSource, &h.defQ},
	}
	for _, f := range floats {
		if *f.dst, err = opts.Float(f.key, *f.dst); err != nil {
			return err
		}
	}
	h.n, h.length = n, length
	h.mesh = UniformMesh(n, length)
	h.x, h.k, h.q = h.mesh, h.defK, h.defQ
	h.u = nil
	h.dirty = true
	return nil
}

func (h *Heat) SetInputs(in *inputs.Bag) error {
	x, err := meshFrom(in, h.mesh, h.n)
	if err != nil {
		return err
	}
	h.x, h.k, h.q = x, h.defK, h.defQ
	if _, err := in.ScalarInto(Conductivity, &h.k); err != nil {
		return err
	}
	if _, err := in.ScalarInto(HeatSource, &h.q); err != nil {
		return err
	}
	if _, err := in.FieldInto(inputs.State, &h.u); err != nil {
		return err
	}
	if h.u != nil && len(h.u) != h.n {
		return fmt.Errorf("%w: heat state has %d entries, want %d", vec.ErrDimensionMismatch, len(h.u), h.n)
	}
	h.dirty = true
	return nil
}

func (h *Heat) record() error {
	if !h.dirty {
		return nil
	}
	if h.u == nil {
		return fmt.Errorf("%w: %q", inputs.ErrUnknownInput, inputs.State)
	}
	tp := h.tp
	err := tp.Record(func() error {
		h.uVars = tp.Inputs(h.u)
		h.xVars = tp.Inputs(h.x)
		h.kVar = tp.Input(h.k)
		h.qVar = tp.Input(h.q)

		nodes := make([]tape.Var, h.n+2)
		nodes[0] = tape.Const(h.tLeft)
		nodes[h.n+1] = tape.Const(h.tRight)
		copy(nodes[1:], h.uVars)

		flux := make([]tape.Var, h.n+1)
		for f := range flux {
			avg := tp.Scale(tp.Add(nodes[f], nodes[f+1]), 0.5)
			coef := tp.Mul(h.kVar, tp.Shift(tp.Scale(avg, h.beta), 1))
			grad := tp.Div(tp.Sub(nodes[f+1], nodes[f]), tp.Sub(h.xVars[f+1], h.xVars[f]))
			flux[f] = tp.Mul(coef, grad)
		}

		h.rVars = make([]tape.Var, h.n)
		for i := range h.rVars {
			vol := tp.Scale(tp.Sub(h.xVars[i+2], h.xVars[i]), 0.5)
			h.rVars[i] = tp.Sub(tp.Neg(tp.Sub(flux[i+1], flux[i])), tp.Mul(h.qVar, vol))
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.dirty = false
	return nil
}

func (h *Heat) Evaluate(_ *inputs.Bag, res []float64) error {
	if err := h.record(); err != nil {
		return err
	}
	for i, r := range h.rVars {
		res[i] = r.Value()
	}
	return nil
}

// vars maps an input name to its tape inputs. Unknown names map to nil.
func (h *Heat) vars(wrt string) []tape.Var {
	switch wrt {
	case inputs.State:
		return h.uVars
	case MeshCoords:
		return h.xVars
	case Conductivity:
		return []tape.Var{h.kVar}
	case HeatSource:
		return []tape.Var{h.qVar}
	}
	return nil
}

// Jacobian assembles ∂R/∂wrt column by column with forward sweeps.
func (h *Heat) Jacobian(_ *inputs.Bag, wrt string) (linalg.Operator, error) {
	if err := h.record(); err != nil {
		return nil, err
	}
	vars := h.vars(wrt)
	if vars == nil {
		return nil, unknownJacobian("heat", wrt)
	}
	j := linalg.NewDense(h.n, len(vars))
	for c, v := range vars {
		dot := h.tp.Seed()
		tape.Set(dot, v, 1)
		h.tp.Forward(dot)
		for i, r := range h.rVars {
			j.Set(i, c, tape.At(dot, r))
		}
	}
	return j, nil
}

func (h *Heat) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	if err := h.record(); err != nil {
		return err
	}
	vars := h.vars(wrt)
	if vars == nil {
		return nil
	}
	if len(wrtDot) != len(vars) {
		return fmt.Errorf("%w: d%s has %d entries, want %d", vec.ErrDimensionMismatch, wrt, len(wrtDot), len(vars))
	}
	dot := h.tp.Seed()
	for i, v := range vars {
		tape.Set(dot, v, wrtDot[i])
	}
	h.tp.Forward(dot)
	for i, r := range h.rVars {
		resDot[i] += tape.At(dot, r)
	}
	return nil
}

func (h *Heat) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	if err := h.record(); err != nil {
		return err
	}
	vars := h.vars(wrt)
	if vars == nil {
		return nil
	}
	if len(wrtBar) != len(vars) {
		return fmt.Errorf("%w: %s bar has %d entries, want %d", vec.ErrDimensionMismatch, wrt, len(wrtBar), len(vars))
	}
	bar := h.tp.Seed()
	for i, r := range h.rVars {
		tape.Set(bar, r, resBar[i])
	}
	h.tp.Reverse(bar)
	for i, v := range vars {
		wrtBar[i] += tape.At(bar, v)
	}
	return nil
}

// MassMatrix is diag(V_i) on the current mesh.
func (h *Heat) MassMatrix() linalg.Operator {
	v := make([]float64, h.n)
	Volumes(h.x, v)
	m := linalg.NewDense(h.n, h.n)
	for i, vi := range v {
		m.Set(i, i, vi)
	}
	return m
}

// StepSize is the explicit diffusion limit cfl·min(V_i·Δx_i)/(2·k_eff),
// with k_eff the largest face conductivity at state.
func (h *Heat) StepSize(cfl float64, state []float64) (float64, error) {
	umax := math.Max(math.Abs(h.tLeft), math.Abs(h.tRight))
	for _, u := range state {
		umax = math.Max(umax, math.Abs(u))
	}
	keff := h.k * (1 + math.Abs(h.beta)*umax)
	if keff <= 0 {
		return 0, fmt.Errorf("models: heat step size needs positive conductivity, got %g", keff)
	}
	limit := math.Inf(1)
	for i := 1; i <= h.n; i++ {
		dx := math.Min(h.x[i]-h.x[i-1], h.x[i+1]-h.x[i])
		limit = math.Min(limit, 0.5*(h.x[i+1]-h.x[i-1])*dx)
	}
	return cfl * limit / (2 * keff), nil
}
