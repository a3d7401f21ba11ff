package integrators

import (
	"context"
	"math"

	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/physics"
)

// linear is R(u) = A·u with an optional mass matrix.
type linear struct {
	a    *linalg.Dense
	mass linalg.Operator
	u    []float64
}

func (l *linear) Size() int {
	n, _ := l.a.Dims()
	return n
}

func (l *linear) SetInputs(in *inputs.Bag) error {
	var err error
	l.u, err = in.Field(inputs.State)
	return err
}

func (l *linear) Evaluate(_ *inputs.Bag, res []float64) error {
	l.a.MulVec(res, l.u)
	return nil
}

func (l *linear) Jacobian(*inputs.Bag, string) (linalg.Operator, error) { return l.a, nil }

func (l *linear) MassMatrix() linalg.Operator {
	if l.mass == nil {
		return linalg.Identity(l.Size())
	}
	return l.mass
}

// oscillator is du/dt = (u1, -u0).
func oscillator() *linear {
	return &linear{a: linalg.DenseFrom(2, 2, []float64{0, -1, 1, 0})}
}

// decay is du/dt = -λu with λ read from the "lambda" input.
type decay struct {
	lambda float64
	u      []float64
}

func (d *decay) Size() int { return 1 }

func (d *decay) SetInputs(in *inputs.Bag) error {
	d.lambda = 1
	if _, err := in.ScalarInto("lambda", &d.lambda); err != nil {
		return err
	}
	var err error
	d.u, err = in.Field(inputs.State)
	return err
}

func (d *decay) Evaluate(_ *inputs.Bag, res []float64) error {
	res[0] = d.lambda * d.u[0]
	return nil
}

func (d *decay) Jacobian(*inputs.Bag, string) (linalg.Operator, error) {
	return linalg.DenseFrom(1, 1, []float64{d.lambda}), nil
}

// forced is du/dt = cos(t).
type forced struct {
	t float64
}

func (f *forced) Size() int { return 1 }

func (f *forced) SetInputs(in *inputs.Bag) error {
	_, err := in.ScalarInto(inputs.Time, &f.t)
	return err
}

func (f *forced) Evaluate(_ *inputs.Bag, res []float64) error {
	res[0] = -math.Cos(f.t)
	return nil
}

func (f *forced) Jacobian(*inputs.Bag, string) (linalg.Operator, error) {
	return linalg.NewDense(1, 1), nil
}

func newODE(name string, m physics.ResidualModule) *ODE {
	cfg := newton.DefaultConfig()
	cfg.AbsTol = 1e-13
	cfg.RelTol = 1e-12
	return NewODE(physics.NewResidual(name, m), newton.New(cfg, linalg.NewLU()))
}

func integrate(s Stepper, u []float64, tFinal, dt float64) (float64, error) {
	t := 0.0
	for t < tFinal-1e-12 {
		h := math.Min(dt, tFinal-t)
		var err error
		if t, err = s.Step(context.Background(), u, t, h); err != nil {
			return t, err
		}
	}
	return t, nil
}
