package integrators

import (
	"context"
	"fmt"

	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/physics"
)

// ODE solves the stage equations of M du/dt + R(u, t) = 0 with a Newton
// solver. Every stepper in this package is built on one.
type ODE struct {
	stage  *physics.Residual
	td     *TimeDependent
	newton *newton.Solver
	params *inputs.Bag
}

func NewODE(spatial *physics.Residual, nl *newton.Solver) *ODE {
	td := NewTimeDependent(spatial)
	return &ODE{
		stage:  physics.NewResidual(spatial.Name()+"/stage", td),
		td:     td,
		newton: nl,
		params: inputs.New(),
	}
}

func (o *ODE) Size() int { return o.td.Size() }

func (o *ODE) Spatial() *physics.Residual { return o.td.Spatial() }

// SetInputs sets the design inputs forwarded to the spatial residual on
// every stage. The bag is copied; field buffers are shared.
func (o *ODE) SetInputs(in *inputs.Bag) {
	if in == nil {
		in = inputs.New()
	}
	o.params = in.Clone()
}

// Stage solves M·k + R(u + a·k, t) = 0 for k. On entry k holds the
// initial guess.
func (o *ODE) Stage(ctx context.Context, u []float64, t, a float64, k []float64) error {
	bag := o.params.Clone().
		SetField(BaseState, u).
		SetScalar(StageShift, a).
		SetScalar(inputs.Time, t)
	if _, err := o.newton.Solve(ctx, o.stage, bag, k); err != nil {
		return fmt.Errorf("stage at t=%g: %w", t, err)
	}
	return nil
}
