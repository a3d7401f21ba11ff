package integrators

import (
	"context"

	"github.com/san-kum/multiphys/internal/vec"
)

// BackwardEuler solves M·k + R(u + dt·k, t + dt) = 0 and sets u += dt·k.
// Paired with a growing step it is pseudo-transient continuation.
type BackwardEuler struct {
	ode *ODE
	k   vec.Vector
}

func NewBackwardEuler(ode *ODE) *BackwardEuler {
	return &BackwardEuler{ode: ode, k: vec.Zeros(ode.Size())}
}

func (b *BackwardEuler) Name() string { return "PTC" }

func (b *BackwardEuler) Step(ctx context.Context, u []float64, t, dt float64) (float64, error) {
	b.k.Zero()
	if err := b.ode.Stage(ctx, u, t+dt, dt, b.k); err != nil {
		return t, err
	}
	vec.Vector(u).Axpy(dt, b.k)
	return t + dt, nil
}
