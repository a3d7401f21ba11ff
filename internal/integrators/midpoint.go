package integrators

import (
	"context"

	"github.com/san-kum/multiphys/internal/vec"
)

// Midpoint is the implicit midpoint rule. Each step solves
// M·k + R(u + dt/2·k, t + dt/2) = 0 and sets u += dt·k.
type Midpoint struct {
	ode *ODE
	k   vec.Vector
}

func NewMidpoint(ode *ODE) *Midpoint {
	return &Midpoint{ode: ode, k: vec.Zeros(ode.Size())}
}

func (m *Midpoint) Name() string { return "MIDPOINT" }

func (m *Midpoint) Step(ctx context.Context, u []float64, t, dt float64) (float64, error) {
	m.k.Zero()
	if err := m.ode.Stage(ctx, u, t+0.5*dt, 0.5*dt, m.k); err != nil {
		return t, err
	}
	vec.Vector(u).Axpy(dt, m.k)
	return t + dt, nil
}
