package integrators

import (
	"context"

	"github.com/san-kum/multiphys/internal/vec"
)

// Euler is forward Euler (RK1).
type Euler struct {
	ode *ODE
	k   vec.Vector
}

func NewEuler(ode *ODE) *Euler {
	return &Euler{ode: ode, k: vec.Zeros(ode.Size())}
}

func (e *Euler) Name() string { return "RK1" }

func (e *Euler) Step(ctx context.Context, u []float64, t, dt float64) (float64, error) {
	e.k.Zero()
	if err := e.ode.Stage(ctx, u, t, 0, e.k); err != nil {
		return t, err
	}
	vec.Vector(u).Axpy(dt, e.k)
	return t + dt, nil
}
