package integrators

import (
	"context"

	"github.com/san-kum/multiphys/internal/vec"
)

// RK4 is the classical fourth order Runge-Kutta scheme.
type RK4 struct {
	ode            *ODE
	k1, k2, k3, k4 vec.Vector
	scratch        vec.Vector
}

func NewRK4(ode *ODE) *RK4 {
	return &RK4{ode: ode}
}

func (r *RK4) Name() string { return "RK4" }

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = vec.Zeros(n)
		r.k2 = vec.Zeros(n)
		r.k3 = vec.Zeros(n)
		r.k4 = vec.Zeros(n)
		r.scratch = vec.Zeros(n)
	}
}

func (r *RK4) Step(ctx context.Context, x []float64, t, dt float64) (float64, error) {
	n := len(x)
	r.ensureScratch(n)

	r.k1.Zero()
	if err := r.ode.Stage(ctx, x, t, 0, r.k1); err != nil {
		return t, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	r.k2.Zero()
	if err := r.ode.Stage(ctx, r.scratch, t+dt*0.5, 0, r.k2); err != nil {
		return t, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	r.k3.Zero()
	if err := r.ode.Stage(ctx, r.scratch, t+dt*0.5, 0, r.k3); err != nil {
		return t, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	r.k4.Zero()
	if err := r.ode.Stage(ctx, r.scratch, t+dt, 0, r.k4); err != nil {
		return t, err
	}

	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		x[i] += dt6 * (r.k1[i] + 2*r.k2[i] + 2*r.k3[i] + r.k4[i])
	}
	return t + dt, nil
}
