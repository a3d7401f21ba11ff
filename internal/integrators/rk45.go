package integrators

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/multiphys/internal/vec"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

var (
	nodes = [7]float64{0, a2, a3, a4, a5, 1, 1}
	rows  = [7][]float64{
		nil,
		{b21},
		{b31, b32},
		{b41, b42, b43},
		{b51, b52, b53, b54},
		{b61, b62, b63, b64, b65},
		{c1, 0, c3, c4, c5, c6},
	}
	errWeights = [7]float64{dc1, 0, dc3, dc4, dc5, dc6, dc7}
)

// ErrStepRejected is returned when the error estimate stays above
// tolerance after MaxRejects step reductions.
var ErrStepRejected = errors.New("integrators: step rejected")

// RK45 is the adaptive Dormand-Prince pair. Step may advance by less than
// the requested dt; Suggest returns the step to try next.
type RK45 struct {
	ode *ODE

	AbsTol     float64
	RelTol     float64
	MaxRejects int

	safety   float64
	minScale float64
	maxScale float64

	k       [7]vec.Vector
	scratch vec.Vector
	xNew    vec.Vector
	next    float64
}

// NewRK45 falls back to 1e-6 for a non-positive tolerance.
func NewRK45(ode *ODE, abstol, reltol float64) *RK45 {
	if abstol <= 0 {
		abstol = 1e-6
	}
	if reltol <= 0 {
		reltol = 1e-6
	}
	return &RK45{
		ode:        ode,
		AbsTol:     abstol,
		RelTol:     reltol,
		MaxRejects: 20,
		safety:     0.9,
		minScale:   0.2,
		maxScale:   10.0,
	}
}

func (r *RK45) Name() string { return "RK45" }

// Suggest is the step size proposed by the last error estimate, 0 before
// the first step.
func (r *RK45) Suggest() float64 { return r.next }

func (r *RK45) ensureScratch(n int) {
	if len(r.scratch) != n {
		for i := range r.k {
			r.k[i] = vec.Zeros(n)
		}
		r.scratch = vec.Zeros(n)
		r.xNew = vec.Zeros(n)
	}
}

func (r *RK45) Step(ctx context.Context, x []float64, t, dt float64) (float64, error) {
	h := dt
	for rejects := 0; ; rejects++ {
		errRatio, err := r.attempt(ctx, x, t, h)
		if err != nil {
			return t, err
		}
		if errRatio <= 1 {
			copy(x, r.xNew)
			r.next = h * r.grow(errRatio)
			return t + h, nil
		}
		if rejects >= r.MaxRejects {
			return t, fmt.Errorf("%w: error ratio %.3g at t=%g with dt=%g", ErrStepRejected, errRatio, t, h)
		}
		h *= math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	}
}

// attempt takes one step of size h from x without modifying it and
// returns the scaled error estimate.
func (r *RK45) attempt(ctx context.Context, x []float64, t, h float64) (float64, error) {
	n := len(x)
	r.ensureScratch(n)

	for s := range r.k {
		copy(r.scratch, x)
		for j, b := range rows[s] {
			r.scratch.Axpy(h*b, r.k[j])
		}
		if s == 6 {
			copy(r.xNew, r.scratch)
		}
		r.k[s].Zero()
		if err := r.ode.Stage(ctx, r.scratch, t+nodes[s]*h, 0, r.k[s]); err != nil {
			return 0, err
		}
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		errEst := 0.0
		for s, w := range errWeights {
			errEst += w * r.k[s][i]
		}
		errEst *= h
		scale := r.AbsTol + r.RelTol*(math.Abs(x[i])+math.Abs(h*r.k[0][i]))
		errMax = math.Max(errMax, math.Abs(errEst)/scale)
	}
	if math.IsNaN(errMax) || math.IsInf(errMax, 0) {
		return 0, fmt.Errorf("%w: RK45 error estimate at t=%g", vec.ErrNonFinite, t)
	}
	return errMax, nil
}

func (r *RK45) grow(errRatio float64) float64 {
	if errRatio > 0 {
		return math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	}
	return r.maxScale
}
