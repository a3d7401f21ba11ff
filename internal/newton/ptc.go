package newton

import (
	"math"

	"github.com/san-kum/multiphys/internal/logging"
)

// PTC is the pseudo-transient continuation controller. Each outer
// iteration solves (M/Δτ + J)·Δu = −R with
//
//	Δτ_k = max(Δτ_0·(‖R_0‖/‖R_k‖)^Exponent, Δτ_{k−1})
//
// so early iterations march stably in pseudo-time and later ones recover
// Newton's method as Δτ grows without bound.
type PTC struct {
	InitialStep float64
	Exponent    float64

	dt float64
}

func NewPTC(dt0, exponent float64) *PTC {
	return &PTC{InitialStep: dt0, Exponent: exponent}
}

func (p *PTC) Reset() {
	p.dt = 0
}

// Step is the pseudo-time step of the last iteration.
func (p *PTC) Step() float64 { return p.dt }

func (p *PTC) Shift(iter int, norm, norm0 float64) float64 {
	if iter == 0 || norm == 0 {
		p.dt = math.Max(p.dt, p.InitialStep)
	} else {
		p.dt = math.Max(p.InitialStep*math.Pow(norm0/norm, p.Exponent), p.dt)
	}
	logging.Log(logging.PTC, "pseudo-time step", "iter", iter, "dtau", p.dt)
	if math.IsInf(p.dt, 1) {
		return 0
	}
	return 1 / p.dt
}
