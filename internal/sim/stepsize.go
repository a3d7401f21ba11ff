package sim

import (
	"math"

	"github.com/san-kum/multiphys/internal/integrators"
	"github.com/san-kum/multiphys/internal/physics"
)

// StepSizer chooses the size of the next step.
type StepSizer interface {
	Next(info StepInfo) (float64, error)
}

// FixedStep takes steps of Dt. With ExactTFinal the last step is
// shortened to land on the final time.
type FixedStep struct {
	Dt          float64
	ExactTFinal bool
}

func (f FixedStep) Next(info StepInfo) (float64, error) {
	return clamp(f.Dt, info, f.ExactTFinal), nil
}

// CFLStep asks the residual for a stable step at the given CFL number.
type CFLStep struct {
	Residual    *physics.Residual
	CFL         float64
	ExactTFinal bool
}

func (c CFLStep) Next(info StepInfo) (float64, error) {
	dt, err := c.Residual.StepSize(c.CFL, info.State)
	if err != nil {
		return 0, err
	}
	return clamp(dt, info, c.ExactTFinal), nil
}

// PTCStep grows the pseudo-time step as dt0·(r0/r)^Exponent and never
// shrinks it.
type PTCStep struct {
	Dt0      float64
	Exponent float64
}

func (p PTCStep) Next(info StepInfo) (float64, error) {
	if info.Iter == 0 || info.ResNorm <= 0 || info.ResNorm0 <= 0 {
		return math.Max(p.Dt0, info.DtPrev), nil
	}
	dt := p.Dt0 * math.Pow(info.ResNorm0/info.ResNorm, p.Exponent)
	return math.Max(dt, info.DtPrev), nil
}

// AdaptiveStep follows the suggestion of an error-controlled stepper,
// starting from Initial.
type AdaptiveStep struct {
	Stepper     integrators.Adaptive
	Initial     float64
	MaxDt       float64
	ExactTFinal bool
}

func (a AdaptiveStep) Next(info StepInfo) (float64, error) {
	dt := a.Stepper.Suggest()
	if dt <= 0 {
		dt = a.Initial
	}
	if a.MaxDt > 0 {
		dt = math.Min(dt, a.MaxDt)
	}
	return clamp(dt, info, a.ExactTFinal), nil
}

func clamp(dt float64, info StepInfo, exact bool) float64 {
	if exact && info.T+dt > info.TFinal {
		return info.TFinal - info.T
	}
	return dt
}
