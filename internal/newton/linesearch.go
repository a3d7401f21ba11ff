package newton

import (
	"errors"
	"math"
)

// ErrLineSearchExhausted is returned with the last trial step when no
// step satisfied the sufficient decrease condition.
var ErrLineSearchExhausted = errors.New("newton: line search exhausted")

// LineSearch picks the step length along a Newton direction. phi returns
// ‖R(u + α·Δu)‖; norm is ‖R(u)‖.
type LineSearch interface {
	Search(phi func(alpha float64) (float64, error), norm float64) (float64, error)
}

// Backtracking enforces the Armijo condition on f(α) = ½‖R(u + α·Δu)‖²,
// whose slope at α = 0 is −‖R(u)‖² for an exact Newton direction. Steps
// shrink by safeguarded quadratic interpolation.
type Backtracking struct {
	Mu      float64
	RhoLo   float64
	RhoHi   float64
	MaxIter int
}

func (b *Backtracking) Search(phi func(alpha float64) (float64, error), norm float64) (float64, error) {
	f0 := 0.5 * norm * norm
	slope := -norm * norm
	alpha := 1.0
	for i := 0; i < b.MaxIter; i++ {
		n, err := phi(alpha)
		if err != nil {
			return 0, err
		}
		f := 0.5 * n * n
		if f <= f0+b.Mu*alpha*slope {
			return alpha, nil
		}
		next := -slope * alpha * alpha / (2 * (f - f0 - slope*alpha))
		alpha = math.Min(math.Max(next, b.RhoLo*alpha), b.RhoHi*alpha)
	}
	return alpha, ErrLineSearchExhausted
}
