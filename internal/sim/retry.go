package sim

import (
	"errors"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/integrators"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/vec"
)

// RetryPolicy repeats a failed step with dt scaled by Factor, at most
// MaxRetries times and never below MinDt. The zero value never retries.
type RetryPolicy struct {
	MaxRetries int
	Factor     float64
	MinDt      float64
}

func RetryFrom(r config.Retry) RetryPolicy {
	return RetryPolicy{MaxRetries: r.MaxRetries, Factor: r.Factor, MinDt: r.MinDt}
}

func (p RetryPolicy) Enabled() bool {
	return p.MaxRetries > 0 && p.Factor > 0 && p.Factor < 1
}

// Retryable reports whether a smaller step could plausibly succeed.
// Wiring and capability errors are not.
func Retryable(err error) bool {
	var conv *newton.ConvergenceError
	var num *newton.NumericalError
	switch {
	case errors.As(err, &conv), errors.As(err, &num):
		return true
	case errors.Is(err, integrators.ErrStepRejected), errors.Is(err, vec.ErrNonFinite):
		return true
	}
	return false
}

// next returns the reduced step for the given attempt, or false when the
// policy is exhausted.
func (p RetryPolicy) next(attempt int, dt float64) (float64, bool) {
	if !p.Enabled() || attempt >= p.MaxRetries {
		return 0, false
	}
	dt *= p.Factor
	if dt < p.MinDt {
		return 0, false
	}
	return dt, true
}
