package optim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/multiphys/internal/experiment"
)

var ErrNotConverged = errors.New("optim: target not reached")

// Match adjusts a scalar design input until an output reaches Target.
// Each iteration solves for the state, takes the adjoint derivative of
// the output and applies a damped Newton update on J(p) - Target.
type Match struct {
	Output  string
	Param   string
	Target  float64
	Tol     float64
	MaxIter int

	// Relax scales every update; 0 means 1.
	Relax float64
	// MaxStep bounds |Δp| when positive.
	MaxStep float64

	Logger *slog.Logger
}

type MatchStep struct {
	Param float64
	Value float64
	Grad  float64
}

type MatchResult struct {
	Param      float64
	Value      float64
	Iterations int
	History    []MatchStep
}

// Run iterates on exp in place. The experiment must be steady, since
// the derivative comes from the steady adjoint.
func (m *Match) Run(ctx context.Context, exp *experiment.Experiment) (*MatchResult, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	relax := m.Relax
	if relax == 0 {
		relax = 1
	}
	p, err := exp.Inputs().Scalar(m.Param)
	if err != nil {
		return nil, fmt.Errorf("optim: design input: %w", err)
	}

	result := &MatchResult{}
	for iter := 0; iter < m.MaxIter; iter++ {
		exp.SetScalar(m.Param, p)
		if _, err := exp.Run(ctx); err != nil {
			return result, fmt.Errorf("optim: iteration %d: %w", iter, err)
		}
		values, err := exp.Outputs()
		if err != nil {
			return result, err
		}
		val, ok := values[m.Output]
		if !ok {
			return result, fmt.Errorf("optim: experiment has no output %q", m.Output)
		}

		result.Param, result.Value, result.Iterations = p, val, iter+1
		miss := val - m.Target
		if math.Abs(miss) <= m.Tol {
			result.History = append(result.History, MatchStep{Param: p, Value: val})
			logger.Info("target matched", "output", m.Output, m.Param, p, "value", val, "iterations", iter+1)
			return result, nil
		}

		grad, err := exp.Gradient(m.Output, m.Param)
		if err != nil {
			return result, fmt.Errorf("optim: gradient: %w", err)
		}
		g := grad[0]
		result.History = append(result.History, MatchStep{Param: p, Value: val, Grad: g})
		if g == 0 {
			return result, fmt.Errorf("optim: %s does not depend on %s at %g", m.Output, m.Param, p)
		}

		dp := -relax * miss / g
		if m.MaxStep > 0 && math.Abs(dp) > m.MaxStep {
			dp = math.Copysign(m.MaxStep, dp)
		}
		logger.Debug("design update", "iter", iter, m.Param, p, "value", val, "grad", g, "step", dp)
		p += dp
	}

	return result, fmt.Errorf("%w after %d iterations: %s = %g, target %g", ErrNotConverged, m.MaxIter, m.Output, result.Value, m.Target)
}
