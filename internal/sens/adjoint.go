package sens

import (
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/logging"
	"github.com/san-kum/multiphys/internal/observability"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/vec"
)

// SolveAdjoint solves (∂R/∂u)ᵀ·λ = stateBar, linearizing res at the state
// held in the bag.
func SolveAdjoint(res *physics.Residual, in *inputs.Bag, lin linalg.TransposeSolver, stateBar, adjoint []float64) (err error) {
	n := res.Size()
	if len(stateBar) != n || len(adjoint) != n {
		return fmt.Errorf("%w: adjoint of %s has %d/%d entries, want %d",
			vec.ErrDimensionMismatch, res.Name(), len(stateBar), len(adjoint), n)
	}

	status := "converged"
	start := time.Now()
	defer func() {
		if err != nil {
			status = "failed"
			if errors.Is(err, linalg.ErrNotConverged) {
				status = "not-converged"
			}
		}
		observability.AdjointSolvesTotal.WithLabelValues(status).Inc()
		observability.LinearSolveDuration.WithLabelValues("adjoint").Observe(time.Since(start).Seconds())
	}()

	jac, err := res.Jacobian(in, inputs.State)
	if err != nil {
		return fmt.Errorf("sens: linearize %s: %w", res.Name(), err)
	}
	op, err := jac.Operator()
	if err != nil {
		return err
	}
	if err := lin.SetOperator(op); err != nil {
		return fmt.Errorf("sens: set adjoint operator: %w", err)
	}
	if err := lin.SolveTranspose(stateBar, adjoint); err != nil {
		return fmt.Errorf("sens: adjoint solve for %s: %w", res.Name(), err)
	}
	if !vec.Vector(adjoint).IsValid() {
		return fmt.Errorf("sens: adjoint of %s: %w", res.Name(), vec.ErrNonFinite)
	}
	logging.Log(logging.Adjoint, "adjoint solved", "residual", res.Name(),
		"rhs", vec.Vector(stateBar).Norm(), "adjoint", vec.Vector(adjoint).Norm())
	return nil
}

// StateBar accumulates ∂J/∂u into stateBar at the bag's state.
func StateBar(out *physics.Output, in *inputs.Bag, stateBar []float64) error {
	if _, err := out.Calc(in); err != nil {
		return fmt.Errorf("sens: output %s: %w", out.Name(), err)
	}
	if err := out.VectorJacobianProduct(1, inputs.State, stateBar); err != nil {
		return fmt.Errorf("sens: ∂%s/∂state: %w", out.Name(), err)
	}
	return nil
}

// TotalDerivative accumulates ∂J/∂p − λᵀ·∂R/∂p into grad, where p is the
// input named wrt.
func TotalDerivative(out *physics.Output, res *physics.Residual, adjoint []float64, wrt string, grad []float64) error {
	if wrt == inputs.State {
		return fmt.Errorf("sens: total derivative with respect to %q", wrt)
	}
	if err := out.VectorJacobianProduct(1, wrt, grad); err != nil {
		return fmt.Errorf("sens: ∂%s/∂%s: %w", out.Name(), wrt, err)
	}
	negAdjoint := vec.Vector(adjoint).Clone()
	negAdjoint.Scale(-1)
	if err := res.VectorJacobianProduct(negAdjoint, wrt, grad); err != nil {
		return fmt.Errorf("sens: ∂%s/∂%s: %w", res.Name(), wrt, err)
	}
	return nil
}
