package newton

import (
	"errors"
	"fmt"

	"github.com/san-kum/multiphys/internal/vec"
)

var (
	// ErrDiverged indicates the residual norm grew past the divergence factor.
	ErrDiverged = errors.New("newton: diverged")

	// ErrMaxIterExceeded indicates the iteration cap was reached.
	ErrMaxIterExceeded = errors.New("newton: maximum iterations exceeded")
)

type Status int

const (
	Idle Status = iota
	Linearizing
	LinearSolve
	Converged
	Diverged
	MaxIterExceeded
	// Failed ends a solve cut short by an error other than
	// non-convergence.
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Linearizing:
		return "linearizing"
	case LinearSolve:
		return "linear-solve"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case MaxIterExceeded:
		return "max-iter-exceeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether s ends a solve.
func (s Status) Terminal() bool {
	return s >= Converged && s <= Failed
}

// ConvergenceError reports a solve that ended in Diverged or MaxIterExceeded.
type ConvergenceError struct {
	Status      Status
	Iterations  int
	Norm        float64
	InitialNorm float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%v after %d iterations: residual %.6e (initial %.6e)",
		e.Unwrap(), e.Iterations, e.Norm, e.InitialNorm)
}

func (e *ConvergenceError) Unwrap() error {
	if e.Status == Diverged {
		return ErrDiverged
	}
	return ErrMaxIterExceeded
}

// NumericalError reports a non-finite residual, Jacobian, or update.
// It is always fatal.
type NumericalError struct {
	Where     string
	Iteration int
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("newton: iteration %d: %s: %v", e.Iteration, e.Where, vec.ErrNonFinite)
}

func (e *NumericalError) Unwrap() error {
	return vec.ErrNonFinite
}
