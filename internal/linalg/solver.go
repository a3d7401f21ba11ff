package linalg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSingular indicates a linear system with no unique solution.
	ErrSingular = errors.New("linalg: singular operator")

	// ErrNotConverged indicates an iterative solve that missed its tolerance.
	ErrNotConverged = errors.New("linalg: iterative solve did not converge")

	// ErrNoOperator indicates Solve was called before SetOperator.
	ErrNoOperator = errors.New("linalg: no operator set")

	// ErrUnknownType indicates an unrecognized solver or preconditioner name.
	ErrUnknownType = errors.New("linalg: unknown type")
)

// Solver solves A x = b for the operator last passed to SetOperator.
// x holds the initial guess on entry for iterative solvers.
type Solver interface {
	SetOperator(op Operator) error
	Solve(b, x []float64) error
}

// TransposeSolver also solves Aᵀ x = b.
type TransposeSolver interface {
	Solver
	SolveTranspose(b, x []float64) error
}

// Preconditioner approximates z = A⁻¹ r.
type Preconditioner interface {
	SetOperator(op Operator) error
	Apply(r, z []float64)
}

// Stats describes the last solve of an iterative solver.
type Stats struct {
	Iterations int
	Residual   float64
}

// SolveError reports an iterative solve that stopped short of its tolerance.
type SolveError struct {
	Stats
	Tolerance float64
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("%v: %d iterations, residual %.3e > %.3e",
		ErrNotConverged, e.Iterations, e.Residual, e.Tolerance)
}

func (e *SolveError) Unwrap() error {
	return ErrNotConverged
}

// Options selects and tunes a solver by name.
type Options struct {
	Type    string
	MaxIter int
	KDim    int
	RelTol  float64
	AbsTol  float64
	Prec    string
}

// NewSolver builds the solver named by opts.Type. Recognized names are
// "lu" (also "direct") and "gmres".
func NewSolver(opts Options) (TransposeSolver, error) {
	switch strings.ToLower(opts.Type) {
	case "lu", "direct":
		return NewLU(), nil
	case "gmres":
		prec, err := NewPreconditioner(opts.Prec)
		if err != nil {
			return nil, err
		}
		g := NewGMRES(prec)
		if opts.MaxIter > 0 {
			g.MaxIter = opts.MaxIter
		}
		if opts.KDim > 0 {
			g.KDim = opts.KDim
		}
		if opts.RelTol > 0 {
			g.RelTol = opts.RelTol
		}
		if opts.AbsTol > 0 {
			g.AbsTol = opts.AbsTol
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: solver %q", ErrUnknownType, opts.Type)
	}
}

// NewPreconditioner builds a preconditioner by name: "jacobi", or
// "none"/"" for the identity.
func NewPreconditioner(name string) (Preconditioner, error) {
	switch strings.ToLower(name) {
	case "", "none", "identity":
		return &IdentityPrec{}, nil
	case "jacobi":
		return &Jacobi{}, nil
	default:
		return nil, fmt.Errorf("%w: preconditioner %q", ErrUnknownType, name)
	}
}
