package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LU is a direct solver backed by a dense LU factorization. Operators
// that are not *Dense are assembled by probing.
type LU struct {
	lu   mat.LU
	n    int
	cond float64
	set  bool
}

func NewLU() *LU {
	return &LU{}
}

func (s *LU) SetOperator(op Operator) error {
	r, c := op.Dims()
	if r != c {
		return fmt.Errorf("%w: %dx%d", ErrNotSquare, r, c)
	}
	d := ToDense(op)
	s.lu.Factorize(d.m)
	s.n = r
	s.cond = s.lu.Cond()
	s.set = true
	return nil
}

// Cond is the condition number estimate of the last factorization.
func (s *LU) Cond() float64 {
	return s.cond
}

func (s *LU) Solve(b, x []float64) error {
	return s.solve(b, x, false)
}

func (s *LU) SolveTranspose(b, x []float64) error {
	return s.solve(b, x, true)
}

func (s *LU) solve(b, x []float64, trans bool) error {
	if !s.set {
		return ErrNoOperator
	}
	if len(b) != s.n || len(x) != s.n {
		return fmt.Errorf("linalg: solve with %d/%d entries for a %d system", len(b), len(x), s.n)
	}
	dst := mat.NewVecDense(s.n, x)
	err := s.lu.SolveVecTo(dst, trans, mat.NewVecDense(s.n, b))
	if err == nil {
		return nil
	}
	// An ill-conditioned but finite factorization still yields a usable solution.
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 0) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSingular, err)
}
