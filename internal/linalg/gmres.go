package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GMRES is restarted GMRES(KDim) with right preconditioning, so the
// convergence test is on the true residual ‖b − A x‖.
type GMRES struct {
	MaxIter int
	KDim    int
	RelTol  float64
	AbsTol  float64
	Prec    Preconditioner

	op    Operator
	trans TransposeOperator
	last  Stats
}

func NewGMRES(prec Preconditioner) *GMRES {
	if prec == nil {
		prec = &IdentityPrec{}
	}
	return &GMRES{
		MaxIter: 100,
		KDim:    100,
		RelTol:  1e-12,
		AbsTol:  1e-12,
		Prec:    prec,
	}
}

func (g *GMRES) SetOperator(op Operator) error {
	r, c := op.Dims()
	if r != c {
		return fmt.Errorf("%w: %dx%d", ErrNotSquare, r, c)
	}
	g.op = op
	g.trans = nil
	return g.Prec.SetOperator(op)
}

// Stats reports the iteration count and residual of the last solve.
func (g *GMRES) Stats() Stats {
	return g.last
}

func (g *GMRES) Solve(b, x []float64) error {
	if g.op == nil {
		return ErrNoOperator
	}
	return g.solve(g.op, g.Prec, b, x)
}

// SolveTranspose solves Aᵀ x = b with a preconditioner built on Aᵀ.
func (g *GMRES) SolveTranspose(b, x []float64) error {
	if g.op == nil {
		return ErrNoOperator
	}
	if g.trans == nil {
		t, err := Transpose(g.op)
		if err != nil {
			return err
		}
		g.trans = t
	}
	prec := g.Prec
	// Jacobi and identity are unchanged by transposition.
	_, diagonal := prec.(*Jacobi)
	if _, ok := prec.(*IdentityPrec); ok {
		diagonal = true
	}
	if !diagonal {
		if err := prec.SetOperator(g.trans); err != nil {
			return err
		}
	}
	err := g.solve(g.trans, prec, b, x)
	if !diagonal {
		if perr := prec.SetOperator(g.op); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func (g *GMRES) solve(op Operator, prec Preconditioner, b, x []float64) error {
	n := len(b)
	if len(x) != n {
		return fmt.Errorf("linalg: solve with %d/%d entries", len(b), len(x))
	}
	m := g.KDim
	if m <= 0 || m > n {
		m = n
	}
	if m == 0 {
		g.last = Stats{}
		return nil
	}

	r := make([]float64, n)
	residual := func() float64 {
		op.MulVec(r, x)
		floats.SubTo(r, b, r)
		return floats.Norm(r, 2)
	}

	tol := math.Max(g.AbsTol, g.RelTol*floats.Norm(b, 2))
	beta := residual()
	g.last = Stats{Residual: beta}
	if beta <= tol {
		return nil
	}

	v := make([][]float64, m+1)
	z := make([][]float64, m)
	for i := range v {
		v[i] = make([]float64, n)
	}
	for i := range z {
		z[i] = make([]float64, n)
	}
	h := mat.NewDense(m+1, m, nil)
	w := make([]float64, n)
	gvec := make([]float64, m+1)
	iters := 0

	for iters < g.MaxIter {
		h.Zero()
		floats.ScaleTo(v[0], 1/beta, r)
		for i := range gvec {
			gvec[i] = 0
		}
		gvec[0] = beta

		var y mat.VecDense
		k := 0
		for k < m && iters < g.MaxIter {
			prec.Apply(v[k], z[k])
			op.MulVec(w, z[k])
			for i := 0; i <= k; i++ {
				hik := floats.Dot(w, v[i])
				h.Set(i, k, hik)
				floats.AddScaled(w, -hik, v[i])
			}
			hnext := floats.Norm(w, 2)
			h.Set(k+1, k, hnext)
			k++
			iters++

			est, err := leastSquares(&y, h, gvec, k)
			if err != nil {
				return err
			}
			if est <= tol || hnext <= 1e-14*beta {
				break
			}
			floats.ScaleTo(v[k], 1/hnext, w)
		}

		for j := 0; j < k; j++ {
			floats.AddScaled(x, y.AtVec(j), z[j])
		}
		beta = residual()
		g.last = Stats{Iterations: iters, Residual: beta}
		if beta <= tol {
			return nil
		}
		if math.IsNaN(beta) {
			return fmt.Errorf("%w: residual is NaN", ErrSingular)
		}
	}
	return &SolveError{Stats: g.last, Tolerance: tol}
}

// leastSquares solves min ‖g − H y‖ over the leading (k+1)×k block of the
// Hessenberg matrix and returns the residual of the small problem.
func leastSquares(y *mat.VecDense, h *mat.Dense, g []float64, k int) (float64, error) {
	hk := h.Slice(0, k+1, 0, k)
	gk := mat.NewVecDense(k+1, g[:k+1])
	y.Reset()
	if err := y.SolveVec(hk, gk); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return 0, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}
	var fit mat.VecDense
	fit.MulVec(hk, y)
	fit.SubVec(gk, &fit)
	return mat.Norm(&fit, 2), nil
}
