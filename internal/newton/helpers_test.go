package newton_test

import (
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
)

// pointwise is R_i(u) = f(u_i, i) with a diagonal Jacobian.
type pointwise struct {
	n  int
	f  func(u float64, i int) float64
	df func(u float64, i int) float64
	u  []float64
}

func (p *pointwise) Size() int { return p.n }

func (p *pointwise) SetInputs(in *inputs.Bag) error {
	_, err := in.FieldInto(inputs.State, &p.u)
	return err
}

func (p *pointwise) Evaluate(in *inputs.Bag, res []float64) error {
	for i := range res {
		res[i] = p.f(p.u[i], i)
	}
	return nil
}

func (p *pointwise) Jacobian(in *inputs.Bag, wrt string) (linalg.Operator, error) {
	d := linalg.NewDense(p.n, p.n)
	for i := 0; i < p.n; i++ {
		d.Set(i, i, p.df(p.u[i], i))
	}
	return d, nil
}

// spd is R(u) = A·u − b for the 1D Laplacian A.
type spd struct {
	n int
	b []float64
	u []float64
	a *linalg.Dense
}

func newSPD(n int) *spd {
	a := linalg.NewDense(n, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a.Set(i, i, 2)
		if i > 0 {
			a.Set(i, i-1, -1)
		}
		if i < n-1 {
			a.Set(i, i+1, -1)
		}
		b[i] = 1
	}
	return &spd{n: n, a: a, b: b}
}

func (s *spd) Size() int { return s.n }

func (s *spd) SetInputs(in *inputs.Bag) error {
	_, err := in.FieldInto(inputs.State, &s.u)
	return err
}

func (s *spd) Evaluate(in *inputs.Bag, res []float64) error {
	s.a.MulVec(res, s.u)
	for i := range res {
		res[i] -= s.b[i]
	}
	return nil
}

func (s *spd) Jacobian(in *inputs.Bag, wrt string) (linalg.Operator, error) {
	return s.a, nil
}
