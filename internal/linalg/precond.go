package linalg

import "math"

// IdentityPrec leaves the residual unchanged.
type IdentityPrec struct{}

func (IdentityPrec) SetOperator(Operator) error { return nil }
func (IdentityPrec) Apply(r, z []float64) { copy(z, r) }

// Diagonaler exposes the diagonal of an operator without assembly.
type Diagonaler interface {
	Diagonal(dst []float64)
}

// Jacobi scales by the inverse diagonal. Zero diagonal entries pass the
// residual through unscaled.
type Jacobi struct {
	inv []float64
}

func (j *Jacobi) SetOperator(op Operator) error {
	n, _ := op.Dims()
	diag := make([]float64, n)
	switch o := op.(type) {
	case Diagonaler:
		o.Diagonal(diag)
	default:
		d := ToDense(op)
		for i := range diag {
			diag[i] = d.At(i, i)
		}
	}
	j.inv = make([]float64, n)
	for i, v := range diag {
		if v == 0 || math.IsNaN(v) {
			j.inv[i] = 1
			continue
		}
		j.inv[i] = 1 / v
	}
	return nil
}

func (j *Jacobi) Apply(r, z []float64) {
	for i := range r {
		z[i] = j.inv[i] * r[i]
	}
}

func (d *Dense) Diagonal(dst []float64) {
	for i := range dst {
		dst[i] = d.m.At(i, i)
	}
}
