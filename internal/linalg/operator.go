package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotTransposable indicates an operator that cannot apply its transpose.
	ErrNotTransposable = errors.New("linalg: operator has no transpose product")

	// ErrNotSquare indicates a non-square operator handed to a solver.
	ErrNotSquare = errors.New("linalg: operator is not square")
)

// Operator is a linear map applied as dst = A x.
type Operator interface {
	Dims() (rows, cols int)
	MulVec(dst, x []float64)
}

// TransposeOperator can also apply dst = Aᵀ x.
type TransposeOperator interface {
	Operator
	MulVecTrans(dst, x []float64)
}

type Dense struct {
	m *mat.Dense
}

func NewDense(rows, cols int) *Dense {
	return &Dense{m: mat.NewDense(rows, cols, nil)}
}

// DenseFrom wraps a row-major backing slice without copying it.
func DenseFrom(rows, cols int, data []float64) *Dense {
	return &Dense{m: mat.NewDense(rows, cols, data)}
}

func (d *Dense) Dims() (int, int) { return d.m.Dims() }
func (d *Dense) At(i, j int) float64 { return d.m.At(i, j) }
func (d *Dense) Set(i, j int, v float64) { d.m.Set(i, j, v) }
func (d *Dense) AddAt(i, j int, v float64) { d.m.Set(i, j, d.m.At(i, j)+v) }
func (d *Dense) Mat() *mat.Dense { return d.m }
func (d *Dense) Zero() { d.m.Zero() }

func (d *Dense) MulVec(dst, x []float64) {
	r, c := d.m.Dims()
	out := mat.NewVecDense(r, dst)
	out.MulVec(d.m, mat.NewVecDense(c, x))
}

func (d *Dense) MulVecTrans(dst, x []float64) {
	r, c := d.m.Dims()
	out := mat.NewVecDense(c, dst)
	out.MulVec(d.m.T(), mat.NewVecDense(r, x))
}

// IsValid reports whether every entry is finite.
func (d *Dense) IsValid() bool {
	r, c := d.m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := d.m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

type identity struct{ n int }

func Identity(n int) TransposeOperator { return identity{n: n} }

func (id identity) Dims() (int, int) { return id.n, id.n }
func (id identity) MulVec(dst, x []float64) { copy(dst, x) }
func (id identity) MulVecTrans(dst, x []float64) { copy(dst, x) }

// Term is one scaled operator in a Sum.
type Term struct {
	Scale float64
	Op    Operator
}

// Sum applies Σ Scale_i·Op_i lazily. It is used to form M/Δτ + J and
// M + dt·J without assembling either.
type Sum struct {
	Terms []Term
	tmp   []float64
}

func NewSum(terms ...Term) (*Sum, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("linalg: empty sum")
	}
	r, c := terms[0].Op.Dims()
	for _, t := range terms[1:] {
		tr, tc := t.Op.Dims()
		if tr != r || tc != c {
			return nil, fmt.Errorf("linalg: sum of %dx%d and %dx%d operators", r, c, tr, tc)
		}
	}
	return &Sum{Terms: terms}, nil
}

func (s *Sum) Dims() (int, int) { return s.Terms[0].Op.Dims() }

func (s *Sum) MulVec(dst, x []float64) {
	s.apply(dst, x, false)
}

func (s *Sum) MulVecTrans(dst, x []float64) {
	s.apply(dst, x, true)
}

func (s *Sum) apply(dst, x []float64, trans bool) {
	if len(s.tmp) != len(dst) {
		s.tmp = make([]float64, len(dst))
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, t := range s.Terms {
		if trans {
			t.Op.(TransposeOperator).MulVecTrans(s.tmp, x)
		} else {
			t.Op.MulVec(s.tmp, x)
		}
		for i := range dst {
			dst[i] += t.Scale * s.tmp[i]
		}
	}
}

// Transposable reports whether op can apply its transpose.
func Transposable(op Operator) bool {
	if s, ok := op.(*Sum); ok {
		for _, t := range s.Terms {
			if !Transposable(t.Op) {
				return false
			}
		}
		return true
	}
	_, ok := op.(TransposeOperator)
	return ok
}

type transposed struct {
	op TransposeOperator
}

// Transpose returns the operator Aᵀ.
func Transpose(op Operator) (TransposeOperator, error) {
	if !Transposable(op) {
		return nil, ErrNotTransposable
	}
	t := op.(TransposeOperator)
	if inner, ok := t.(transposed); ok {
		return inner.op, nil
	}
	return transposed{op: t}, nil
}

func (t transposed) Dims() (int, int) {
	r, c := t.op.Dims()
	return c, r
}

func (t transposed) MulVec(dst, x []float64) { t.op.MulVecTrans(dst, x) }
func (t transposed) MulVecTrans(dst, x []float64) { t.op.MulVec(dst, x) }

// ToDense assembles op by probing it with unit vectors. Dense operators
// are returned as is.
func ToDense(op Operator) *Dense {
	if d, ok := op.(*Dense); ok {
		return d
	}
	r, c := op.Dims()
	out := NewDense(r, c)
	e := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		e[j] = 1
		op.MulVec(col, e)
		for i := 0; i < r; i++ {
			out.m.Set(i, j, col[i])
		}
		e[j] = 0
	}
	return out
}
