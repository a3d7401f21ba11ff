package linalg

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tridiag(n int, lower, diag, upper float64) *Dense {
	d := NewDense(n, n)
	for i := 0; i < n; i++ {
		d.Set(i, i, diag)
		if i > 0 {
			d.Set(i, i-1, lower)
		}
		if i < n-1 {
			d.Set(i, i+1, upper)
		}
	}
	return d
}

func residualNorm(t *testing.T, op Operator, b, x []float64) float64 {
	t.Helper()
	r := make([]float64, len(b))
	op.MulVec(r, x)
	sum := 0.0
	for i := range r {
		d := r[i] - b[i]
		sum += d * d
	}
	return sum
}

func TestDense_MulVecTrans(t *testing.T) {
	d := DenseFrom(2, 3, []float64{1, 2, 3, 4, 5, 6})

	out := make([]float64, 2)
	d.MulVec(out, []float64{1, 1, 1})
	assert.Equal(t, []float64{6, 15}, out)

	outT := make([]float64, 3)
	d.MulVecTrans(outT, []float64{1, 1})
	assert.Equal(t, []float64{5, 7, 9}, outT)

	tr, err := Transpose(d)
	require.NoError(t, err)
	r, c := tr.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
}

func TestSum_ScalesTerms(t *testing.T) {
	a := tridiag(3, -1, 2, -1)
	s, err := NewSum(Term{Scale: 2, Op: Identity(3)}, Term{Scale: 0.5, Op: a})
	require.NoError(t, err)

	dense := ToDense(s)
	assert.InDelta(t, 3.0, dense.At(0, 0), 1e-15)
	assert.InDelta(t, -0.5, dense.At(0, 1), 1e-15)
	assert.InDelta(t, 0.0, dense.At(0, 2), 1e-15)

	_, err = NewSum(Term{Scale: 1, Op: Identity(2)}, Term{Scale: 1, Op: a})
	assert.Error(t, err)
}

func TestLU_SolveAndTranspose(t *testing.T) {
	a := tridiag(5, -1, 4, -2)
	b := []float64{1, 2, 3, 4, 5}

	lu := NewLU()
	require.NoError(t, lu.SetOperator(a))

	x := make([]float64, 5)
	require.NoError(t, lu.Solve(b, x))
	assert.Less(t, residualNorm(t, a, b, x), 1e-24)

	xt := make([]float64, 5)
	require.NoError(t, lu.SolveTranspose(b, xt))
	at, err := Transpose(a)
	require.NoError(t, err)
	assert.Less(t, residualNorm(t, at, b, xt), 1e-24)
}

func TestLU_Singular(t *testing.T) {
	a := DenseFrom(2, 2, []float64{1, 2, 2, 4})
	lu := NewLU()
	require.NoError(t, lu.SetOperator(a))

	err := lu.Solve([]float64{1, 1}, make([]float64, 2))
	assert.True(t, errors.Is(err, ErrSingular), "got %v", err)
}

func TestLU_NoOperator(t *testing.T) {
	err := NewLU().Solve([]float64{1}, []float64{0})
	assert.ErrorIs(t, err, ErrNoOperator)
}

func TestGMRES_Converges(t *testing.T) {
	tests := []struct {
		name string
		prec string
		kdim int
	}{
		{"identity full", "none", 20},
		{"jacobi full", "jacobi", 20},
		{"jacobi restarted", "jacobi", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tridiag(12, -1, 3, -1.5)
			b := make([]float64, 12)
			for i := range b {
				b[i] = float64(i%3) + 1
			}

			s, err := NewSolver(Options{Type: "gmres", Prec: tt.prec, KDim: tt.kdim, MaxIter: 500, RelTol: 1e-12, AbsTol: 1e-14})
			require.NoError(t, err)
			require.NoError(t, s.SetOperator(a))

			x := make([]float64, 12)
			require.NoError(t, s.Solve(b, x))
			assert.Less(t, residualNorm(t, a, b, x), 1e-18)

			xt := make([]float64, 12)
			require.NoError(t, s.SolveTranspose(b, xt))
			at, _ := Transpose(a)
			assert.Less(t, residualNorm(t, at, b, xt), 1e-18)
		})
	}
}

func TestGMRES_ReportsNonConvergence(t *testing.T) {
	a := tridiag(30, -1, 2, -1)
	b := make([]float64, 30)
	b[0] = 1

	g := NewGMRES(nil)
	g.MaxIter = 2
	g.KDim = 2
	require.NoError(t, g.SetOperator(a))

	err := g.Solve(b, make([]float64, 30))
	var se *SolveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Iterations)
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestNewSolver_UnknownType(t *testing.T) {
	_, err := NewSolver(Options{Type: "cholesky-magic"})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = NewSolver(Options{Type: "gmres", Prec: "amg"})
	assert.ErrorIs(t, err, ErrUnknownType)

	s, err := NewSolver(Options{Type: "LU"})
	require.NoError(t, err)
	assert.IsType(t, &LU{}, s)
}

func TestJacobi_ZeroDiagonal(t *testing.T) {
	a := DenseFrom(2, 2, []float64{0, 1, 1, 4})
	j := &Jacobi{}
	require.NoError(t, j.SetOperator(a))

	z := make([]float64, 2)
	j.Apply([]float64{2, 2}, z)
	assert.Equal(t, []float64{2, 0.5}, z)
}

func TestDense_IsValid(t *testing.T) {
	d := NewDense(2, 2)
	assert.True(t, d.IsValid())
	d.Set(1, 0, math.Inf(1))
	assert.False(t, d.IsValid())
}
