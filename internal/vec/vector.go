package vec

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNonFinite indicates a NaN or Inf entry in a vector.
	ErrNonFinite = errors.New("vec: non-finite value (NaN or Inf detected)")

	// ErrDimensionMismatch indicates vectors of different lengths.
	ErrDimensionMismatch = errors.New("vec: dimension mismatch")
)

type Vector []float64

func Zeros(n int) Vector {
	return make(Vector, n)
}

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Norm is the local Euclidean norm. Use a Comm for the global value.
func (v Vector) Norm() float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

func (v Vector) Dot(other Vector) float64 {
	return floats.Dot(v, other)
}

// Axpy sets v = v + alpha*x.
func (v Vector) Axpy(alpha float64, x Vector) {
	floats.AddScaled(v, alpha, x)
}

func (v Vector) Scale(factor float64) {
	floats.Scale(factor, v)
}

func (v Vector) Fill(x float64) {
	for i := range v {
		v[i] = x
	}
}

func (v Vector) Zero() {
	v.Fill(0)
}

// CheckLen returns ErrDimensionMismatch when the lengths differ.
func CheckLen(a, b []float64) error {
	if len(a) != len(b) {
		return ErrDimensionMismatch
	}
	return nil
}
