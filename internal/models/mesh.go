package models

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/vec"
)

// UniformMesh returns n+2 equally spaced coordinates on [0, length]: n
// interior nodes plus the two boundary nodes.
func UniformMesh(n int, length float64) []float64 {
	x := make([]float64, n+2)
	h := length / float64(n+1)
	for i := range x {
		x[i] = float64(i) * h
	}
	return x
}

// Volumes writes the dual cell sizes V_i = (x_{i+1} − x_{i−1})/2 of the
// interior nodes of x into v.
func Volumes(x, v []float64) {
	for i := range v {
		v[i] = 0.5 * (x[i+2] - x[i])
	}
}

// addVolumeJVP accumulates dot += (∂V/∂x)·xDot.
func addVolumeJVP(xDot, dot []float64) {
	for i := range dot {
		dot[i] += 0.5 * (xDot[i+2] - xDot[i])
	}
}

// addVolumeVJP accumulates xBar += (∂V/∂x)ᵀ·vBar.
func addVolumeVJP(vBar, xBar []float64) {
	for i, w := range vBar {
		xBar[i+2] += 0.5 * w
		xBar[i] -= 0.5 * w
	}
}

// meshFrom reads the coordinates from the bag, falling back to def. The
// result must hold n+2 increasing values.
func meshFrom(in *inputs.Bag, def []float64, n int) ([]float64, error) {
	x := def
	if _, err := in.FieldInto(MeshCoords, &x); err != nil {
		return nil, err
	}
	if len(x) != n+2 {
		return nil, fmt.Errorf("%w: %s has %d nodes, want %d", vec.ErrDimensionMismatch, MeshCoords, len(x), n+2)
	}
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return nil, fmt.Errorf("models: %s not increasing at node %d", MeshCoords, i)
		}
	}
	return x, nil
}
