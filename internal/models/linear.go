package models

import (
	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
)

// Linear is R(u) = a·u − b elementwise.
type Linear struct {
	n    int
	a, b float64
	u    []float64

	defA, defB float64
}

func NewLinear(n int) *Linear {
	return &Linear{n: n, defA: 1, a: 1}
}

func (l *Linear) Size() int { return l.n }

// SetOptions reads size, a and b. a and b are defaults the inputs
// override.
func (l *Linear) SetOptions(opts config.Options) error {
	n, err := opts.Int("size", l.n)
	if err != nil {
		return err
	}
	if l.defA, err = opts.Float(LinearCoeff, l.defA); err != nil {
		return err
	}
	if l.defB, err = opts.Float(LinearRHS, l.defB); err != nil {
		return err
	}
	l.n = n
	l.a, l.b = l.defA, l.defB
	return nil
}

func (l *Linear) SetInputs(in *inputs.Bag) error {
	l.a, l.b = l.defA, l.defB
	if _, err := in.ScalarInto(LinearCoeff, &l.a); err != nil {
		return err
	}
	if _, err := in.ScalarInto(LinearRHS, &l.b); err != nil {
		return err
	}
	_, err := in.FieldInto(inputs.State, &l.u)
	return err
}

func (l *Linear) Evaluate(_ *inputs.Bag, res []float64) error {
	for i := range res {
		res[i] = l.a*l.u[i] - l.b
	}
	return nil
}

func (l *Linear) Jacobian(_ *inputs.Bag, wrt string) (linalg.Operator, error) {
	j := linalg.NewDense(l.n, l.n)
	switch wrt {
	case inputs.State:
		for i := 0; i < l.n; i++ {
			j.Set(i, i, l.a)
		}
	default:
		return nil, unknownJacobian("linear", wrt)
	}
	return j, nil
}

func (l *Linear) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	switch wrt {
	case inputs.State:
		for i := range resDot {
			resDot[i] += l.a * wrtDot[i]
		}
	case LinearCoeff:
		for i := range resDot {
			resDot[i] += l.u[i] * wrtDot[0]
		}
	case LinearRHS:
		for i := range resDot {
			resDot[i] -= wrtDot[0]
		}
	}
	return nil
}

func (l *Linear) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	switch wrt {
	case inputs.State:
		for i := range wrtBar {
			wrtBar[i] += l.a * resBar[i]
		}
	case LinearCoeff:
		for i, r := range resBar {
			wrtBar[0] += l.u[i] * r
		}
	case LinearRHS:
		for _, r := range resBar {
			wrtBar[0] -= r
		}
	}
	return nil
}
