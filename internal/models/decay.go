package models

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/physics"
)

// Decay is the spatial residual R(u) = λ·u of du/dt + λ·u = 0.
type Decay struct {
	n      int
	lambda float64
	def    float64
	u      []float64
}

func NewDecay(n int) *Decay {
	return &Decay{n: n, def: 1, lambda: 1}
}

func (d *Decay) Size() int { return d.n }

func (d *Decay) SetOptions(opts config.Options) error {
	n, err := opts.Int("size", d.n)
	if err != nil {
		return err
	}
	if d.def, err = opts.Float(Lambda, d.def); err != nil {
		return err
	}
	d.n = n
	d.lambda = d.def
	return nil
}

func (d *Decay) SetInputs(in *inputs.Bag) error {
	d.lambda = d.def
	if _, err := in.ScalarInto(Lambda, &d.lambda); err != nil {
		return err
	}
	_, err := in.FieldInto(inputs.State, &d.u)
	return err
}

func (d *Decay) Evaluate(_ *inputs.Bag, res []float64) error {
	for i := range res {
		res[i] = d.lambda * d.u[i]
	}
	return nil
}

func (d *Decay) Jacobian(_ *inputs.Bag, wrt string) (linalg.Operator, error) {
	if wrt != inputs.State {
		return nil, unknownJacobian("decay", wrt)
	}
	j := linalg.NewDense(d.n, d.n)
	for i := 0; i < d.n; i++ {
		j.Set(i, i, d.lambda)
	}
	return j, nil
}

func (d *Decay) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	switch wrt {
	case inputs.State:
		for i := range resDot {
			resDot[i] += d.lambda * wrtDot[i]
		}
	case Lambda:
		for i := range resDot {
			resDot[i] += d.u[i] * wrtDot[0]
		}
	}
	return nil
}

func (d *Decay) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	switch wrt {
	case inputs.State:
		for i := range wrtBar {
			wrtBar[i] += d.lambda * resBar[i]
		}
	case Lambda:
		for i, r := range resBar {
			wrtBar[0] += d.u[i] * r
		}
	}
	return nil
}

// StepSize is the explicit stability limit cfl/λ.
func (d *Decay) StepSize(cfl float64, _ []float64) (float64, error) {
	if d.lambda <= 0 {
		return 0, fmt.Errorf("models: decay step size needs lambda > 0, got %g", d.lambda)
	}
	return cfl / d.lambda, nil
}

func unknownJacobian(module, wrt string) error {
	return fmt.Errorf("models: %s jacobian wrt %q: %w", module, wrt, physics.ErrUnsupported)
}
