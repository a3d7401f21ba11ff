package physics

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
)

// loaded is R(u, p) = R_s(u, p) + L(p). The state Jacobian comes from the
// residual alone; sensitivities sum both parts.
type loaded struct {
	res  *Residual
	load *Load
}

// WithLoad composes a residual and a load into a new residual module.
func WithLoad(res *Residual, load *Load) (ResidualModule, error) {
	if res.Size() != load.Size() {
		return nil, fmt.Errorf("physics: %s has %d entries, load %s has %d",
			res.Name(), res.Size(), load.Name(), load.Size())
	}
	return &loaded{res: res, load: load}, nil
}

func (c *loaded) Size() int { return c.res.Size() }

func (c *loaded) SetInputs(in *inputs.Bag) error {
	if err := c.res.SetInputs(in); err != nil {
		return err
	}
	return c.load.SetInputs(in)
}

func (c *loaded) SetOptions(opts config.Options) error {
	if err := c.res.SetOptions(opts); err != nil {
		return err
	}
	return c.load.SetOptions(opts)
}

func (c *loaded) Evaluate(in *inputs.Bag, res []float64) error {
	if err := c.res.Evaluate(in, res); err != nil {
		return err
	}
	return c.load.AddLoad(in, res)
}

func (c *loaded) Jacobian(in *inputs.Bag, wrt string) (linalg.Operator, error) {
	if wrt != inputs.State {
		return nil, fmt.Errorf("physics: %s: jacobian wrt %q: %w", c.res.Name(), wrt, ErrUnsupported)
	}
	j, err := c.res.Jacobian(in, wrt)
	if err != nil {
		return nil, err
	}
	return j.Operator()
}

func (c *loaded) Preconditioner() linalg.Preconditioner {
	return c.res.Preconditioner()
}

func (c *loaded) MassMatrix() linalg.Operator {
	return c.res.MassMatrix()
}

func (c *loaded) StepSize(cfl float64, state []float64) (float64, error) {
	return c.res.StepSize(cfl, state)
}

func (c *loaded) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	if err := c.res.JacobianVectorProduct(wrtDot, wrt, resDot); err != nil {
		return err
	}
	return c.load.JacobianVectorProduct(wrtDot, wrt, resDot)
}

func (c *loaded) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	if err := c.res.VectorJacobianProduct(resBar, wrt, wrtBar); err != nil {
		return err
	}
	return c.load.VectorJacobianProduct(resBar, wrt, wrtBar)
}
