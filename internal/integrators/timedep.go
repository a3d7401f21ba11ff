package integrators

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/vec"
)

// Keys of the stage bag, alongside inputs.State (the stage derivative k)
// and inputs.Time.
const (
	BaseState  = "ode_state"
	StageShift = "ode_dt"
)

// TimeDependent is the stage residual
//
//	F(k) = M·k + R(u + a·k, t)
//
// whose root k approximates du/dt. a = 0 gives an explicit stage, a = dt/2
// the implicit midpoint stage.
type TimeDependent struct {
	spatial *physics.Residual
	mass    linalg.Operator

	k    []float64
	u    []float64
	a    float64
	t    float64
	work vec.Vector
	mk   vec.Vector
	bag  *inputs.Bag
}

func NewTimeDependent(spatial *physics.Residual) *TimeDependent {
	n := spatial.Size()
	return &TimeDependent{
		spatial: spatial,
		work:    vec.Zeros(n),
		mk:      vec.Zeros(n),
	}
}

func (td *TimeDependent) Size() int { return td.spatial.Size() }

// Spatial returns the wrapped residual.
func (td *TimeDependent) Spatial() *physics.Residual { return td.spatial }

// SetInputs reads k, u, a and t. Any other key is forwarded to the
// spatial residual unchanged.
func (td *TimeDependent) SetInputs(in *inputs.Bag) error {
	var err error
	if td.k, err = in.Field(inputs.State); err != nil {
		return err
	}
	if td.u, err = in.Field(BaseState); err != nil {
		return err
	}
	td.a, td.t = 0, 0
	if _, err = in.ScalarInto(StageShift, &td.a); err != nil {
		return err
	}
	if _, err = in.ScalarInto(inputs.Time, &td.t); err != nil {
		return err
	}
	if len(td.k) != len(td.work) || len(td.u) != len(td.work) {
		return fmt.Errorf("%w: stage of %s has %d/%d entries, want %d",
			vec.ErrDimensionMismatch, td.spatial.Name(), len(td.k), len(td.u), len(td.work))
	}
	for i := range td.work {
		td.work[i] = td.u[i] + td.a*td.k[i]
	}
	td.bag = in.Clone()
	td.bag.Delete(BaseState)
	td.bag.Delete(StageShift)
	td.bag.SetField(inputs.State, td.work)
	if err := td.spatial.SetInputs(td.bag); err != nil {
		return err
	}
	td.mass = td.spatial.MassMatrix()
	return nil
}

func (td *TimeDependent) Evaluate(_ *inputs.Bag, res []float64) error {
	if err := td.spatial.Evaluate(td.bag, res); err != nil {
		return err
	}
	td.mass.MulVec(td.mk, td.k)
	vec.Vector(res).Axpy(1, td.mk)
	return nil
}

// Jacobian returns M + a·∂R/∂u. Explicit stages never linearize the
// spatial residual.
func (td *TimeDependent) Jacobian(_ *inputs.Bag, wrt string) (linalg.Operator, error) {
	if wrt != inputs.State {
		return nil, fmt.Errorf("%w: stage of %s is linearized in %q only", physics.ErrUnsupported, td.spatial.Name(), inputs.State)
	}
	if td.a == 0 {
		return td.mass, nil
	}
	jac, err := td.spatial.Jacobian(td.bag, inputs.State)
	if err != nil {
		return nil, err
	}
	op, err := jac.Operator()
	if err != nil {
		return nil, err
	}
	return linalg.NewSum(
		linalg.Term{Scale: 1, Op: td.mass},
		linalg.Term{Scale: td.a, Op: op},
	)
}
