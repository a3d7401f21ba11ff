package physics

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
)

// Residual is the handle every solver component works with. It holds the
// concrete module and the operations resolved for it at construction.
type Residual struct {
	name   string
	module ResidualModule
	caps   map[Capability]bool

	setInputs  func(*inputs.Bag) error
	setOptions func(config.Options) error
	jacobian   func(*inputs.Bag, string) (linalg.Operator, error)
	prec       func() linalg.Preconditioner
	jvp        func([]float64, string, []float64) error
	vjp        func([]float64, string, []float64) error
	mass       func() linalg.Operator
	stepSize   func(float64, []float64) (float64, error)

	gen uint64
}

// NewResidual wraps m. This is the only place the concrete type is seen.
func NewResidual(name string, m ResidualModule) *Residual {
	r := &Residual{name: name, module: m, caps: make(map[Capability]bool)}

	r.setInputs = func(*inputs.Bag) error { return nil }
	if s, ok := m.(InputSetter); ok {
		r.setInputs = s.SetInputs
		r.caps[CapSetInputs] = true
	}
	r.setOptions = func(config.Options) error { return nil }
	if s, ok := m.(OptionSetter); ok {
		r.setOptions = s.SetOptions
		r.caps[CapSetOptions] = true
	}
	r.jacobian = func(*inputs.Bag, string) (linalg.Operator, error) { return nil, r.unsupported(CapJacobian) }
	if j, ok := m.(Jacobianer); ok {
		r.jacobian = j.Jacobian
		r.caps[CapJacobian] = true
	}
	r.prec = func() linalg.Preconditioner { return nil }
	if p, ok := m.(Preconditioned); ok {
		r.prec = p.Preconditioner
		r.caps[CapPreconditioner] = true
	}
	r.jvp = func([]float64, string, []float64) error { return r.unsupported(CapJVP) }
	if j, ok := m.(JVP); ok {
		r.jvp = j.JacobianVectorProduct
		r.caps[CapJVP] = true
	}
	r.vjp = func([]float64, string, []float64) error { return r.unsupported(CapVJP) }
	if v, ok := m.(VJP); ok {
		r.vjp = v.VectorJacobianProduct
		r.caps[CapVJP] = true
	}
	r.mass = func() linalg.Operator { return linalg.Identity(m.Size()) }
	if mm, ok := m.(MassMatrixer); ok {
		r.mass = mm.MassMatrix
		r.caps[CapMassMatrix] = true
	}
	r.stepSize = func(float64, []float64) (float64, error) { return 0, r.unsupported(CapStepSize) }
	if s, ok := m.(StepSizer); ok {
		r.stepSize = s.StepSize
		r.caps[CapStepSize] = true
	}
	return r
}

func (r *Residual) unsupported(op Capability) error {
	return &CapabilityError{Module: r.name, Op: op}
}

func (r *Residual) Name() string { return r.name }

func (r *Residual) Size() int { return r.module.Size() }

// Module returns the wrapped module.
func (r *Residual) Module() ResidualModule { return r.module }

func (r *Residual) Has(c Capability) bool { return r.caps[c] }

// Capabilities lists the optional operations the module provides.
func (r *Residual) Capabilities() []Capability {
	var out []Capability
	for c := CapSetInputs; c <= CapStepSize; c++ {
		if r.caps[c] {
			out = append(out, c)
		}
	}
	return out
}

func (r *Residual) SetInputs(in *inputs.Bag) error {
	r.gen++
	return r.setInputs(in)
}

func (r *Residual) SetOptions(opts config.Options) error {
	r.gen++
	return r.setOptions(opts)
}

// Evaluate sets the inputs and writes R(state, inputs) into res.
func (r *Residual) Evaluate(in *inputs.Bag, res []float64) error {
	if len(res) != r.Size() {
		return fmt.Errorf("physics: %s residual has %d entries, buffer has %d", r.name, r.Size(), len(res))
	}
	if err := r.SetInputs(in); err != nil {
		return err
	}
	return r.module.Evaluate(in, res)
}

// Jacobian linearizes at in. The handle is invalidated by the next
// SetInputs, SetOptions, or Evaluate on r.
func (r *Residual) Jacobian(in *inputs.Bag, wrt string) (*Jacobian, error) {
	if err := r.SetInputs(in); err != nil {
		return nil, err
	}
	op, err := r.jacobian(in, wrt)
	if err != nil {
		return nil, err
	}
	return &Jacobian{op: op, owner: r, gen: r.gen, wrt: wrt}, nil
}

// Preconditioner returns the module's preferred preconditioner, or nil.
func (r *Residual) Preconditioner() linalg.Preconditioner { return r.prec() }

// MassMatrix returns M, the identity when the module has none.
func (r *Residual) MassMatrix() linalg.Operator { return r.mass() }

func (r *Residual) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	return r.jvp(wrtDot, wrt, resDot)
}

func (r *Residual) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	return r.vjp(resBar, wrt, wrtBar)
}

func (r *Residual) StepSize(cfl float64, state []float64) (float64, error) {
	return r.stepSize(cfl, state)
}

// Jacobian is a linearization tied to the residual state it was taken at.
type Jacobian struct {
	op    linalg.Operator
	owner *Residual
	gen   uint64
	wrt   string
}

func (j *Jacobian) Valid() bool {
	return j.gen == j.owner.gen
}

func (j *Jacobian) Wrt() string { return j.wrt }

// Operator returns the linear operator, or ErrStaleJacobian if the owning
// residual has changed since linearization.
func (j *Jacobian) Operator() (linalg.Operator, error) {
	if !j.Valid() {
		return nil, fmt.Errorf("%w: %s (d/d%s)", ErrStaleJacobian, j.owner.name, j.wrt)
	}
	return j.op, nil
}
