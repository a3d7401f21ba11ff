package physics

import (
	"errors"
	"fmt"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
)

var (
	// ErrUnsupported indicates an operation the wrapped module does not provide.
	ErrUnsupported = errors.New("physics: unsupported operation")

	// ErrStaleJacobian indicates use of a Jacobian after the residual was
	// re-evaluated or given new inputs.
	ErrStaleJacobian = errors.New("physics: stale jacobian")
)

// CapabilityError names the module and the missing operation.
type CapabilityError struct {
	Module string
	Op     Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%v: %s does not implement %s", ErrUnsupported, e.Module, e.Op)
}

func (e *CapabilityError) Unwrap() error {
	return ErrUnsupported
}

type Capability int

const (
	CapSetInputs Capability = iota
	CapSetOptions
	CapJacobian
	CapPreconditioner
	CapJVP
	CapVJP
	CapPartial
	CapMassMatrix
	CapStepSize
)

var capabilityNames = map[Capability]string{
	CapSetInputs:      "setInputs",
	CapSetOptions:     "setOptions",
	CapJacobian:       "jacobian",
	CapPreconditioner: "preconditioner",
	CapJVP:            "jacobianVectorProduct",
	CapVJP:            "vectorJacobianProduct",
	CapPartial:        "outputPartial",
	CapMassMatrix:     "massMatrix",
	CapStepSize:       "stepSize",
}

func (c Capability) String() string {
	if n, ok := capabilityNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Capability(%d)", int(c))
}

// ResidualModule maps (state, inputs) to a residual vector of length Size.
type ResidualModule interface {
	Size() int
	Evaluate(in *inputs.Bag, res []float64) error
}

// OutputModule maps (state, inputs) to a scalar.
type OutputModule interface {
	CalcOutput(in *inputs.Bag) (float64, error)
}

// LoadModule adds a contribution into a residual-sized vector.
type LoadModule interface {
	Size() int
	AddLoad(in *inputs.Bag, tv []float64) error
}

// Optional capabilities. A module implements whichever it supports; the
// wrappers resolve them once at construction.

type InputSetter interface {
	SetInputs(in *inputs.Bag) error
}

type OptionSetter interface {
	SetOptions(opts config.Options) error
}

// Jacobianer returns ∂R/∂wrt at the inputs last set.
type Jacobianer interface {
	Jacobian(in *inputs.Bag, wrt string) (linalg.Operator, error)
}

type Preconditioned interface {
	Preconditioner() linalg.Preconditioner
}

// JVP accumulates resDot += (∂f/∂wrt)·wrtDot for a vector-valued module.
// Inputs the module does not depend on contribute nothing.
type JVP interface {
	JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error
}

// VJP accumulates wrtBar += (∂f/∂wrt)ᵀ·resBar for a vector-valued module.
type VJP interface {
	VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error
}

// ScalarJVP returns (∂J/∂wrt)·wrtDot for an output.
type ScalarJVP interface {
	JacobianVectorProduct(wrtDot []float64, wrt string) (float64, error)
}

// ScalarVJP accumulates wrtBar += outBar·∂J/∂wrt for an output.
type ScalarVJP interface {
	VectorJacobianProduct(outBar float64, wrt string, wrtBar []float64) error
}

// Partialer accumulates partial += ∂J/∂wrt for an output.
type Partialer interface {
	CalcOutputPartial(wrt string, in *inputs.Bag, partial []float64) error
}

// MassMatrixer supplies M in M·du/dt + R(u, t) = 0.
type MassMatrixer interface {
	MassMatrix() linalg.Operator
}

// StepSizer recommends a time step from a stability rule such as CFL.
type StepSizer interface {
	StepSize(cfl float64, state []float64) (float64, error)
}
