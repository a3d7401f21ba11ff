package physics

import (
	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
)

// Load wraps a right-hand-side contribution.
type Load struct {
	name   string
	module LoadModule
	caps   map[Capability]bool

	setInputs  func(*inputs.Bag) error
	setOptions func(config.Options) error
	jvp        func([]float64, string, []float64) error
	vjp        func([]float64, string, []float64) error
}

func NewLoad(name string, m LoadModule) *Load {
	l := &Load{name: name, module: m, caps: make(map[Capability]bool)}

	l.setInputs = func(*inputs.Bag) error { return nil }
	if s, ok := m.(InputSetter); ok {
		l.setInputs = s.SetInputs
		l.caps[CapSetInputs] = true
	}
	l.setOptions = func(config.Options) error { return nil }
	if s, ok := m.(OptionSetter); ok {
		l.setOptions = s.SetOptions
		l.caps[CapSetOptions] = true
	}
	l.jvp = func([]float64, string, []float64) error { return l.unsupported(CapJVP) }
	if j, ok := m.(JVP); ok {
		l.jvp = j.JacobianVectorProduct
		l.caps[CapJVP] = true
	}
	l.vjp = func([]float64, string, []float64) error { return l.unsupported(CapVJP) }
	if v, ok := m.(VJP); ok {
		l.vjp = v.VectorJacobianProduct
		l.caps[CapVJP] = true
	}
	return l
}

func (l *Load) unsupported(op Capability) error {
	return &CapabilityError{Module: l.name, Op: op}
}

func (l *Load) Name() string { return l.name }

func (l *Load) Size() int { return l.module.Size() }

func (l *Load) Has(c Capability) bool { return l.caps[c] }

func (l *Load) SetInputs(in *inputs.Bag) error { return l.setInputs(in) }

func (l *Load) SetOptions(opts config.Options) error { return l.setOptions(opts) }

// AddLoad sets the inputs and accumulates the load into tv.
func (l *Load) AddLoad(in *inputs.Bag, tv []float64) error {
	if err := l.SetInputs(in); err != nil {
		return err
	}
	return l.module.AddLoad(in, tv)
}

func (l *Load) JacobianVectorProduct(wrtDot []float64, wrt string, resDot []float64) error {
	return l.jvp(wrtDot, wrt, resDot)
}

func (l *Load) VectorJacobianProduct(resBar []float64, wrt string, wrtBar []float64) error {
	return l.vjp(resBar, wrt, wrtBar)
}
