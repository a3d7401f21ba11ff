package physics

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
)

// Output wraps a functional J(state, inputs).
type Output struct {
	name   string
	module OutputModule
	caps   map[Capability]bool
	last   *inputs.Bag

	setInputs  func(*inputs.Bag) error
	setOptions func(config.Options) error
	partial    func(string, *inputs.Bag, []float64) error
	jvp        func([]float64, string) (float64, error)
	vjp        func(float64, string, []float64) error
}

func NewOutput(name string, m OutputModule) *Output {
	o := &Output{name: name, module: m, caps: make(map[Capability]bool)}

	o.setInputs = func(*inputs.Bag) error { return nil }
	if s, ok := m.(InputSetter); ok {
		o.setInputs = s.SetInputs
		o.caps[CapSetInputs] = true
	}
	o.setOptions = func(config.Options) error { return nil }
	if s, ok := m.(OptionSetter); ok {
		o.setOptions = s.SetOptions
		o.caps[CapSetOptions] = true
	}
	o.partial = func(string, *inputs.Bag, []float64) error { return o.unsupported(CapPartial) }
	if p, ok := m.(Partialer); ok {
		o.partial = p.CalcOutputPartial
		o.caps[CapPartial] = true
	}

	// Products fall back to the explicit partial when the module only
	// provides that.
	o.jvp = o.jvpFromPartial
	if j, ok := m.(ScalarJVP); ok {
		o.jvp = j.JacobianVectorProduct
		o.caps[CapJVP] = true
	}
	o.vjp = o.vjpFromPartial
	if v, ok := m.(ScalarVJP); ok {
		o.vjp = v.VectorJacobianProduct
		o.caps[CapVJP] = true
	}
	return o
}

func (o *Output) unsupported(op Capability) error {
	return &CapabilityError{Module: o.name, Op: op}
}

func (o *Output) Name() string { return o.name }

func (o *Output) Module() OutputModule { return o.module }

func (o *Output) Has(c Capability) bool { return o.caps[c] }

func (o *Output) SetInputs(in *inputs.Bag) error {
	o.last = in
	return o.setInputs(in)
}

func (o *Output) SetOptions(opts config.Options) error {
	return o.setOptions(opts)
}

func (o *Output) Calc(in *inputs.Bag) (float64, error) {
	if err := o.SetInputs(in); err != nil {
		return 0, err
	}
	return o.module.CalcOutput(in)
}

// Partial accumulates partial += ∂J/∂wrt at in.
func (o *Output) Partial(wrt string, in *inputs.Bag, partial []float64) error {
	if err := o.SetInputs(in); err != nil {
		return err
	}
	return o.partial(wrt, in, partial)
}

func (o *Output) JacobianVectorProduct(wrtDot []float64, wrt string) (float64, error) {
	return o.jvp(wrtDot, wrt)
}

func (o *Output) VectorJacobianProduct(outBar float64, wrt string, wrtBar []float64) error {
	return o.vjp(outBar, wrt, wrtBar)
}

func (o *Output) lastPartial(wrt string, n int) ([]float64, error) {
	if !o.caps[CapPartial] {
		return nil, o.unsupported(CapVJP)
	}
	if o.last == nil {
		return nil, fmt.Errorf("physics: %s: sensitivity requested before inputs were set", o.name)
	}
	p := make([]float64, n)
	if err := o.partial(wrt, o.last, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (o *Output) jvpFromPartial(wrtDot []float64, wrt string) (float64, error) {
	p, err := o.lastPartial(wrt, len(wrtDot))
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for i, v := range p {
		sum += v * wrtDot[i]
	}
	return sum, nil
}

func (o *Output) vjpFromPartial(outBar float64, wrt string, wrtBar []float64) error {
	p, err := o.lastPartial(wrt, len(wrtBar))
	if err != nil {
		return err
	}
	for i, v := range p {
		wrtBar[i] += outBar * v
	}
	return nil
}
