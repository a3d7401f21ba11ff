package models

import (
	"fmt"
	"math"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/vec"
)

// meshOutput holds what the mesh functionals share: the node count, the
// default mesh and the current inputs.
type meshOutput struct {
	n    int
	mesh []float64
	x    []float64
	u    []float64
	vol  []float64
}

func newMeshOutput(mesh []float64) meshOutput {
	n := len(mesh) - 2
	return meshOutput{n: n, mesh: mesh, x: mesh, vol: make([]float64, n)}
}

func (m *meshOutput) SetInputs(in *inputs.Bag) error {
	x, err := meshFrom(in, m.mesh, m.n)
	if err != nil {
		return err
	}
	m.x, m.u = x, nil
	if _, err := in.FieldInto(inputs.State, &m.u); err != nil {
		return err
	}
	if m.u != nil && len(m.u) != m.n {
		return fmt.Errorf("%w: state has %d entries, want %d", vec.ErrDimensionMismatch, len(m.u), m.n)
	}
	Volumes(m.x, m.vol)
	return nil
}

func (m *meshOutput) state() ([]float64, error) {
	if m.u == nil {
		return nil, fmt.Errorf("%w: %q", inputs.ErrUnknownInput, inputs.State)
	}
	return m.u, nil
}

func (m *meshOutput) total() float64 {
	w := 0.0
	for _, v := range m.vol {
		w += v
	}
	return w
}

// Volume is Σ V_i over the interior nodes.
type Volume struct {
	meshOutput
}

func NewVolume(mesh []float64) *Volume {
	return &Volume{meshOutput: newMeshOutput(mesh)}
}

func (o *Volume) CalcOutput(*inputs.Bag) (float64, error) {
	return o.total(), nil
}

func (o *Volume) CalcOutputPartial(wrt string, _ *inputs.Bag, partial []float64) error {
	if wrt != MeshCoords {
		return nil
	}
	ones := make([]float64, o.n)
	vec.Vector(ones).Fill(1)
	addVolumeVJP(ones, partial)
	return nil
}

// Average is the volume-weighted mean Σ u_i·V_i / Σ V_i.
type Average struct {
	meshOutput
}

func NewAverage(mesh []float64) *Average {
	return &Average{meshOutput: newMeshOutput(mesh)}
}

func (o *Average) CalcOutput(*inputs.Bag) (float64, error) {
	u, err := o.state()
	if err != nil {
		return 0, err
	}
	s := 0.0
	for i, v := range o.vol {
		s += u[i] * v
	}
	return s / o.total(), nil
}

func (o *Average) CalcOutputPartial(wrt string, in *inputs.Bag, partial []float64) error {
	u, err := o.state()
	if err != nil {
		return err
	}
	w := o.total()
	switch wrt {
	case inputs.State:
		for i, v := range o.vol {
			partial[i] += v / w
		}
	case MeshCoords:
		avg, _ := o.CalcOutput(in)
		// ∂A/∂V_i = (u_i − A)/W
		vBar := make([]float64, o.n)
		for i := range vBar {
			vBar[i] = (u[i] - avg) / w
		}
		addVolumeVJP(vBar, partial)
	}
	return nil
}

// KSMax is the Kreisselmeier-Steinhauser aggregate
//
//	KS(u) = max(u) + ln(Σ exp(ρ·(u_i − max(u))))/ρ
//
// a smooth upper bound on max(u) that tightens as ρ grows.
type KSMax struct {
	rho float64
	u   []float64
	w   []float64
}

func NewKSMax() *KSMax {
	return &KSMax{rho: 10}
}

func (o *KSMax) SetOptions(opts config.Options) error {
	rho, err := opts.Float("rho", o.rho)
	if err != nil {
		return err
	}
	if rho <= 0 {
		return &config.ConfigurationError{Key: "rho", Reason: fmt.Sprintf("must be positive, got %g", rho)}
	}
	o.rho = rho
	return nil
}

func (o *KSMax) SetInputs(in *inputs.Bag) error {
	u, err := in.Field(inputs.State)
	if err != nil {
		return err
	}
	if len(u) == 0 {
		return fmt.Errorf("models: ks-max of an empty state")
	}
	o.u = u
	return nil
}

// eval returns KS and fills the softmax weights ∂KS/∂u_i.
func (o *KSMax) eval() float64 {
	m := math.Inf(-1)
	for _, u := range o.u {
		m = math.Max(m, u)
	}
	if len(o.w) != len(o.u) {
		o.w = make([]float64, len(o.u))
	}
	sum := 0.0
	for i, u := range o.u {
		o.w[i] = math.Exp(o.rho * (u - m))
		sum += o.w[i]
	}
	for i := range o.w {
		o.w[i] /= sum
	}
	return m + math.Log(sum)/o.rho
}

func (o *KSMax) CalcOutput(*inputs.Bag) (float64, error) {
	return o.eval(), nil
}

func (o *KSMax) JacobianVectorProduct(wrtDot []float64, wrt string) (float64, error) {
	if wrt != inputs.State {
		return 0, nil
	}
	o.eval()
	return vec.Vector(o.w).Dot(wrtDot), nil
}

func (o *KSMax) VectorJacobianProduct(outBar float64, wrt string, wrtBar []float64) error {
	if wrt != inputs.State {
		return nil
	}
	o.eval()
	vec.Vector(wrtBar).Axpy(outBar, o.w)
	return nil
}
