package sens

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/vec"
)

// Report compares an analytic sensitivity with a reference value.
type Report struct {
	Module    string
	Wrt       string
	Kind      string
	Analytic  float64
	Reference float64
	Error     float64
}

func (r Report) Passed(tol float64) bool {
	return r.Error <= tol
}

func (r Report) String() string {
	return fmt.Sprintf("%s d/d%s %s: analytic %.10e reference %.10e error %.3e",
		r.Module, r.Wrt, r.Kind, r.Analytic, r.Reference, r.Error)
}

// RandomDirection fills a vector of length n with entries in [-1, 1).
func RandomDirection(rng *rand.Rand, n int) []float64 {
	d := make([]float64, n)
	for i := range d {
		d[i] = 2*rng.Float64() - 1
	}
	return d
}

// ResidualDuality compares s·(∂R/∂p·d) with d·(∂R/∂pᵀ·s) for random d, s.
func ResidualDuality(res *physics.Residual, in *inputs.Bag, wrt string, rng *rand.Rand) (Report, error) {
	m, err := inputSize(in, wrt)
	if err != nil {
		return Report{}, err
	}
	if err := res.SetInputs(in); err != nil {
		return Report{}, err
	}
	d := RandomDirection(rng, m)
	s := RandomDirection(rng, res.Size())

	resDot := vec.Zeros(res.Size())
	if err := res.JacobianVectorProduct(d, wrt, resDot); err != nil {
		return Report{}, err
	}
	wrtBar := vec.Zeros(m)
	if err := res.VectorJacobianProduct(s, wrt, wrtBar); err != nil {
		return Report{}, err
	}
	fwd := resDot.Dot(s)
	rev := wrtBar.Dot(d)
	return Report{Module: res.Name(), Wrt: wrt, Kind: "duality", Analytic: fwd, Reference: rev, Error: relErr(fwd, rev)}, nil
}

// ResidualFD compares ∂R/∂p·d with (R(p + h·d) − R(p − h·d))/2h.
func ResidualFD(res *physics.Residual, in *inputs.Bag, wrt string, d []float64, h float64) (Report, error) {
	n := res.Size()
	if err := res.SetInputs(in); err != nil {
		return Report{}, err
	}
	jvp := vec.Zeros(n)
	if err := res.JacobianVectorProduct(d, wrt, jvp); err != nil {
		return Report{}, err
	}

	plus, minus := vec.Zeros(n), vec.Zeros(n)
	eval := func(step float64, dst []float64) error {
		bag, err := perturb(in, wrt, d, step)
		if err != nil {
			return err
		}
		return res.Evaluate(bag, dst)
	}
	if err := eval(h, plus); err != nil {
		return Report{}, err
	}
	if err := eval(-h, minus); err != nil {
		return Report{}, err
	}
	if err := res.SetInputs(in); err != nil {
		return Report{}, err
	}

	fd := plus
	fd.Axpy(-1, minus)
	fd.Scale(1 / (2 * h))
	diff := jvp.Clone()
	diff.Axpy(-1, fd)
	return Report{
		Module:    res.Name(),
		Wrt:       wrt,
		Kind:      "fd",
		Analytic:  jvp.Norm(),
		Reference: fd.Norm(),
		Error:     diff.Norm() / scale(jvp.Norm(), fd.Norm()),
	}, nil
}

// OutputDuality compares ∂J/∂p·d with d·(∂J/∂pᵀ·1) for a random d.
func OutputDuality(out *physics.Output, in *inputs.Bag, wrt string, rng *rand.Rand) (Report, error) {
	m, err := inputSize(in, wrt)
	if err != nil {
		return Report{}, err
	}
	if err := out.SetInputs(in); err != nil {
		return Report{}, err
	}
	d := RandomDirection(rng, m)
	s := 2*rng.Float64() - 1

	fwd, err := out.JacobianVectorProduct(d, wrt)
	if err != nil {
		return Report{}, err
	}
	wrtBar := vec.Zeros(m)
	if err := out.VectorJacobianProduct(s, wrt, wrtBar); err != nil {
		return Report{}, err
	}
	rev := wrtBar.Dot(d)
	return Report{Module: out.Name(), Wrt: wrt, Kind: "duality", Analytic: s * fwd, Reference: rev, Error: relErr(s*fwd, rev)}, nil
}

// OutputFD compares ∂J/∂p·d with (J(p + h·d) − J(p − h·d))/2h.
func OutputFD(out *physics.Output, in *inputs.Bag, wrt string, d []float64, h float64) (Report, error) {
	if err := out.SetInputs(in); err != nil {
		return Report{}, err
	}
	jvp, err := out.JacobianVectorProduct(d, wrt)
	if err != nil {
		return Report{}, err
	}

	eval := func(step float64) (float64, error) {
		bag, err := perturb(in, wrt, d, step)
		if err != nil {
			return 0, err
		}
		return out.Calc(bag)
	}
	plus, err := eval(h)
	if err != nil {
		return Report{}, err
	}
	minus, err := eval(-h)
	if err != nil {
		return Report{}, err
	}
	if err := out.SetInputs(in); err != nil {
		return Report{}, err
	}

	fd := (plus - minus) / (2 * h)
	return Report{Module: out.Name(), Wrt: wrt, Kind: "fd", Analytic: jvp, Reference: fd, Error: relErr(jvp, fd)}, nil
}

func inputSize(in *inputs.Bag, wrt string) (int, error) {
	v, err := in.Get(wrt)
	if err != nil {
		return 0, err
	}
	return v.Size(), nil
}

// perturb returns a copy of in with wrt moved by step·d. Field inputs get
// a fresh buffer; the caller's buffer is never written.
func perturb(in *inputs.Bag, wrt string, d []float64, step float64) (*inputs.Bag, error) {
	v, err := in.Get(wrt)
	if err != nil {
		return nil, err
	}
	if v.Size() != len(d) {
		return nil, fmt.Errorf("%w: direction for %q has %d entries, input has %d",
			vec.ErrDimensionMismatch, wrt, len(d), v.Size())
	}
	bag := in.Clone()
	if v.Kind() == inputs.KindScalar {
		x, _ := in.Scalar(wrt)
		return bag.SetScalar(wrt, x+step*d[0]), nil
	}
	f, _ := in.Field(wrt)
	moved := vec.Vector(f).Clone()
	moved.Axpy(step, d)
	return bag.SetField(wrt, moved), nil
}

func relErr(a, b float64) float64 {
	return math.Abs(a-b) / scale(math.Abs(a), math.Abs(b))
}

func scale(a, b float64) float64 {
	s := math.Max(a, b)
	if s < 1e-12 {
		return 1
	}
	return s
}
