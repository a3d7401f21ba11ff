package sim

import (
	"context"
	"errors"
	"math"

	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/integrators"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/physics"
)

// testDecay is du/dt = -λu.
type testDecay struct {
	lambda float64
	u      []float64
}

func (d *testDecay) Size() int { return 1 }

func (d *testDecay) SetInputs(in *inputs.Bag) error {
	var err error
	d.u, err = in.Field(inputs.State)
	return err
}

func (d *testDecay) Evaluate(_ *inputs.Bag, res []float64) error {
	res[0] = d.lambda * d.u[0]
	return nil
}

func (d *testDecay) Jacobian(*inputs.Bag, string) (linalg.Operator, error) {
	return linalg.DenseFrom(1, 1, []float64{d.lambda}), nil
}

func (d *testDecay) StepSize(cfl float64, _ []float64) (float64, error) {
	return cfl / d.lambda, nil
}

func decayResidual(lambda float64) *physics.Residual {
	return physics.NewResidual("decay", &testDecay{lambda: lambda})
}

func testStepper(t interface{ Fatal(...any) }, scheme string, res *physics.Residual) integrators.Stepper {
	nl := newton.New(newton.Config{AbsTol: 1e-14, RelTol: 1e-12, MaxIter: 20, DivFactor: 1e10, Abort: true}, linalg.NewLU())
	s, err := integrators.New(scheme, integrators.NewODE(res, nl), 1e-8, 1e-8)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func residualNorm(res *physics.Residual) NormFunc {
	r := make([]float64, res.Size())
	return func(state []float64) (float64, error) {
		if err := res.Evaluate(inputs.New().SetField(inputs.State, state), r); err != nil {
			return 0, err
		}
		sum := 0.0
		for _, v := range r {
			sum += v * v
		}
		return math.Sqrt(sum), nil
	}
}

// flaky takes explicit Euler steps on du/dt = -u but fails any step
// larger than maxDt after corrupting the state.
type flaky struct {
	maxDt float64
	err   error
	calls int
}

func (f *flaky) Name() string { return "flaky" }

func (f *flaky) Step(_ context.Context, u []float64, t, dt float64) (float64, error) {
	f.calls++
	if dt > f.maxDt {
		u[0] = math.NaN()
		if f.err != nil {
			return t, f.err
		}
		return t, &newton.ConvergenceError{Status: newton.MaxIterExceeded, Iterations: 3, Norm: 1, InitialNorm: 1}
	}
	u[0] -= dt * u[0]
	return t + dt, nil
}

var errWiring = errors.New("wiring")

func baseConfig() Config {
	return Config{TFinal: 1, Dt: 0.01, MaxSteps: 1000, ExactTFinal: true}
}
