package integrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownScheme = errors.New("integrators: unknown scheme")

// Stepper advances u in place from t and returns the time reached, which
// is t+dt unless the scheme chose a smaller step.
type Stepper interface {
	Name() string
	Step(ctx context.Context, u []float64, t, dt float64) (float64, error)
}

// Adaptive steppers propose the size of the next step.
type Adaptive interface {
	Stepper
	Suggest() float64
}

// New returns the stepper for a time-dis type. abstol and reltol are used
// by RK45 only.
func New(scheme string, ode *ODE, abstol, reltol float64) (Stepper, error) {
	switch strings.ToUpper(scheme) {
	case "RK1", "EULER":
		return NewEuler(ode), nil
	case "RK4":
		return NewRK4(ode), nil
	case "RK45":
		return NewRK45(ode, abstol, reltol), nil
	case "MIDPOINT":
		return NewMidpoint(ode), nil
	case "PTC":
		return NewBackwardEuler(ode), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}
