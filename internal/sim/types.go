package sim

import (
	"fmt"

	"github.com/san-kum/multiphys/internal/config"
)

type Config struct {
	TInitial    float64
	TFinal      float64
	Dt          float64
	MaxSteps    int
	ExactTFinal bool

	// Steady runs also exit once the residual norm drops below
	// SteadyAbsTol or SteadyRelTol times the initial norm.
	Steady       bool
	SteadyAbsTol float64
	SteadyRelTol float64
}

// ConfigFrom maps the time-dis group onto a Config.
func ConfigFrom(td config.TimeDis) Config {
	return Config{
		TInitial:     td.TInitial,
		TFinal:       td.TFinal,
		Dt:           td.Dt,
		MaxSteps:     td.MaxIter,
		ExactTFinal:  td.ExactTFinal,
		Steady:       td.Steady,
		SteadyAbsTol: td.SteadyAbsTol,
		SteadyRelTol: td.SteadyRelTol,
	}
}

// StepInfo describes the march at the start of a step.
type StepInfo struct {
	Iter     int
	T        float64
	TFinal   float64
	DtPrev   float64
	State    []float64
	ResNorm  float64
	ResNorm0 float64
}

// Hooks are the instrumentation points of a run. Nil fields are skipped.
// Initial runs once before stepping, Iteration after every accepted step,
// Exit after every step, and Terminal once after the loop ends.
type Hooks struct {
	Initial   func(state []float64) error
	Iteration func(iter int, t, dt float64, state []float64) error
	Exit      func(iter int, t, tFinal, dt float64, state []float64) bool
	Terminal  func(iter int, t float64, state []float64) error
}

type Metric interface {
	Name() string
	Observe(info StepInfo)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(info StepInfo)
}

type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitFinalTime
	ExitSteady
	ExitHook
	ExitMaxSteps
)

func (r ExitReason) String() string {
	switch r {
	case ExitNone:
		return "none"
	case ExitFinalTime:
		return "final-time"
	case ExitSteady:
		return "steady"
	case ExitHook:
		return "hook"
	case ExitMaxSteps:
		return "max-steps"
	default:
		return fmt.Sprintf("ExitReason(%d)", int(r))
	}
}

type Result struct {
	Steps    int
	Retries  int
	Time     float64
	Times    []float64
	Dts      []float64
	ResNorms []float64
	Reason   ExitReason
	Metrics  map[string]float64
}

// StepError reports the step that ended a run.
type StepError struct {
	Step    int
	Time    float64
	Dt      float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d at t=%.6g (dt=%.3g): %v", e.Step, e.Time, e.Dt, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
