// Package sim drives a state through time with a stepping scheme.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/multiphys/internal/integrators"
	"github.com/san-kum/multiphys/internal/logging"
	"github.com/san-kum/multiphys/internal/observability"
	"github.com/san-kum/multiphys/internal/vec"
)

// ErrMaxSteps is returned when the step limit is hit before any exit
// criterion.
var ErrMaxSteps = errors.New("sim: step limit reached")

// NormFunc returns the residual norm at state.
type NormFunc func(state []float64) (float64, error)

type Option func(*Simulator)

func WithStepSizer(s StepSizer) Option {
	return func(sim *Simulator) { sim.sizer = s }
}

func WithRetry(p RetryPolicy) Option {
	return func(sim *Simulator) { sim.retry = p }
}

// WithResidualNorm enables residual tracking for steady exits and
// PTC step sizing.
func WithResidualNorm(fn NormFunc) Option {
	return func(sim *Simulator) { sim.norm = fn }
}

func WithHooks(h Hooks) Option {
	return func(sim *Simulator) { sim.hooks = append(sim.hooks, h) }
}

func WithLogger(l *slog.Logger) Option {
	return func(sim *Simulator) { sim.logger = l }
}

type Simulator struct {
	stepper   integrators.Stepper
	sizer     StepSizer
	retry     RetryPolicy
	norm      NormFunc
	hooks     []Hooks
	metrics   []Metric
	observers []Observer
	logger    *slog.Logger
}

func New(stepper integrators.Stepper, opts ...Option) *Simulator {
	s := &Simulator{
		stepper: stepper,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) AddHooks(h Hooks)       { s.hooks = append(s.hooks, h) }

func (s *Simulator) Stepper() integrators.Stepper { return s.stepper }

// Run advances state in place until an exit criterion holds. Once the
// configuration is accepted Terminal hooks always run, with the number of
// completed steps, even when an Initial hook or a step fails.
func (s *Simulator) Run(ctx context.Context, state []float64, cfg Config) (result *Result, err error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	sizer := s.sizer
	if sizer == nil {
		sizer = FixedStep{Dt: cfg.Dt, ExactTFinal: cfg.ExactTFinal}
	}

	result = &Result{Metrics: make(map[string]float64)}
	for _, m := range s.metrics {
		m.Reset()
	}

	t := cfg.TInitial
	iter := 0
	defer func() {
		result.Time = t
		for _, m := range s.metrics {
			result.Metrics[m.Name()] = m.Value()
		}
		for _, h := range s.hooks {
			if h.Terminal == nil {
				continue
			}
			if herr := h.Terminal(iter, t, state); herr != nil {
				err = errors.Join(err, fmt.Errorf("sim: terminal hook: %w", herr))
			}
		}
	}()

	info := StepInfo{T: t, TFinal: cfg.TFinal, State: state}
	if s.norm != nil {
		if info.ResNorm0, err = s.norm(state); err != nil {
			return result, fmt.Errorf("sim: initial residual: %w", err)
		}
		info.ResNorm = info.ResNorm0
		result.ResNorms = append(result.ResNorms, info.ResNorm0)
	}

	for _, h := range s.hooks {
		if h.Initial == nil {
			continue
		}
		if err := h.Initial(state); err != nil {
			return result, fmt.Errorf("sim: initial hook: %w", err)
		}
	}

	for ; iter < cfg.MaxSteps; iter++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		info.Iter, info.T = iter, t
		dt, err := sizer.Next(info)
		if err != nil {
			return result, &StepError{Step: iter, Time: t, Dt: dt, Wrapped: err}
		}
		if !(dt > 0) || math.IsInf(dt, 0) {
			return result, &StepError{Step: iter, Time: t, Dt: dt, Wrapped: fmt.Errorf("sim: invalid step size %g", dt)}
		}

		tNew, err := s.step(ctx, state, t, dt, result)
		if err != nil {
			return result, &StepError{Step: iter, Time: t, Dt: dt, Wrapped: err}
		}
		dt = tNew - t
		t = tNew
		info.DtPrev = dt
		info.T = t
		result.Steps++
		result.Times = append(result.Times, t)
		result.Dts = append(result.Dts, dt)
		observability.TimeStepsTotal.WithLabelValues(s.stepper.Name()).Inc()

		if s.norm != nil {
			if info.ResNorm, err = s.norm(state); err != nil {
				return result, &StepError{Step: iter, Time: t, Dt: dt, Wrapped: err}
			}
			result.ResNorms = append(result.ResNorms, info.ResNorm)
		}
		logging.Log(logging.ODE, "step", "iter", iter, "t", t, "dt", dt, "res", info.ResNorm)

		for _, h := range s.hooks {
			if h.Iteration == nil {
				continue
			}
			if err := h.Iteration(iter, t, dt, state); err != nil {
				return result, fmt.Errorf("sim: iteration hook: %w", err)
			}
		}
		for _, m := range s.metrics {
			m.Observe(info)
		}
		for _, obs := range s.observers {
			obs.OnStep(info)
		}

		if reason := s.exit(cfg, info, dt); reason != ExitNone {
			result.Reason = reason
			iter++
			return result, nil
		}
	}

	result.Reason = ExitMaxSteps
	s.logger.Warn("time march hit the step limit", "steps", cfg.MaxSteps, "t", t, "t-final", cfg.TFinal)
	return result, fmt.Errorf("%w: %d steps, t=%g of %g", ErrMaxSteps, cfg.MaxSteps, t, cfg.TFinal)
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.TFinal <= cfg.TInitial {
		return fmt.Errorf("t-final must exceed t-initial, got [%g, %g]", cfg.TInitial, cfg.TFinal)
	}
	if s.sizer == nil && cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive, got %d", cfg.MaxSteps)
	}
	if cfg.Steady && s.norm == nil {
		return fmt.Errorf("steady run needs a residual norm")
	}
	return nil
}

// step takes one step, backing off per the retry policy. state is
// restored before every retry.
func (s *Simulator) step(ctx context.Context, state []float64, t, dt float64, result *Result) (float64, error) {
	var backup vec.Vector
	if s.retry.Enabled() {
		backup = vec.Vector(state).Clone()
	}
	for attempt := 0; ; attempt++ {
		tNew, err := s.stepper.Step(ctx, state, t, dt)
		if err == nil {
			return tNew, nil
		}
		if !Retryable(err) {
			return t, err
		}
		smaller, ok := s.retry.next(attempt, dt)
		if !ok {
			return t, err
		}
		s.logger.Warn("retrying time step", "t", t, "dt", dt, "new-dt", smaller, "err", err)
		observability.StepRetriesTotal.Inc()
		result.Retries++
		copy(state, backup)
		dt = smaller
	}
}

func (s *Simulator) exit(cfg Config, info StepInfo, dt float64) ExitReason {
	if cfg.Steady && (info.ResNorm <= cfg.SteadyAbsTol || info.ResNorm <= cfg.SteadyRelTol*info.ResNorm0) {
		return ExitSteady
	}
	for _, h := range s.hooks {
		if h.Exit != nil && h.Exit(info.Iter, info.T, cfg.TFinal, dt, info.State) {
			return ExitHook
		}
	}
	if info.T >= cfg.TFinal-1e-14*dt {
		return ExitFinalTime
	}
	return ExitNone
}
