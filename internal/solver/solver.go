package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/integrators"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/newton"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/sens"
	"github.com/san-kum/multiphys/internal/sim"
	"github.com/san-kum/multiphys/internal/vec"
)

var (
	ErrUnknownOutput   = errors.New("solver: unknown output")
	ErrDuplicateOutput = errors.New("solver: duplicate output")
	ErrUnsteadyAdjoint = errors.New("solver: adjoint of an unsteady problem")
)

// Newton is the time-dis type that solves steady problems directly.
const Newton = "NEWTON"

type Option func(*Solver)

func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) { s.logger = l }
}

// WithComm sets the reducer for residual norms.
func WithComm(c vec.Comm) Option {
	return func(s *Solver) { s.comm = c }
}

// WithHooks adds instrumentation to every SolveForState.
func WithHooks(h sim.Hooks) Option {
	return func(s *Solver) { s.hooks = append(s.hooks, h) }
}

func WithMetric(m sim.Metric) Option {
	return func(s *Solver) { s.metrics = append(s.metrics, m) }
}

func WithObserver(o sim.Observer) Option {
	return func(s *Solver) { s.observers = append(s.observers, o) }
}

// WithMonitor reports every Newton iteration, stage solves included.
func WithMonitor(m newton.Monitor) Option {
	return func(s *Solver) { s.monitor = m }
}

type Solver struct {
	cfg     *config.Config
	res     *physics.Residual
	outputs map[string]*physics.Output
	newton  *newton.Solver
	ptc     *newton.Solver
	adj     linalg.TransposeSolver

	comm      vec.Comm
	logger    *slog.Logger
	monitor   newton.Monitor
	hooks     []sim.Hooks
	metrics   []sim.Metric
	observers []sim.Observer
}

// New validates cfg, builds the solvers it names and applies the
// problem options to res.
func New(cfg *config.Config, res *physics.Residual, opts ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lin, err := linalg.NewSolver(cfg.LinearOptions())
	if err != nil {
		return nil, &config.ConfigurationError{Key: "lin-solver", Reason: err.Error()}
	}
	adj, err := linalg.NewSolver(cfg.AdjointOptions())
	if err != nil {
		return nil, &config.ConfigurationError{Key: "adj-solver", Reason: err.Error()}
	}

	s := &Solver{
		cfg:     cfg,
		res:     res,
		outputs: make(map[string]*physics.Output),
		adj:     adj,
		comm:    vec.Self,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	nlOpts := []newton.Option{
		newton.WithLogger(s.logger),
		newton.WithComm(s.comm),
		newton.WithName(res.Name()),
	}
	if ls := newton.LineSearchFromConfig(cfg.NonlinSolver.LineSearch); ls != nil {
		nlOpts = append(nlOpts, newton.WithLineSearch(ls))
	}
	if s.monitor != nil {
		nlOpts = append(nlOpts, newton.WithMonitor(s.monitor))
	}
	nlCfg := newton.FromConfig(cfg.NonlinSolver)
	s.newton = newton.New(nlCfg, lin, nlOpts...)

	td := cfg.TimeDis
	if td.Continuation {
		// Continuation needs room for the pseudo-time phase.
		ptcCfg := nlCfg
		if td.MaxIter > ptcCfg.MaxIter {
			ptcCfg.MaxIter = td.MaxIter
		}
		ptcOpts := append(nlOpts, newton.WithController(newton.NewPTC(td.Dt, td.ResExp)))
		s.ptc = newton.New(ptcCfg, lin, ptcOpts...)
	}

	if err := res.SetOptions(cfg.ProblemOptions); err != nil {
		return nil, fmt.Errorf("solver: %s options: %w", res.Name(), err)
	}
	return s, nil
}

func (s *Solver) Config() *config.Config { return s.cfg }

func (s *Solver) Residual() *physics.Residual { return s.res }

// Report summarizes a SolveForState call. Exactly one of Newton and
// March is set.
type Report struct {
	Scheme  string
	Steps   int
	Time    float64
	ResNorm float64
	Newton  *newton.Result
	March   *sim.Result
}

// SolveForState drives state to the solution described by the time-dis
// group: a steady root for NEWTON, otherwise a march over
// [t-initial, t-final] with the named scheme.
func (s *Solver) SolveForState(ctx context.Context, in *inputs.Bag, state []float64) (*Report, error) {
	if len(state) != s.res.Size() {
		return nil, fmt.Errorf("%w: state has %d entries, %s has %d",
			vec.ErrDimensionMismatch, len(state), s.res.Name(), s.res.Size())
	}
	if in == nil {
		in = inputs.New()
	}

	td := s.cfg.TimeDis
	report := &Report{Scheme: strings.ToUpper(td.Type)}
	var err error
	if report.Scheme == Newton {
		err = s.solveSteady(ctx, in, state, report)
	} else {
		err = s.march(ctx, in, state, report)
	}
	if err != nil {
		return report, err
	}
	if report.ResNorm, err = s.CalcResidualNorm(in, state); err != nil {
		return report, err
	}
	s.logger.Info("state solved", "residual", s.res.Name(), "scheme", report.Scheme,
		"steps", report.Steps, "t", report.Time, "res", report.ResNorm)
	return report, nil
}

// solveSteady runs one Newton solve between the Initial and Terminal
// hooks. Terminal hooks see the iteration count.
func (s *Solver) solveSteady(ctx context.Context, in *inputs.Bag, state []float64, report *Report) (err error) {
	t := s.cfg.TimeDis.TInitial
	defer func() {
		for _, h := range s.hooks {
			if h.Terminal == nil {
				continue
			}
			if herr := h.Terminal(report.Steps, t, state); herr != nil {
				err = errors.Join(err, fmt.Errorf("solver: terminal hook: %w", herr))
			}
		}
	}()

	for _, h := range s.hooks {
		if h.Initial == nil {
			continue
		}
		if err := h.Initial(state); err != nil {
			return fmt.Errorf("solver: initial hook: %w", err)
		}
	}

	nl := s.newton
	if s.ptc != nil {
		nl = s.ptc
	}
	result, err := nl.Solve(ctx, s.res, in, state)
	report.Newton = result
	if result != nil {
		report.Steps = result.Iterations
	}
	report.Time = t
	return err
}

func (s *Solver) march(ctx context.Context, in *inputs.Bag, state []float64, report *Report) error {
	td := s.cfg.TimeDis
	ode := integrators.NewODE(s.res, s.newton)
	ode.SetInputs(in)
	stepper, err := integrators.New(td.Type, ode, td.AbsTol, td.RelTol)
	if err != nil {
		return &config.ConfigurationError{Key: "time-dis.type", Reason: err.Error()}
	}

	// Step-size rules read the module's inputs, so set them at the
	// initial state.
	if err := s.res.SetInputs(in.Clone().SetField(inputs.State, state)); err != nil {
		return err
	}

	opts := []sim.Option{
		sim.WithLogger(s.logger),
		sim.WithRetry(sim.RetryFrom(td.Retry)),
		sim.WithStepSizer(s.stepSizer(stepper)),
	}
	if td.Steady || report.Scheme == "PTC" {
		opts = append(opts, sim.WithResidualNorm(func(u []float64) (float64, error) {
			return s.CalcResidualNorm(in, u)
		}))
	}
	for _, h := range s.hooks {
		opts = append(opts, sim.WithHooks(h))
	}
	m := sim.New(stepper, opts...)
	for _, metric := range s.metrics {
		m.AddMetric(metric)
	}
	for _, o := range s.observers {
		m.AddObserver(o)
	}

	result, err := m.Run(ctx, state, sim.ConfigFrom(td))
	report.March = result
	if result != nil {
		report.Steps, report.Time = result.Steps, result.Time
	}
	return err
}

func (s *Solver) stepSizer(stepper integrators.Stepper) sim.StepSizer {
	td := s.cfg.TimeDis
	switch {
	case strings.EqualFold(td.Type, "PTC"):
		return sim.PTCStep{Dt0: td.Dt, Exponent: td.ResExp}
	case td.ConstCFL:
		return sim.CFLStep{Residual: s.res, CFL: td.CFL, ExactTFinal: td.ExactTFinal}
	}
	if a, ok := stepper.(integrators.Adaptive); ok {
		return sim.AdaptiveStep{Stepper: a, Initial: td.Dt, ExactTFinal: td.ExactTFinal}
	}
	return sim.FixedStep{Dt: td.Dt, ExactTFinal: td.ExactTFinal}
}

// SolveForAdjoint solves (∂R/∂u)ᵀ·λ = stateBar at state. Only steady
// problems have a single-solve adjoint.
func (s *Solver) SolveForAdjoint(in *inputs.Bag, state, stateBar, adjoint []float64) error {
	if !s.cfg.TimeDis.Steady {
		return ErrUnsteadyAdjoint
	}
	return sens.SolveAdjoint(s.res, s.stateBag(in, state), s.adj, stateBar, adjoint)
}

// CalcResidual writes R at the inputs, which must hold the state.
func (s *Solver) CalcResidual(in *inputs.Bag, res []float64) error {
	return s.res.Evaluate(in, res)
}

// CalcResidualNorm is the global 2-norm of R at state.
func (s *Solver) CalcResidualNorm(in *inputs.Bag, state []float64) (float64, error) {
	r := vec.Zeros(s.res.Size())
	if err := s.res.Evaluate(s.stateBag(in, state), r); err != nil {
		return 0, err
	}
	return vec.GlobalNorm(s.comm, r), nil
}

// TotalDerivative returns dJ/dwrt for the named output at a converged
// state. The result is sized like the input wrt.
func (s *Solver) TotalDerivative(output, wrt string, in *inputs.Bag, state []float64) ([]float64, error) {
	out, err := s.output(output)
	if err != nil {
		return nil, err
	}
	bag := s.stateBag(in, state)
	v, err := bag.Get(wrt)
	if err != nil {
		return nil, err
	}

	stateBar := vec.Zeros(s.res.Size())
	if err := sens.StateBar(out, bag, stateBar); err != nil {
		return nil, err
	}
	adjoint := vec.Zeros(s.res.Size())
	if err := s.SolveForAdjoint(in, state, stateBar, adjoint); err != nil {
		return nil, err
	}
	grad := vec.Zeros(v.Size())
	if err := sens.TotalDerivative(out, s.res, adjoint, wrt, grad); err != nil {
		return nil, err
	}
	return grad, nil
}

func (s *Solver) stateBag(in *inputs.Bag, state []float64) *inputs.Bag {
	if in == nil {
		in = inputs.New()
	}
	return in.Clone().SetField(inputs.State, state)
}
