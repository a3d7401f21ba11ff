package newton

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/linalg"
	"github.com/san-kum/multiphys/internal/logging"
	"github.com/san-kum/multiphys/internal/observability"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/vec"
)

type Config struct {
	AbsTol     float64
	RelTol     float64
	MaxIter    int
	DivFactor  float64
	Abort      bool
	PrintLevel int
}

func DefaultConfig() Config {
	return Config{
		AbsTol:    config.DefaultNewtonTol,
		RelTol:    config.DefaultNewtonTol,
		MaxIter:   config.DefaultNewtonIter,
		DivFactor: config.DefaultDivFactor,
		Abort:     true,
	}
}

// FromConfig maps the nonlin-solver group onto a Config.
func FromConfig(c config.NonlinSolver) Config {
	return Config{
		AbsTol:     c.AbsTol,
		RelTol:     c.RelTol,
		MaxIter:    c.MaxIter,
		DivFactor:  c.DivFactor,
		Abort:      c.Abort,
		PrintLevel: c.PrintLevel,
	}
}

// LineSearchFromConfig returns nil for "none".
func LineSearchFromConfig(c config.LineSearch) LineSearch {
	if !strings.EqualFold(c.Type, "backtracking") {
		return nil
	}
	return &Backtracking{Mu: c.Mu, RhoLo: c.RhoLo, RhoHi: c.RhoHi, MaxIter: c.MaxIter}
}

// Iteration is reported to a Monitor once per residual evaluation.
type Iteration struct {
	Iter    int
	Norm    float64
	RelNorm float64
	Shift   float64
}

type Monitor func(Iteration)

type Result struct {
	Status      Status
	Iterations  int
	InitialNorm float64
	FinalNorm   float64
	History     []float64

	// LineSearchFailures counts iterations whose line search ran out of
	// trials without sufficient decrease.
	LineSearchFailures int
}

func (r *Result) Converged() bool {
	return r.Status == Converged
}

// Controller supplies the shift σ in (σ·M + J)·Δu = −R.
type Controller interface {
	Reset()
	Shift(iter int, norm, norm0 float64) float64
}

type Option func(*Solver)

func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) { s.logger = l }
}

func WithMonitor(m Monitor) Option {
	return func(s *Solver) { s.monitor = m }
}

// WithComm sets the reducer for global residual norms.
func WithComm(c vec.Comm) Option {
	return func(s *Solver) { s.comm = c }
}

func WithLineSearch(ls LineSearch) Option {
	return func(s *Solver) { s.search = ls }
}

func WithController(c Controller) Option {
	return func(s *Solver) { s.ctrl = c }
}

// WithName labels log records and metrics.
func WithName(name string) Option {
	return func(s *Solver) { s.name = name }
}

// Solver is NOT safe for concurrent use.
type Solver struct {
	cfg     Config
	lin     linalg.Solver
	comm    vec.Comm
	logger  *slog.Logger
	monitor Monitor
	search  LineSearch
	ctrl    Controller
	name    string
	status  Status
}

func New(cfg Config, lin linalg.Solver, opts ...Option) *Solver {
	s := &Solver{
		cfg:    cfg,
		lin:    lin,
		comm:   vec.Self,
		logger: slog.Default(),
		name:   "newton",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Solver) Config() Config { return s.cfg }

// Status is the state of the current or last solve.
func (s *Solver) Status() Status { return s.status }

// SetMonitor replaces the iteration monitor.
func (s *Solver) SetMonitor(m Monitor) { s.monitor = m }

// Solve drives R(state, in) to zero, updating state in place. The key
// inputs.State in the bag passed to the residual refers to state.
func (s *Solver) Solve(ctx context.Context, res *physics.Residual, in *inputs.Bag, state []float64) (*Result, error) {
	n := res.Size()
	if len(state) != n {
		return nil, fmt.Errorf("newton: state has %d entries, residual %s has %d", len(state), res.Name(), n)
	}
	if in == nil {
		in = inputs.New()
	}
	bag := in.Clone().SetField(inputs.State, state)

	r := vec.Zeros(n)
	du := vec.Zeros(n)
	rhs := vec.Zeros(n)
	result := &Result{}
	purpose := "newton"
	if s.ctrl != nil {
		s.ctrl.Reset()
		purpose = "ptc"
	}

	s.status = Idle
	defer func() {
		if !s.status.Terminal() {
			s.status = Failed
			result.Status = Failed
		}
		observability.NewtonSolvesTotal.WithLabelValues(s.status.String()).Inc()
		observability.NewtonIterationsTotal.Add(float64(result.Iterations))
		observability.ResidualNorm.WithLabelValues(s.name).Set(result.FinalNorm)
	}()

	var norm0 float64
	for it := 0; ; it++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := res.Evaluate(bag, r); err != nil {
			return result, fmt.Errorf("newton: evaluate %s: %w", res.Name(), err)
		}
		if !r.IsValid() {
			return result, &NumericalError{Where: "residual", Iteration: it}
		}
		norm := vec.GlobalNorm(s.comm, r)
		if it == 0 {
			norm0 = norm
			result.InitialNorm = norm
		}
		result.FinalNorm = norm
		result.History = append(result.History, norm)

		var shift float64
		if s.ctrl != nil {
			shift = s.ctrl.Shift(it, norm, norm0)
		}
		s.report(Iteration{Iter: it, Norm: norm, RelNorm: relative(norm, norm0), Shift: shift})

		switch {
		case norm <= s.cfg.AbsTol || norm <= s.cfg.RelTol*norm0:
			s.status = Converged
		case it > 0 && norm > s.cfg.DivFactor*norm0:
			s.status = Diverged
		case it >= s.cfg.MaxIter:
			s.status = MaxIterExceeded
		}
		if s.status.Terminal() {
			return s.finish(result)
		}

		s.status = Linearizing
		op, err := s.linearize(res, bag, shift, it)
		if err != nil {
			return result, err
		}

		s.status = LinearSolve
		for i := range r {
			rhs[i] = -r[i]
		}
		du.Zero()
		if err := s.solveLinear(op, rhs, du, purpose); err != nil {
			return result, err
		}
		if !du.IsValid() {
			return result, &NumericalError{Where: "update", Iteration: it}
		}

		alpha := 1.0
		if s.search != nil {
			alpha, err = s.lineSearch(res, bag, state, du, norm)
			if errors.Is(err, ErrLineSearchExhausted) {
				result.LineSearchFailures++
				s.logger.Warn("line search exhausted, taking last trial step",
					"solver", s.name, "iter", it, "alpha", alpha)
				err = nil
			}
			if err != nil {
				return result, err
			}
			bag.SetField(inputs.State, state)
		}
		vec.Vector(state).Axpy(alpha, du)
		result.Iterations++
	}
}

func (s *Solver) linearize(res *physics.Residual, bag *inputs.Bag, shift float64, it int) (linalg.Operator, error) {
	jac, err := res.Jacobian(bag, inputs.State)
	if err != nil {
		return nil, fmt.Errorf("newton: linearize %s: %w", res.Name(), err)
	}
	op, err := jac.Operator()
	if err != nil {
		return nil, err
	}
	if d, ok := op.(*linalg.Dense); ok && !d.IsValid() {
		return nil, &NumericalError{Where: "jacobian", Iteration: it}
	}
	if shift == 0 {
		return op, nil
	}
	return linalg.NewSum(
		linalg.Term{Scale: shift, Op: res.MassMatrix()},
		linalg.Term{Scale: 1, Op: op},
	)
}

func (s *Solver) solveLinear(op linalg.Operator, rhs, du []float64, purpose string) error {
	start := time.Now()
	defer func() {
		observability.LinearSolveDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
	}()

	if err := s.lin.SetOperator(op); err != nil {
		return fmt.Errorf("newton: set operator: %w", err)
	}
	err := s.lin.Solve(rhs, du)
	if errors.Is(err, linalg.ErrNotConverged) {
		// Inexact Newton: keep the partial update.
		s.logger.Warn("linear solve did not converge", "solver", s.name, "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("newton: linear solve: %w", err)
	}
	return nil
}

func (s *Solver) lineSearch(res *physics.Residual, bag *inputs.Bag, state, du vec.Vector, norm float64) (float64, error) {
	trial := state.Clone()
	r := vec.Zeros(len(state))
	bag.SetField(inputs.State, trial)
	phi := func(alpha float64) (float64, error) {
		copy(trial, state)
		trial.Axpy(alpha, du)
		if err := res.Evaluate(bag, r); err != nil {
			return 0, err
		}
		if !r.IsValid() {
			return 0, vec.ErrNonFinite
		}
		return vec.GlobalNorm(s.comm, r), nil
	}
	alpha, err := s.search.Search(phi, norm)
	if errors.Is(err, vec.ErrNonFinite) {
		return 0, &NumericalError{Where: "line search", Iteration: -1}
	}
	return alpha, err
}

func (s *Solver) report(it Iteration) {
	logging.Log(logging.Newton, "iteration", "solver", s.name, "iter", it.Iter, "norm", it.Norm, "rel", it.RelNorm, "shift", it.Shift)
	if s.monitor != nil {
		s.monitor(it)
	}
}

func (s *Solver) finish(result *Result) (*Result, error) {
	result.Status = s.status
	if s.cfg.PrintLevel > 0 {
		s.logger.Info("nonlinear solve finished", "solver", s.name, "status", s.status,
			"iterations", result.Iterations, "norm", result.FinalNorm)
	}
	if s.status == Converged {
		return result, nil
	}
	cerr := &ConvergenceError{
		Status:      s.status,
		Iterations:  result.Iterations,
		Norm:        result.FinalNorm,
		InitialNorm: result.InitialNorm,
	}
	if s.cfg.Abort {
		return result, cerr
	}
	s.logger.Warn("continuing after nonlinear solve failure", "solver", s.name, "err", cerr)
	return result, nil
}

func relative(norm, norm0 float64) float64 {
	if norm0 == 0 {
		return 0
	}
	return norm / norm0
}
