package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/solver"
	"github.com/san-kum/multiphys/internal/vec"
)

// Experiment is a configured problem ready to solve: the solver, its
// outputs, the design inputs and the state.
type Experiment struct {
	cfg     *config.Config
	problem *Problem
	solver  *solver.Solver
	inputs  *inputs.Bag
	state   vec.Vector
}

// Build creates the problem named by cfg, the solver around it and
// every output listed under outputs.
func (r *Registry) Build(cfg *config.Config, opts ...solver.Option) (*Experiment, error) {
	p, err := r.GetProblem(cfg.Problem)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "problem", Reason: err.Error()}
	}
	s, err := solver.New(cfg, p.Residual, opts...)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.Outputs))
	for name := range cfg.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m, err := r.GetOutput(name, p)
		if err != nil {
			return nil, &config.ConfigurationError{Key: "outputs." + name, Reason: err.Error()}
		}
		if err := s.CreateOutput(name, m, cfg.Outputs[name]); err != nil {
			return nil, err
		}
	}

	in := inputs.New()
	for key, v := range cfg.Inputs {
		in.SetScalar(key, v)
	}
	return &Experiment{
		cfg:     cfg,
		problem: p,
		solver:  s,
		inputs:  in,
		state:   p.Initial(p.Residual.Size()),
	}, nil
}

func (e *Experiment) Config() *config.Config { return e.cfg }
func (e *Experiment) Problem() *Problem      { return e.problem }
func (e *Experiment) Solver() *solver.Solver { return e.solver }
func (e *Experiment) Inputs() *inputs.Bag    { return e.inputs }
func (e *Experiment) State() []float64       { return e.state }

func (e *Experiment) SetScalar(key string, v float64) { e.inputs.SetScalar(key, v) }

// Reset restores the initial state.
func (e *Experiment) Reset() {
	copy(e.state, e.problem.Initial(len(e.state)))
}

func (e *Experiment) Run(ctx context.Context) (*solver.Report, error) {
	return e.solver.SolveForState(ctx, e.inputs, e.state)
}

// Outputs evaluates every registered output at the current state.
func (e *Experiment) Outputs() (map[string]float64, error) {
	bag := e.inputs.Clone().SetField(inputs.State, e.state)
	values := make(map[string]float64)
	for _, name := range e.solver.Outputs() {
		v, err := e.solver.CalcOutput(name, bag)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}

// Gradient is dJ/dwrt for the named output at the current state.
func (e *Experiment) Gradient(output, wrt string) ([]float64, error) {
	return e.solver.TotalDerivative(output, wrt, e.inputs, e.state)
}
