package solver

import (
	"fmt"
	"sort"

	"github.com/san-kum/multiphys/internal/config"
	"github.com/san-kum/multiphys/internal/inputs"
	"github.com/san-kum/multiphys/internal/physics"
)

// CreateOutput registers m under name and applies opts.
func (s *Solver) CreateOutput(name string, m physics.OutputModule, opts config.Options) error {
	if _, ok := s.outputs[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateOutput, name)
	}
	out := physics.NewOutput(name, m)
	if err := out.SetOptions(opts); err != nil {
		return fmt.Errorf("solver: output %s: %w", name, err)
	}
	s.outputs[name] = out
	return nil
}

func (s *Solver) output(name string) (*physics.Output, error) {
	out, ok := s.outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, name)
	}
	return out, nil
}

// Output returns the wrapper registered under name.
func (s *Solver) Output(name string) (*physics.Output, error) {
	return s.output(name)
}

// Outputs lists the registered output names in order.
func (s *Solver) Outputs() []string {
	names := make([]string, 0, len(s.outputs))
	for name := range s.outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Solver) SetOutputOptions(name string, opts config.Options) error {
	out, err := s.output(name)
	if err != nil {
		return err
	}
	return out.SetOptions(opts)
}

func (s *Solver) CalcOutput(name string, in *inputs.Bag) (float64, error) {
	out, err := s.output(name)
	if err != nil {
		return 0, err
	}
	return out.Calc(in)
}

// CalcOutputPartial accumulates partial += ∂J/∂wrt.
func (s *Solver) CalcOutputPartial(name, wrt string, in *inputs.Bag, partial []float64) error {
	out, err := s.output(name)
	if err != nil {
		return err
	}
	if err := out.SetInputs(in); err != nil {
		return err
	}
	return out.VectorJacobianProduct(1, wrt, partial)
}

// OutputJVP returns (∂J/∂wrt)·wrtDot at in.
func (s *Solver) OutputJVP(name, wrt string, in *inputs.Bag, wrtDot []float64) (float64, error) {
	out, err := s.output(name)
	if err != nil {
		return 0, err
	}
	if err := out.SetInputs(in); err != nil {
		return 0, err
	}
	return out.JacobianVectorProduct(wrtDot, wrt)
}

// OutputVJP accumulates wrtBar += outBar·∂J/∂wrt at in.
func (s *Solver) OutputVJP(name, wrt string, in *inputs.Bag, outBar float64, wrtBar []float64) error {
	out, err := s.output(name)
	if err != nil {
		return err
	}
	if err := out.SetInputs(in); err != nil {
		return err
	}
	return out.VectorJacobianProduct(outBar, wrt, wrtBar)
}
