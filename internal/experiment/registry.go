package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/multiphys/internal/metrics"
	"github.com/san-kum/multiphys/internal/models"
	"github.com/san-kum/multiphys/internal/physics"
	"github.com/san-kum/multiphys/internal/sim"
	"github.com/san-kum/multiphys/internal/vec"
)

// Problem is a residual plus what the registry knows about it.
type Problem struct {
	Name     string
	Residual *physics.Residual

	// Mesh returns the default mesh coordinates, or nil for problems
	// without one.
	Mesh func() []float64

	// Initial returns the starting state for n unknowns.
	Initial func(n int) []float64
}

// MeshOrUniform is the problem mesh or a unit mesh around its unknowns.
func (p *Problem) MeshOrUniform() []float64 {
	if p.Mesh != nil {
		if x := p.Mesh(); x != nil {
			return x
		}
	}
	return models.UniformMesh(p.Residual.Size(), 1)
}

type Registry struct {
	problems map[string]func() *Problem
	outputs  map[string]func(p *Problem) physics.OutputModule
}

func NewRegistry() *Registry {
	r := &Registry{
		problems: make(map[string]func() *Problem),
		outputs:  make(map[string]func(p *Problem) physics.OutputModule),
	}

	r.problems["linear"] = func() *Problem {
		return &Problem{
			Residual: physics.NewResidual("linear", models.NewLinear(1)),
			Initial:  zeros,
		}
	}
	r.problems["decay"] = func() *Problem {
		return &Problem{
			Residual: physics.NewResidual("decay", models.NewDecay(1)),
			Initial:  ones,
		}
	}
	r.problems["heat"] = func() *Problem {
		h := models.NewHeat(10)
		return &Problem{
			Residual: physics.NewResidual("heat", h),
			Mesh:     h.Mesh,
			Initial:  zeros,
		}
	}
	r.problems["joule"] = func() *Problem {
		h := models.NewHeat(10)
		heat := physics.NewResidual("heat", h)
		// WithLoad only fails on a size mismatch, and both start at 10.
		m, _ := physics.WithLoad(heat, physics.NewLoad("joule", models.NewJouleLoad(10)))
		return &Problem{
			Residual: physics.NewResidual("joule", m),
			Mesh:     h.Mesh,
			Initial:  zeros,
		}
	}

	r.outputs["volume"] = func(p *Problem) physics.OutputModule { return models.NewVolume(p.MeshOrUniform()) }
	r.outputs["average"] = func(p *Problem) physics.OutputModule { return models.NewAverage(p.MeshOrUniform()) }
	r.outputs["ks-max"] = func(*Problem) physics.OutputModule { return models.NewKSMax() }

	return r
}

func (r *Registry) GetProblem(name string) (*Problem, error) {
	fn, ok := r.problems[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", name)
	}
	p := fn()
	p.Name = name
	return p, nil
}

func (r *Registry) GetOutput(name string, p *Problem) (physics.OutputModule, error) {
	fn, ok := r.outputs[name]
	if !ok {
		return nil, fmt.Errorf("unknown output: %s", name)
	}
	return fn(p), nil
}

func (r *Registry) ListProblems() []string {
	return sortedKeys(r.problems)
}

func (r *Registry) ListOutputs() []string {
	return sortedKeys(r.outputs)
}

func (r *Registry) DefaultMetrics() []sim.Metric {
	return metrics.Default(1e6)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func zeros(n int) []float64 { return vec.Zeros(n) }

func ones(n int) []float64 {
	u := vec.Zeros(n)
	u.Fill(1)
	return u
}
