package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/multiphys/internal/sim"
	"github.com/san-kum/multiphys/internal/vec"
)

// Stability is the fraction of observed steps whose state is finite and
// bounded by Limit in max norm. FirstBreach holds the time of the first
// step that was not, or NaN while every step has been.
type Stability struct {
	Limit       float64
	FirstBreach float64

	bounded, total int
}

func NewStability(limit float64) *Stability {
	return &Stability{Limit: limit, FirstBreach: math.NaN()}
}

func (*Stability) Name() string { return "stability" }

func (s *Stability) Observe(info sim.StepInfo) {
	s.total++
	u := vec.Vector(info.State)
	if u.IsValid() && floats.Norm(u, math.Inf(1)) <= s.Limit {
		s.bounded++
		return
	}
	if math.IsNaN(s.FirstBreach) {
		s.FirstBreach = info.T
	}
}

func (s *Stability) Value() float64 {
	if s.total == 0 {
		return 1
	}
	return float64(s.bounded) / float64(s.total)
}

func (s *Stability) Reset() {
	s.bounded, s.total = 0, 0
	s.FirstBreach = math.NaN()
}
