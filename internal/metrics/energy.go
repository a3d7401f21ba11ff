package metrics

import (
	"math"

	"github.com/san-kum/multiphys/internal/sim"
	"github.com/san-kum/multiphys/internal/vec"
)

// halfSquare is the discrete energy ½‖u‖² of a state.
func halfSquare(u []float64) float64 {
	n := vec.Vector(u).Norm()
	return n * n / 2
}

// Energy is the running mean of ½‖u‖² over the observed steps.
type Energy struct {
	mean float64
	n    int
}

func NewEnergy() *Energy { return &Energy{} }

func (*Energy) Name() string { return "energy" }

func (e *Energy) Observe(info sim.StepInfo) {
	e.n++
	e.mean += (halfSquare(info.State) - e.mean) / float64(e.n)
}

func (e *Energy) Value() float64 { return e.mean }

func (e *Energy) Reset() { *e = Energy{} }

// EnergyDrift is the largest |E - E0|/|E0| seen, where E0 is the energy
// of the first observed step. A zero E0 yields zero drift.
type EnergyDrift struct {
	ref  float64
	peak float64
	have bool
}

func NewEnergyDrift() *EnergyDrift { return &EnergyDrift{} }

func (*EnergyDrift) Name() string { return "energy_drift" }

func (d *EnergyDrift) Observe(info sim.StepInfo) {
	en := halfSquare(info.State)
	if !d.have {
		d.ref, d.have = en, true
	}
	if d.ref == 0 {
		return
	}
	if r := math.Abs(en/d.ref - 1); r > d.peak {
		d.peak = r
	}
}

func (d *EnergyDrift) Value() float64 { return d.peak }

func (d *EnergyDrift) Reset() { *d = EnergyDrift{} }
