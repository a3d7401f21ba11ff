package metrics

import (
	"math"

	"github.com/san-kum/multiphys/internal/sim"
)

// ResidualDrop is log10(‖R_0‖/‖R‖) at the last observed step: the
// number of orders of magnitude the residual fell.
type ResidualDrop struct {
	name string
	r0   float64
	r    float64
	seen bool
}

func NewResidualDrop() *ResidualDrop {
	return &ResidualDrop{name: "residual_drop"}
}

func (d *ResidualDrop) Name() string { return d.name }

func (d *ResidualDrop) Observe(info sim.StepInfo) {
	d.r0, d.r = info.ResNorm0, info.ResNorm
	d.seen = true
}

func (d *ResidualDrop) Value() float64 {
	if !d.seen || d.r0 <= 0 {
		return 0
	}
	if d.r <= 0 {
		return math.Inf(1)
	}
	return math.Log10(d.r0 / d.r)
}

func (d *ResidualDrop) Reset() {
	d.r0, d.r = 0, 0
	d.seen = false
}

// MeanStep is the average accepted step size.
type MeanStep struct {
	name    string
	sum     float64
	samples int
}

func NewMeanStep() *MeanStep {
	return &MeanStep{name: "mean_dt"}
}

func (m *MeanStep) Name() string { return m.name }

func (m *MeanStep) Observe(info sim.StepInfo) {
	m.sum += info.DtPrev
	m.samples++
}

func (m *MeanStep) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanStep) Reset() {
	m.sum = 0
	m.samples = 0
}

// Monotone counts steps after the first Skip whose residual norm rose
// above the previous one. Pseudo-transient runs should report zero.
type Monotone struct {
	name  string
	Skip  int
	prev  float64
	seen  int
	count int
}

func NewMonotone(skip int) *Monotone {
	return &Monotone{name: "residual_increases", Skip: skip}
}

func (m *Monotone) Name() string { return m.name }

func (m *Monotone) Observe(info sim.StepInfo) {
	if m.seen >= m.Skip && m.seen > 0 && info.ResNorm > m.prev {
		m.count++
	}
	m.prev = info.ResNorm
	m.seen++
}

func (m *Monotone) Value() float64 { return float64(m.count) }

func (m *Monotone) Reset() {
	m.prev, m.seen, m.count = 0, 0, 0
}

// Default returns the metrics recorded on every run.
func Default(threshold float64) []sim.Metric {
	return []sim.Metric{
		NewEnergy(),
		NewEnergyDrift(),
		NewStability(threshold),
		NewResidualDrop(),
		NewMeanStep(),
	}
}
