// Package observability provides Prometheus metrics for the solver kernel.
package observability

import "github.com/prometheus/client_golang/prometheus"

// SolveBuckets spans fast scalar solves to multi-second PDE solves.
var SolveBuckets = []float64{1e-5, 1e-4, 1e-3, 0.01, 0.1, 1, 10}

var (
	// NewtonSolvesTotal counts nonlinear solves by final status.
	NewtonSolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiphys_newton_solves_total",
			Help: "Nonlinear solves",
		},
		[]string{"status"},
	)

	// NewtonIterationsTotal counts Newton updates across all solves.
	NewtonIterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "multiphys_newton_iterations_total",
			Help: "Newton iterations",
		},
	)

	// LinearSolveDuration records linear solve time in seconds by purpose
	// (newton, ptc, adjoint).
	LinearSolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multiphys_linear_solve_duration_seconds",
			Help:    "Linear solve duration",
			Buckets: SolveBuckets,
		},
		[]string{"purpose"},
	)

	// TimeStepsTotal counts accepted time steps by scheme.
	TimeStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiphys_time_steps_total",
			Help: "Accepted time steps",
		},
		[]string{"scheme"},
	)

	// StepRetriesTotal counts time steps retried with a reduced step size.
	StepRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "multiphys_step_retries_total",
			Help: "Time step retries",
		},
	)

	// AdjointSolvesTotal counts adjoint solves by outcome.
	AdjointSolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiphys_adjoint_solves_total",
			Help: "Adjoint solves",
		},
		[]string{"status"},
	)

	// ResidualNorm is the last residual norm reported by a solve.
	ResidualNorm = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "multiphys_residual_norm",
			Help: "Last residual norm",
		},
		[]string{"solver"},
	)
)

func init() {
	prometheus.MustRegister(
		NewtonSolvesTotal,
		NewtonIterationsTotal,
		LinearSolveDuration,
		TimeStepsTotal,
		StepRetriesTotal,
		AdjointSolvesTotal,
		ResidualNorm,
	)
}

// WriteTextfile writes the default registry in the text exposition format,
// for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
