// Package models holds the physics modules the kernel ships with: small
// algebraic and ODE residuals, a 1D nonlinear heat conduction residual
// with a Joule heating load, and functionals over its solution.
//
// Every module recognizes the inputs.State key. Mesh-based modules also
// take the node coordinates under MeshCoords, which makes mesh
// sensitivities available through the same products as any other input.
package models

// Input keys.
const (
	MeshCoords     = "mesh_coords"
	HeatSource     = "heat_source"
	Conductivity   = "conductivity"
	CurrentDensity = "current_density"
	Lambda         = "lambda"
	LinearCoeff    = "a"
	LinearRHS      = "b"
)
