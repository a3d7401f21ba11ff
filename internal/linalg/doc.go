// Package linalg supplies the linear operators and linear solvers the
// nonlinear engine and the adjoint solve work against.
//
// The solver kernel treats operators as opaque: it only multiplies by
// them and hands them to a [Solver]. [Dense] wraps a gonum matrix for the
// small problems the bundled physics modules produce; larger builds plug
// in their own [Operator] and [Solver] implementations.
package linalg
