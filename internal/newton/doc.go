// Package newton implements the nonlinear solve engine: Newton's method
// with a pluggable linear solver, an optional line search, and an
// optional pseudo-transient continuation controller.
//
// Each iteration evaluates R(u), tests ‖R‖ against the absolute and
// relative tolerances, linearizes, solves (σ·M + J)·Δu = −R and updates u.
// σ is zero for plain Newton; a [Controller] such as [PTC] supplies 1/Δτ.
//
// # States
//
//	Idle → Linearizing → LinearSolve → Converged | Diverged | MaxIterExceeded
//
// A solve that returns any other error ends in Failed.
//
// Diverged and MaxIterExceeded are returned as a [*ConvergenceError]
// unless the configuration disables Abort, in which case the failure is
// logged and reported only through [Result.Status].
//
// # Example
//
//	lin, _ := linalg.NewSolver(linalg.Options{Type: "lu"})
//	s := newton.New(newton.DefaultConfig(), lin)
//	result, err := s.Solve(ctx, res, inputs.New(), u)
package newton
