// Package solver ties a residual, its outputs and the configured
// nonlinear, linear and time-marching machinery into one object.
//
// A Solver is built once per problem and reused across solves:
//
//	s, err := solver.New(cfg, res)
//	report, err := s.SolveForState(ctx, in, state)
//	grad, err := s.TotalDerivative("average", "heat_source", in, state)
//
// It is NOT safe for concurrent use.
package solver
