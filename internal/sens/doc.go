// Package sens implements discrete-adjoint gradient assembly and the
// consistency checks every module's sensitivity products must pass.
//
// For a scalar output J(u(p), p) with R(u, p) = 0 the total derivative is
//
//	dJ/dp = ∂J/∂p − λᵀ·∂R/∂p,  (∂R/∂u)ᵀ·λ = ∂J/∂u
//
// SolveAdjoint computes λ and TotalDerivative assembles dJ/dp. Both
// expect the residual and output to have been evaluated at the converged
// state.
package sens
