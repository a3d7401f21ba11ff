// Package vec provides the state-vector primitives shared by every solver
// component.
//
// A [Vector] is a plain []float64 owned by the caller. Solve operations
// mutate it in place; nothing in this package retains a reference.
//
// Global reductions (norms and dot products over a partitioned state) go
// through a [Comm]. [Self] is the single-process implementation; a
// distributed build supplies its own all-reduce.
//
// # Example
//
//	u := vec.Zeros(n)
//	r := vec.Zeros(n)
//	norm := vec.Self.Norm(r)
package vec
