// Package physics holds heterogeneous physics modules behind uniform
// handles.
//
// A module implements one required interface ([ResidualModule],
// [OutputModule] or [LoadModule]) plus any optional capabilities
// ([InputSetter], [Jacobianer], [JVP], [VJP], ...). [NewResidual],
// [NewOutput] and [NewLoad] resolve those capabilities once; after that
// the solver only sees [*Residual], [*Output] and [*Load]. Missing
// capabilities surface as a [*CapabilityError] when called.
//
// # Example
//
//	res := physics.NewResidual("heat", models.NewHeat())
//	if err := res.SetOptions(opts); err != nil { ... }
//	bag := inputs.New().SetField(inputs.State, u)
//	err := res.Evaluate(bag, r)
//
// # Thread Safety
//
// Handles are NOT safe for concurrent use. Each solver owns its handles.
package physics
