// Package physics provides reference force fields for the host context.
//
// Each term adds its forces into a shared buffer and returns its energy:
//
//   - [DoubleWell]: bistable along x, harmonic in y and z
//   - [HarmonicTrap]: isotropic spring to a fixed center
//   - [HarmonicBonds]: springs between particle pairs
//
// A [Composite] sums terms and honors force-group selection:
//
//	ff := physics.NewComposite(physics.NewDoubleWell(), physics.NewHarmonicTrap())
//	energy := ff.Compute(x, f, dynamo.AllForceGroups)
//
// Terms with tunable constants implement [dynamo.Configurable].
package physics
