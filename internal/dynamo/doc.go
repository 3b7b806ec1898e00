// Package dynamo provides the core primitives shared by the samplers.
//
// The package defines the contracts between the pieces of a biased
// Brownian-dynamics Markov chain:
//
//   - [Vec3]: a 3-D vector; a configuration is a []Vec3
//   - [ReactionCoordinate]: macroscopic observable, its adjoint gradient and bias energy
//   - [Context]: the host that owns positions, forces and energies
//   - [Engine]: one overdamped update scheme
//   - [Kernel]: the execution unit running an engine against a host
//   - [Snapshot]: a deep copy of host state used for accept/reject
//
// # Example
//
//	s := sampler.NewIndirectReconstruction(300, 0.002, 1.0, rc, sampler.WithSeed(7))
//	_ = s.Bind(host)
//	_ = s.SetupSampler()
//	_ = s.Step(10)
//	_ = s.Accepted(false)
//
// # Thread Safety
//
// Samplers and hosts are NOT thread-safe. Exactly one sampler drives one host;
// run independent chains on independent hosts.
package dynamo
