// Package sampler holds the front-ends a Markov-chain driver talks to.
//
// Each front-end wraps one overdamped integrator and moves through three
// states:
//
//	Unbound --Bind--> Bound --SetupSampler--> Ready
//	   ^                                        |
//	   +--------------- Cleanup ----------------+
//
// In Ready, the driver alternates Step and Accepted. Accepted(false) puts
// the host back to the previous state bit for bit.
//
//	s := sampler.NewIndirectReconstruction(300, 0.002, 10, rc, sampler.WithSeed(42))
//	if err := s.Bind(host); err != nil { ... }
//	if err := s.SetupSampler(); err != nil { ... }
//	for i := 0; i < n; i++ {
//		if err := s.Step(10); err != nil { ... }
//		s.Accepted(metropolis(host.Energy()))
//	}
//
// A zero seed asks the SeedSource (the wall clock by default) for one, so
// only runs with an explicit seed repeat.
package sampler
