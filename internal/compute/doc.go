// Package compute provides the execution units that apply a dynamics engine
// to a host context.
//
// Two kernels are available:
//
//   - Reference: serial, runs on the calling goroutine
//   - CPU: particle loops split across goroutines
//
// Kernels are chosen by the caller and injected into a sampler:
//
//	s := sampler.NewRandomWalk(300, 0.002, 0, sampler.WithKernel(compute.CPUFactory(4)))
//
// Noise is always drawn serially in particle order, so the CPU kernel
// produces the same trajectory as the reference kernel for the same seed.
package compute
