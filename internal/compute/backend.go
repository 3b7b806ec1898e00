package compute

import (
	"runtime"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// Kernel runs a dynamics engine against a host context. It is the only
// place that touches host arrays during a step, and only for the duration of
// Execute.
type Kernel struct {
	name    string
	engine  dynamo.Engine
	noise   dynamo.Noise
	workers int

	numParticles int
	initialized  bool
}

// parallelizable engines accept a worker count for their particle loops.
type parallelizable interface {
	SetWorkers(n int)
}

// NewReferenceKernel runs the engine on the calling goroutine.
func NewReferenceKernel(engine dynamo.Engine, noise dynamo.Noise) *Kernel {
	return &Kernel{name: "reference", engine: engine, noise: noise, workers: 1}
}

// NewCPUKernel splits particle loops across workers goroutines. Noise is
// still drawn serially, so results match the reference kernel bit for bit.
func NewCPUKernel(engine dynamo.Engine, noise dynamo.Noise, workers int) *Kernel {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Kernel{name: "cpu", engine: engine, noise: noise, workers: workers}
}

// AutoSelect picks the CPU kernel when more than one CPU is available.
func AutoSelect(engine dynamo.Engine, noise dynamo.Noise) *Kernel {
	if runtime.NumCPU() > 1 {
		return NewCPUKernel(engine, noise, runtime.NumCPU())
	}
	return NewReferenceKernel(engine, noise)
}

// Factory builds a kernel for an engine and its noise stream. Samplers call
// it when they bind to a host.
type Factory func(engine dynamo.Engine, noise dynamo.Noise) dynamo.Kernel

// ReferenceFactory builds serial kernels.
func ReferenceFactory(engine dynamo.Engine, noise dynamo.Noise) dynamo.Kernel {
	return NewReferenceKernel(engine, noise)
}

// CPUFactory builds parallel kernels with the given worker count.
func CPUFactory(workers int) Factory {
	return func(engine dynamo.Engine, noise dynamo.Noise) dynamo.Kernel {
		return NewCPUKernel(engine, noise, workers)
	}
}

// AutoFactory builds kernels with AutoSelect.
func AutoFactory(engine dynamo.Engine, noise dynamo.Noise) dynamo.Kernel {
	return AutoSelect(engine, noise)
}

func (k *Kernel) Name() string          { return k.name }
func (k *Kernel) Workers() int          { return k.workers }
func (k *Kernel) Engine() dynamo.Engine { return k.engine }
func (k *Kernel) Noise() dynamo.Noise   { return k.noise }

func (k *Kernel) Initialize(numParticles int, masses []float64) error {
	if err := dynamo.CheckLen("masses", len(masses), numParticles); err != nil {
		return err
	}
	if p, ok := k.engine.(parallelizable); ok {
		p.SetWorkers(k.workers)
	}
	k.numParticles = numParticles
	k.initialized = true
	return nil
}

func (k *Kernel) Execute(host dynamo.Context) error {
	if !k.initialized {
		return dynamo.ErrNotBound
	}
	if err := dynamo.CheckLen("host particles", host.NumParticles(), k.numParticles); err != nil {
		return err
	}

	p := dynamo.Particles{
		Positions:  host.Positions(),
		Velocities: host.Velocities(),
		Forces:     host.Forces(),
		Masses:     host.Masses(),
	}
	if err := k.engine.Update(p, k.noise); err != nil {
		return err
	}

	host.ApplyVirtualSites()
	host.AdvanceTime(k.engine.StepSize())
	return nil
}

// ComputeKineticEnergy sums 0.5 m |v|^2 over mobile particles using the
// implied velocities of the last step.
func (k *Kernel) ComputeKineticEnergy(host dynamo.Context) float64 {
	masses := host.Masses()
	velocities := host.Velocities()
	energy := 0.0
	for i, m := range masses {
		if m == 0 {
			continue
		}
		v := velocities[i]
		energy += 0.5 * m * v.Dot(v)
	}
	return energy
}

func (k *Kernel) Cleanup() {
	k.initialized = false
	k.numParticles = 0
}
