package integrators

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// minChunk is the smallest particle range handed to one worker.
const minChunk = 64

// base carries what every overdamped scheme shares: parameters, scratch
// buffers and the step counter.
type base struct {
	temperature float64
	deltaT      float64
	workers     int
	timeStep    int
	logger      *slog.Logger

	xPrime []dynamo.Vec3
	xi     []dynamo.Vec3
}

func newBase(temperature, stepSize float64) base {
	return base{
		temperature: temperature,
		deltaT:      stepSize,
		workers:     1,
		logger:      slog.Default(),
	}
}

func (b *base) Temperature() float64     { return b.temperature }
func (b *base) SetTemperature(t float64) { b.temperature = t }
func (b *base) StepSize() float64        { return b.deltaT }
func (b *base) SetStepSize(dt float64)   { b.deltaT = dt }
func (b *base) TimeStep() int            { return b.timeStep }
func (b *base) SetWorkers(n int)         { b.workers = n }
func (b *base) SetLogger(l *slog.Logger) { b.logger = l }

// KineticEnergyRequiresForce is false: kinetic energy comes from implied velocities.
func (b *base) KineticEnergyRequiresForce() bool { return false }

// NoiseAmplitude is sqrt(2 kB T dt).
func (b *base) NoiseAmplitude() float64 {
	return math.Sqrt(2.0 * dynamo.Boltz * b.temperature * b.deltaT)
}

func (b *base) validate(p dynamo.Particles, needForces bool) error {
	if b.deltaT <= 0 {
		return fmt.Errorf("step size %g: %w", b.deltaT, dynamo.ErrParameterBounds)
	}
	if b.temperature < 0 {
		return fmt.Errorf("temperature %g: %w", b.temperature, dynamo.ErrParameterBounds)
	}
	n := p.Len()
	if err := dynamo.CheckLen("velocities", len(p.Velocities), n); err != nil {
		return err
	}
	if err := dynamo.CheckLen("masses", len(p.Masses), n); err != nil {
		return err
	}
	if needForces {
		if err := dynamo.CheckLen("forces", len(p.Forces), n); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) ensureScratch(n int) {
	if len(b.xPrime) != n {
		b.xPrime = make([]dynamo.Vec3, n)
		b.xi = make([]dynamo.Vec3, n)
	}
}

// drawNoise fills xi serially, particle by particle and axis by axis, so the
// stream consumed never depends on the worker count. Immobile particles draw nothing.
func (b *base) drawNoise(masses []float64, noise dynamo.Noise) {
	for i, m := range masses {
		if m == 0 {
			b.xi[i] = dynamo.Vec3{}
			continue
		}
		for j := 0; j < 3; j++ {
			b.xi[i][j] = noise.Normal()
		}
	}
}

// commit writes implied velocities and proposed positions for mobile particles.
func (b *base) commit(p dynamo.Particles) {
	velocityScale := 1.0 / b.deltaT
	dynamo.ParallelFor(p.Len(), minChunk, b.workers, func(start, end int) {
		for i := start; i < end; i++ {
			if p.Masses[i] == 0 {
				continue
			}
			for j := 0; j < 3; j++ {
				p.Velocities[i][j] = velocityScale * (b.xPrime[i][j] - p.Positions[i][j])
				p.Positions[i][j] = b.xPrime[i][j]
			}
		}
	})
	b.timeStep++
}
