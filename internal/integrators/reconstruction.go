package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// bias holds the restraint toward the macroscopic target.
type bias struct {
	lambda float64
	rc     dynamo.ReactionCoordinate
	target []dynamo.Vec3
}

func (b *bias) Lambda() float64     { return b.lambda }
func (b *bias) SetLambda(l float64) { b.lambda = l }

func (b *bias) ReactionCoordinate() dynamo.ReactionCoordinate      { return b.rc }
func (b *bias) SetReactionCoordinate(rc dynamo.ReactionCoordinate) { b.rc = rc }

// MacroscopicTarget returns a copy of z. A nil result means z was never set
// and is treated as all zeros.
func (b *bias) MacroscopicTarget() []dynamo.Vec3 { return dynamo.CloneVecs(b.target) }

func (b *bias) SetMacroscopicTarget(z []dynamo.Vec3) { b.target = dynamo.CloneVecs(z) }

// gradient returns gradMatMul(x, value(x) - z). Lengths are checked before
// anything is returned so callers can bail out without touching x.
func (b *bias) gradient(x []dynamo.Vec3) ([]dynamo.Vec3, error) {
	n := len(x)
	if b.rc == nil {
		return make([]dynamo.Vec3, n), nil
	}
	if b.target != nil {
		if err := dynamo.CheckLen("macroscopic target", len(b.target), n); err != nil {
			return nil, err
		}
	}

	value := b.rc.Value(x)
	if err := dynamo.CheckLen("reaction coordinate value", len(value), n); err != nil {
		return nil, err
	}
	// value may alias x; the residual always gets its own storage.
	r := make([]dynamo.Vec3, n)
	for i := range value {
		r[i] = value[i]
		if b.target != nil {
			r[i] = r[i].Sub(b.target[i])
		}
	}

	g := b.rc.GradMatMul(x, r)
	if err := dynamo.CheckLen("reaction coordinate gradient", len(g), n); err != nil {
		return nil, err
	}
	return g, nil
}

// IndirectReconstruction is overdamped Langevin dynamics with a restraining
// drift of strength lambda pulling the reaction coordinate toward z.
type IndirectReconstruction struct {
	base
	bias
}

func NewIndirectReconstruction(temperature, stepSize, lambda float64, rc dynamo.ReactionCoordinate) *IndirectReconstruction {
	return &IndirectReconstruction{
		base: newBase(temperature, stepSize),
		bias: bias{lambda: lambda, rc: rc},
	}
}

func (e *IndirectReconstruction) Name() string { return "indirect_reconstruction" }

func (e *IndirectReconstruction) Update(p dynamo.Particles, noise dynamo.Noise) error {
	return reconstruct(&e.base, &e.bias, 1.0, p, noise)
}

// DampedReconstruction scales drift and diffusion by the mobility
// 1/(1+gamma). With gamma == 0 it is IndirectReconstruction exactly.
type DampedReconstruction struct {
	base
	bias
	gamma float64
}

func NewDampedReconstruction(temperature, stepSize, lambda, gamma float64, rc dynamo.ReactionCoordinate) *DampedReconstruction {
	return &DampedReconstruction{
		base:  newBase(temperature, stepSize),
		bias:  bias{lambda: lambda, rc: rc},
		gamma: gamma,
	}
}

func (e *DampedReconstruction) Name() string      { return "damped_reconstruction" }
func (e *DampedReconstruction) Gamma() float64    { return e.gamma }
func (e *DampedReconstruction) Mobility() float64 { return 1.0 / (1.0 + e.gamma) }

func (e *DampedReconstruction) SetGamma(gamma float64) error {
	if gamma < 0 || math.IsNaN(gamma) {
		return fmt.Errorf("gamma %g: %w", gamma, dynamo.ErrParameterBounds)
	}
	e.gamma = gamma
	return nil
}

func (e *DampedReconstruction) Update(p dynamo.Particles, noise dynamo.Noise) error {
	if e.gamma < 0 || math.IsNaN(e.gamma) {
		return fmt.Errorf("gamma %g: %w", e.gamma, dynamo.ErrParameterBounds)
	}
	return reconstruct(&e.base, &e.bias, e.Mobility(), p, noise)
}

// reconstruct applies
//
//	x' = x + mu dt F - mu dt lambda g + sqrt(2 kB T mu dt) N(0,1)
//
// to every mobile particle.
func reconstruct(b *base, bs *bias, mu float64, p dynamo.Particles, noise dynamo.Noise) error {
	if err := b.validate(p, true); err != nil {
		return err
	}

	g, err := bs.gradient(p.Positions)
	if err != nil {
		return err
	}

	n := p.Len()
	b.ensureScratch(n)
	b.drawNoise(p.Masses, noise)

	dt := mu * b.deltaT
	amp := math.Sqrt(2.0 * dynamo.Boltz * b.temperature * mu * b.deltaT)
	lambda := bs.lambda
	dynamo.ParallelFor(n, minChunk, b.workers, func(start, end int) {
		for i := start; i < end; i++ {
			if p.Masses[i] == 0 {
				continue
			}
			for j := 0; j < 3; j++ {
				b.xPrime[i][j] = p.Positions[i][j] + dt*p.Forces[i][j] - dt*lambda*g[i][j] + amp*b.xi[i][j]
			}
		}
	})

	b.commit(p)
	return nil
}
