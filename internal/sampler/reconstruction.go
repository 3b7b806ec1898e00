package sampler

import (
	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/integrators"
)

const biasedMask = dynamo.Positions | dynamo.Forces | dynamo.Energy

// biasEngine is the restraint half of both reconstruction integrators.
type biasEngine interface {
	Lambda() float64
	SetLambda(l float64)
	ReactionCoordinate() dynamo.ReactionCoordinate
	SetReactionCoordinate(rc dynamo.ReactionCoordinate)
	MacroscopicTarget() []dynamo.Vec3
	SetMacroscopicTarget(z []dynamo.Vec3)
}

// biasControls exposes the restraint parameters on a biased front-end.
type biasControls struct {
	b  *base
	be biasEngine
}

func (c biasControls) Lambda() float64     { return c.be.Lambda() }
func (c biasControls) SetLambda(l float64) { c.be.SetLambda(l) }

func (c biasControls) ReactionCoordinate() dynamo.ReactionCoordinate { return c.be.ReactionCoordinate() }

func (c biasControls) SetReactionCoordinate(rc dynamo.ReactionCoordinate) {
	c.be.SetReactionCoordinate(rc)
}

// MacroscopicTarget returns a copy of z. Before a target is set it is all
// zeros for a bound sampler and nil otherwise.
func (c biasControls) MacroscopicTarget() []dynamo.Vec3 {
	z := c.be.MacroscopicTarget()
	if z == nil {
		if n := c.b.numParticles(); n >= 0 {
			return make([]dynamo.Vec3, n)
		}
	}
	return z
}

// SetMacroscopicTarget stores a copy of z. A bound sampler rejects a target
// whose length differs from the particle count.
func (c biasControls) SetMacroscopicTarget(z []dynamo.Vec3) error {
	if n := c.b.numParticles(); n >= 0 {
		if err := dynamo.CheckLen("macroscopic target", len(z), n); err != nil {
			return err
		}
	}
	c.be.SetMacroscopicTarget(z)
	return nil
}

// BiasedEnergy reports the bias potential at the host's current positions.
func (c biasControls) BiasedEnergy() (float64, error) {
	if err := c.b.st.requireBound(); err != nil {
		return 0, err
	}
	x := c.b.st.host.Positions()
	return dynamo.BiasedEnergy(c.be.ReactionCoordinate(), x, c.MacroscopicTarget())
}

// IndirectReconstruction runs overdamped Langevin dynamics restrained toward
// the macroscopic target.
type IndirectReconstruction struct {
	base
	biasControls
	recon *integrators.IndirectReconstruction
}

func NewIndirectReconstruction(temperature, stepSize, lambda float64, rc dynamo.ReactionCoordinate, opts ...Option) *IndirectReconstruction {
	e := integrators.NewIndirectReconstruction(temperature, stepSize, lambda, rc)
	s := &IndirectReconstruction{
		base:  newBase(e, plan{perStep: true}, biasedMask, true, opts),
		recon: e,
	}
	s.biasControls = biasControls{b: &s.base, be: e}
	return s
}

func (s *IndirectReconstruction) Params() Params {
	return Params{
		Scheme:      SchemeIndirect,
		Temperature: s.Temperature(),
		StepSize:    s.StepSize(),
		Lambda:      s.Lambda(),
		Seed:        s.Seed(),
	}
}

// DampedReconstruction is IndirectReconstruction with drift and diffusion
// scaled by the mobility 1/(1+gamma).
type DampedReconstruction struct {
	base
	biasControls
	recon *integrators.DampedReconstruction
}

func NewDampedReconstruction(temperature, stepSize, lambda, gamma float64, rc dynamo.ReactionCoordinate, opts ...Option) (*DampedReconstruction, error) {
	e := integrators.NewDampedReconstruction(temperature, stepSize, lambda, 0, rc)
	if err := e.SetGamma(gamma); err != nil {
		return nil, err
	}
	s := &DampedReconstruction{
		base:  newBase(e, plan{prelude: true, perStep: true}, biasedMask, true, opts),
		recon: e,
	}
	s.biasControls = biasControls{b: &s.base, be: e}
	return s, nil
}

func (s *DampedReconstruction) Gamma() float64               { return s.recon.Gamma() }
func (s *DampedReconstruction) SetGamma(gamma float64) error { return s.recon.SetGamma(gamma) }

func (s *DampedReconstruction) Params() Params {
	return Params{
		Scheme:      SchemeDamped,
		Temperature: s.Temperature(),
		StepSize:    s.StepSize(),
		Lambda:      s.Lambda(),
		Gamma:       s.Gamma(),
		Seed:        s.Seed(),
	}
}
