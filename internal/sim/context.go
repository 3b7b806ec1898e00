package sim

import (
	"fmt"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// Context owns positions, velocities, forces and energy for one system and
// evaluates a force field on demand. It implements dynamo.Context.
type Context struct {
	system     System
	forceField ForceField

	positions  []dynamo.Vec3
	velocities []dynamo.Vec3
	forces     []dynamo.Vec3
	scratch    []dynamo.Vec3
	energy     float64
	time       float64

	updates  int
	updaters []func(*Context)
}

func NewContext(system System, ff ForceField, positions []dynamo.Vec3) (*Context, error) {
	if err := system.Validate(); err != nil {
		return nil, err
	}
	n := system.NumParticles()
	if err := dynamo.CheckLen("positions", len(positions), n); err != nil {
		return nil, err
	}

	c := &Context{
		system:     system,
		forceField: ff,
		positions:  dynamo.CloneVecs(positions),
		velocities: make([]dynamo.Vec3, n),
		forces:     make([]dynamo.Vec3, n),
		scratch:    make([]dynamo.Vec3, n),
	}
	c.ApplyVirtualSites()
	return c, nil
}

// AddStateUpdater registers a hook run by every UpdateState call.
func (c *Context) AddStateUpdater(fn func(*Context)) { c.updaters = append(c.updaters, fn) }

func (c *Context) NumParticles() int         { return c.system.NumParticles() }
func (c *Context) Masses() []float64         { return c.system.Masses }
func (c *Context) Positions() []dynamo.Vec3  { return c.positions }
func (c *Context) Velocities() []dynamo.Vec3 { return c.velocities }
func (c *Context) Forces() []dynamo.Vec3     { return c.forces }
func (c *Context) Energy() float64           { return c.energy }
func (c *Context) Time() float64             { return c.time }
func (c *Context) Updates() int              { return c.updates }
func (c *Context) System() System            { return c.system }

func (c *Context) UpdateState() {
	c.updates++
	for _, fn := range c.updaters {
		fn(c)
	}
}

func (c *Context) AdvanceTime(dt float64) { c.time += dt }

// SetPositions copies x into the context and places virtual sites.
func (c *Context) SetPositions(x []dynamo.Vec3) error {
	if err := dynamo.CheckLen("positions", len(x), c.NumParticles()); err != nil {
		return err
	}
	copy(c.positions, x)
	c.ApplyVirtualSites()
	return nil
}

func (c *Context) CalcForcesAndEnergy(includeForces, includeEnergy bool, groups int) (float64, error) {
	for i := range c.positions {
		if !c.positions[i].IsValid() {
			return 0, fmt.Errorf("particle %d: %w", i, dynamo.ErrInvalidState)
		}
	}

	for i := range c.scratch {
		c.scratch[i] = dynamo.Vec3{}
	}
	energy := 0.0
	if c.forceField != nil {
		energy = c.forceField.Compute(c.positions, c.scratch, groups)
	}
	c.spreadVirtualSiteForces(c.scratch)

	if includeForces {
		copy(c.forces, c.scratch)
	}
	if includeEnergy {
		c.energy = energy
	}
	return energy, nil
}

func (c *Context) ApplyVirtualSites() {
	for _, vs := range c.system.VirtualSites {
		var pos dynamo.Vec3
		for k, parent := range vs.Parents {
			pos = pos.Add(c.positions[parent].Scale(vs.Weights[k]))
		}
		c.positions[vs.Index] = pos
	}
}

// spreadVirtualSiteForces moves force acting on a site onto its parents.
func (c *Context) spreadVirtualSiteForces(f []dynamo.Vec3) {
	for _, vs := range c.system.VirtualSites {
		site := f[vs.Index]
		for k, parent := range vs.Parents {
			f[parent] = f[parent].Add(site.Scale(vs.Weights[k]))
		}
		f[vs.Index] = dynamo.Vec3{}
	}
}

func (c *Context) State(mask dynamo.StateMask) dynamo.Snapshot {
	s := dynamo.Snapshot{Mask: mask, Time: c.time}
	if mask.Has(dynamo.Positions) {
		s.Positions = dynamo.CloneVecs(c.positions)
	}
	if mask.Has(dynamo.Velocities) {
		s.Velocities = dynamo.CloneVecs(c.velocities)
	}
	if mask.Has(dynamo.Forces) {
		s.Forces = dynamo.CloneVecs(c.forces)
	}
	if mask.Has(dynamo.Energy) {
		s.Energy = c.energy
	}
	return s
}

// SetState restores everything the snapshot's mask carries. Nothing is
// written unless every carried array has the right length.
func (c *Context) SetState(s dynamo.Snapshot) error {
	n := c.NumParticles()
	checks := []struct {
		flag dynamo.StateMask
		what string
		vs   []dynamo.Vec3
	}{
		{dynamo.Positions, "snapshot positions", s.Positions},
		{dynamo.Velocities, "snapshot velocities", s.Velocities},
		{dynamo.Forces, "snapshot forces", s.Forces},
	}
	for _, chk := range checks {
		if !s.Mask.Has(chk.flag) {
			continue
		}
		if err := dynamo.CheckLen(chk.what, len(chk.vs), n); err != nil {
			return err
		}
	}

	if s.Mask.Has(dynamo.Positions) {
		copy(c.positions, s.Positions)
	}
	if s.Mask.Has(dynamo.Velocities) {
		copy(c.velocities, s.Velocities)
	}
	if s.Mask.Has(dynamo.Forces) {
		copy(c.forces, s.Forces)
	}
	if s.Mask.Has(dynamo.Energy) {
		c.energy = s.Energy
	}
	c.time = s.Time
	return nil
}
