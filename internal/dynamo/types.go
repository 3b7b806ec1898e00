package dynamo

import (
	"math"
)

// Boltz is the Boltzmann constant in kJ/(mol·K).
const Boltz = 0.0083144626

// AllForceGroups selects every force group.
const AllForceGroups = -1

type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v[0] * f, v[1] * f, v[2] * f}
}
func (v Vec3) Dot(o Vec3) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v Vec3) Norm() float64      { return math.Sqrt(v.Dot(v)) }

func (v Vec3) IsValid() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// CloneVecs returns a deep copy of vs. A nil slice stays nil.
func CloneVecs(vs []Vec3) []Vec3 {
	if vs == nil {
		return nil
	}
	c := make([]Vec3, len(vs))
	copy(c, vs)
	return c
}

// SquaredDistance returns sum_i |a_i - b_i|^2. Both slices must have the same length.
func SquaredDistance(a, b []Vec3) float64 {
	sum := 0.0
	for i := range a {
		d := a[i].Sub(b[i])
		sum += d.Dot(d)
	}
	return sum
}

// ReactionCoordinate maps a configuration to a macroscopic observable of the
// same length. Implementations may assume argument lengths were validated.
type ReactionCoordinate interface {
	Value(x []Vec3) []Vec3
	// GradMatMul applies the adjoint of the Jacobian of Value at x to v.
	GradMatMul(x, v []Vec3) []Vec3
	// BiasedEnergy is the bias potential for reporting; samplers never consume it.
	BiasedEnergy(x, z []Vec3) float64
}

// StateMask selects which parts of the host state a Snapshot carries.
type StateMask int

const (
	Positions StateMask = 1 << iota
	Velocities
	Forces
	Energy
)

func (m StateMask) Has(o StateMask) bool { return m&o == o }

// Snapshot is a deep copy of host state. It never aliases host arrays.
type Snapshot struct {
	Mask       StateMask
	Time       float64
	Positions  []Vec3
	Velocities []Vec3
	Forces     []Vec3
	Energy     float64
}

func (s Snapshot) Clone() Snapshot {
	c := s
	c.Positions = CloneVecs(s.Positions)
	c.Velocities = CloneVecs(s.Velocities)
	c.Forces = CloneVecs(s.Forces)
	return c
}

// Context is the host simulation context a sampler drives. Slices returned by
// Positions, Velocities and Forces are borrowed for the duration of one call
// and must not be retained.
type Context interface {
	NumParticles() int
	Masses() []float64
	Positions() []Vec3
	Velocities() []Vec3
	Forces() []Vec3
	Energy() float64

	// UpdateState advances externally driven state before and after updates.
	UpdateState()
	CalcForcesAndEnergy(includeForces, includeEnergy bool, groups int) (float64, error)
	ApplyVirtualSites()
	AdvanceTime(dt float64)

	State(mask StateMask) Snapshot
	SetState(s Snapshot) error
}

// Noise produces standard normal deviates.
type Noise interface {
	Normal() float64
}

// Particles is the borrowed view a dynamics engine updates in place.
type Particles struct {
	Positions  []Vec3
	Velocities []Vec3
	Forces     []Vec3
	Masses     []float64
}

func (p Particles) Len() int { return len(p.Positions) }

// Engine advances particles by one time step.
type Engine interface {
	Name() string
	Update(p Particles, noise Noise) error
	StepSize() float64
	KineticEnergyRequiresForce() bool
}

// Kernel is the execution unit that runs an engine against a host context.
type Kernel interface {
	Initialize(numParticles int, masses []float64) error
	Execute(host Context) error
	ComputeKineticEnergy(host Context) float64
	Cleanup()
}

// Recorder receives sampler activity. Implementations must be cheap.
type Recorder interface {
	ObserveStep(scheme string, steps int, seconds float64)
	ObserveDecision(scheme string, accepted bool)
	ObserveFoldOverflows(scheme string, n int)
}

// Metric accumulates per-iteration driver observations.
type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Observer is notified after every driver iteration.
type Observer interface {
	OnSample(s Sample)
}

// Sample is one Metropolis iteration as seen by the driver.
type Sample struct {
	Iteration    int
	Energy       float64
	BiasedEnergy float64
	Accepted     bool
	Distance     float64
	Displacement float64
}

// Configurable exposes named scalar parameters for runtime adjustment.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
