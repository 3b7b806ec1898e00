package sampler

import (
	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/sim"
)

// spring pulls every particle toward the origin.
type spring struct{ k float64 }

func (s spring) Compute(x, f []dynamo.Vec3, groups int) float64 {
	e := 0.0
	for i := range x {
		f[i] = f[i].Add(x[i].Scale(-s.k))
		e += 0.5 * s.k * x[i].Dot(x[i])
	}
	return e
}

// identity is the simplest reaction coordinate: value(x) = x.
type identity struct{}

func (identity) Value(x []dynamo.Vec3) []dynamo.Vec3 { return dynamo.CloneVecs(x) }

func (identity) GradMatMul(x, v []dynamo.Vec3) []dynamo.Vec3 { return dynamo.CloneVecs(v) }

func (identity) BiasedEnergy(x, z []dynamo.Vec3) float64 {
	return 0.5 * dynamo.SquaredDistance(x, z)
}

// truncated returns one vector fewer than it is given.
type truncated struct{ identity }

func (truncated) Value(x []dynamo.Vec3) []dynamo.Vec3 { return dynamo.CloneVecs(x[:len(x)-1]) }

// countingHost records how often the sampler asks the host for work.
type countingHost struct {
	*sim.Context
	updates      int
	forceCalcs   int
	energyCalcs  int
	failCalcFrom int
}

func (h *countingHost) UpdateState() {
	h.updates++
	h.Context.UpdateState()
}

func (h *countingHost) CalcForcesAndEnergy(includeForces, includeEnergy bool, groups int) (float64, error) {
	if includeForces {
		h.forceCalcs++
	} else if includeEnergy {
		h.energyCalcs++
	}
	if h.failCalcFrom > 0 && h.forceCalcs+h.energyCalcs >= h.failCalcFrom {
		return 0, dynamo.ErrInvalidState
	}
	return h.Context.CalcForcesAndEnergy(includeForces, includeEnergy, groups)
}

func (h *countingHost) reset() {
	h.updates, h.forceCalcs, h.energyCalcs = 0, 0, 0
}

func newHost(masses []float64) *sim.Context {
	x := make([]dynamo.Vec3, len(masses))
	for i := range x {
		x[i] = dynamo.Vec3{0.1 * float64(i+1), -0.05 * float64(i), 0.2}
	}
	ctx, err := sim.NewContext(sim.System{Masses: masses}, spring{k: 50}, x)
	if err != nil {
		panic(err)
	}
	return ctx
}

func equalVecs(a, b []dynamo.Vec3) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// allSchemes builds one seeded sampler per scheme.
func allSchemes(seed int64, opts ...Option) map[string]Sampler {
	opts = append([]Option{WithSeed(seed)}, opts...)
	damped, err := NewDampedReconstruction(300, 0.002, 5, 0.5, identity{}, opts...)
	if err != nil {
		panic(err)
	}
	return map[string]Sampler{
		"random_walk":             NewRandomWalk(300, 0.002, 0, opts...),
		"indirect_reconstruction": NewIndirectReconstruction(300, 0.002, 5, identity{}, opts...),
		"damped_reconstruction":   damped,
	}
}
