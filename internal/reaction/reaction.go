// Package reaction provides reaction coordinates for biased sampling.
//
// Every coordinate maps n positions to n vectors, applies the adjoint of its
// Jacobian without building it, and reports a harmonic restraint energy
// 0.5 * Kappa * sum_i |value_i - z_i|^2 for use by acceptance tests.
package reaction

import (
	"fmt"
	"math"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// Identity is value(x) = x.
type Identity struct {
	Kappa float64
}

func NewIdentity(kappa float64) *Identity { return &Identity{Kappa: kappa} }

func (c *Identity) Value(x []dynamo.Vec3) []dynamo.Vec3 { return dynamo.CloneVecs(x) }

func (c *Identity) GradMatMul(x, v []dynamo.Vec3) []dynamo.Vec3 { return dynamo.CloneVecs(v) }

func (c *Identity) BiasedEnergy(x, z []dynamo.Vec3) float64 {
	return restraint(c.Kappa, c.Value(x), z)
}

// AxisProjection keeps the component of every position along a unit axis:
// value_i = (n . x_i) n. Its Jacobian n n^T is symmetric, so the adjoint is
// the same projection applied to v.
type AxisProjection struct {
	Axis  dynamo.Vec3
	Kappa float64
}

// NewAxisProjection normalizes axis. A zero axis falls back to x.
func NewAxisProjection(axis dynamo.Vec3, kappa float64) *AxisProjection {
	norm := axis.Norm()
	if norm == 0 {
		axis, norm = dynamo.Vec3{1, 0, 0}, 1
	}
	return &AxisProjection{Axis: axis.Scale(1 / norm), Kappa: kappa}
}

func (c *AxisProjection) project(vs []dynamo.Vec3) []dynamo.Vec3 {
	out := make([]dynamo.Vec3, len(vs))
	for i, v := range vs {
		out[i] = c.Axis.Scale(c.Axis.Dot(v))
	}
	return out
}

func (c *AxisProjection) Value(x []dynamo.Vec3) []dynamo.Vec3 { return c.project(x) }

func (c *AxisProjection) GradMatMul(x, v []dynamo.Vec3) []dynamo.Vec3 { return c.project(v) }

func (c *AxisProjection) BiasedEnergy(x, z []dynamo.Vec3) float64 {
	return restraint(c.Kappa, c.Value(x), z)
}

// Centroid reports the mean position of the whole configuration for every
// particle: value_i = (1/n) sum_k x_k. The adjoint spreads (1/n) sum_k v_k
// back to every particle.
type Centroid struct {
	Kappa float64
}

func NewCentroid(kappa float64) *Centroid { return &Centroid{Kappa: kappa} }

func mean(vs []dynamo.Vec3) dynamo.Vec3 {
	var sum dynamo.Vec3
	for _, v := range vs {
		sum = sum.Add(v)
	}
	if len(vs) == 0 {
		return sum
	}
	return sum.Scale(1 / float64(len(vs)))
}

func broadcast(v dynamo.Vec3, n int) []dynamo.Vec3 {
	out := make([]dynamo.Vec3, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (c *Centroid) Value(x []dynamo.Vec3) []dynamo.Vec3 { return broadcast(mean(x), len(x)) }

func (c *Centroid) GradMatMul(x, v []dynamo.Vec3) []dynamo.Vec3 {
	return broadcast(mean(v), len(x))
}

func (c *Centroid) BiasedEnergy(x, z []dynamo.Vec3) float64 {
	return restraint(c.Kappa, c.Value(x), z)
}

func restraint(kappa float64, value, z []dynamo.Vec3) float64 {
	if len(z) != len(value) {
		return math.NaN()
	}
	return 0.5 * kappa * dynamo.SquaredDistance(value, z)
}

// Spec selects and parameterizes a reaction coordinate by name.
type Spec struct {
	Kind  string     `yaml:"kind"`
	Axis  [3]float64 `yaml:"axis,omitempty"`
	Kappa float64    `yaml:"kappa"`
}

// New builds the coordinate named by spec. An empty kind means no coordinate.
func New(spec Spec) (dynamo.ReactionCoordinate, error) {
	switch spec.Kind {
	case "":
		return nil, nil
	case "identity":
		return NewIdentity(spec.Kappa), nil
	case "axis":
		return NewAxisProjection(dynamo.Vec3(spec.Axis), spec.Kappa), nil
	case "centroid":
		return NewCentroid(spec.Kappa), nil
	default:
		return nil, fmt.Errorf("unknown reaction coordinate: %s", spec.Kind)
	}
}

// Kinds lists the names New accepts.
func Kinds() []string {
	return []string{"identity", "axis", "centroid"}
}
