package physics

import (
	"fmt"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// DoubleWell is bistable along x and harmonic across y and z:
//
//	U = A (x^2 - B)^2 + K/2 (y^2 + z^2)
//
// The minima sit at x = +-sqrt(B), separated by a barrier of height A B^2.
type DoubleWell struct {
	A, B, K float64
	Group   int
}

func NewDoubleWell() *DoubleWell {
	return &DoubleWell{A: 1.0, B: 1.0, K: 10.0}
}

func (d *DoubleWell) Name() string    { return "double_well" }
func (d *DoubleWell) ForceGroup() int { return d.Group }

func (d *DoubleWell) BarrierHeight() float64 { return d.A * d.B * d.B }

func (d *DoubleWell) Compute(x, f []dynamo.Vec3) float64 {
	energy := 0.0
	for i, p := range x {
		u := p[0]*p[0] - d.B
		energy += d.A*u*u + 0.5*d.K*(p[1]*p[1]+p[2]*p[2])
		f[i][0] -= 4 * d.A * p[0] * u
		f[i][1] -= d.K * p[1]
		f[i][2] -= d.K * p[2]
	}
	return energy
}

func (d *DoubleWell) GetParams() map[string]float64 {
	return map[string]float64{"A": d.A, "B": d.B, "K": d.K}
}

func (d *DoubleWell) SetParam(n string, v float64) error {
	switch n {
	case "A":
		d.A = v
	case "B":
		d.B = v
	case "K":
		d.K = v
	default:
		return fmt.Errorf("double_well: unknown parameter %q", n)
	}
	return nil
}
