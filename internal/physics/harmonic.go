package physics

import (
	"fmt"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// HarmonicTrap ties every particle to Center with stiffness K.
type HarmonicTrap struct {
	K      float64
	Center dynamo.Vec3
	Group  int
}

func NewHarmonicTrap() *HarmonicTrap {
	return &HarmonicTrap{K: 100.0}
}

func (h *HarmonicTrap) Name() string    { return "harmonic_trap" }
func (h *HarmonicTrap) ForceGroup() int { return h.Group }

func (h *HarmonicTrap) Compute(x, f []dynamo.Vec3) float64 {
	energy := 0.0
	for i := range x {
		d := x[i].Sub(h.Center)
		energy += 0.5 * h.K * d.Dot(d)
		f[i] = f[i].Sub(d.Scale(h.K))
	}
	return energy
}

func (h *HarmonicTrap) GetParams() map[string]float64 {
	return map[string]float64{"K": h.K, "x0": h.Center[0], "y0": h.Center[1], "z0": h.Center[2]}
}

func (h *HarmonicTrap) SetParam(n string, v float64) error {
	switch n {
	case "K":
		h.K = v
	case "x0":
		h.Center[0] = v
	case "y0":
		h.Center[1] = v
	case "z0":
		h.Center[2] = v
	default:
		return fmt.Errorf("harmonic_trap: unknown parameter %q", n)
	}
	return nil
}

// Bond is a harmonic spring between particles I and J.
type Bond struct {
	I      int     `yaml:"i" json:"i"`
	J      int     `yaml:"j" json:"j"`
	Length float64 `yaml:"length" json:"length"`
	K      float64 `yaml:"k" json:"k"`
}

// HarmonicBonds connects particle pairs with springs.
type HarmonicBonds struct {
	Bonds []Bond
	Group int
}

// NewBondChain links particles 0..n-1 in sequence.
func NewBondChain(n int, length, k float64) *HarmonicBonds {
	bonds := make([]Bond, 0, n)
	for i := 0; i+1 < n; i++ {
		bonds = append(bonds, Bond{I: i, J: i + 1, Length: length, K: k})
	}
	return &HarmonicBonds{Bonds: bonds}
}

func (h *HarmonicBonds) Name() string    { return "harmonic_bonds" }
func (h *HarmonicBonds) ForceGroup() int { return h.Group }

func (h *HarmonicBonds) Compute(x, f []dynamo.Vec3) float64 {
	energy := 0.0
	for _, b := range h.Bonds {
		if b.I >= len(x) || b.J >= len(x) {
			continue
		}
		d := x[b.I].Sub(x[b.J])
		r := d.Norm()
		stretch := r - b.Length
		energy += 0.5 * b.K * stretch * stretch
		if r == 0 {
			continue
		}
		fi := d.Scale(-b.K * stretch / r)
		f[b.I] = f[b.I].Add(fi)
		f[b.J] = f[b.J].Sub(fi)
	}
	return energy
}
