package sim

import (
	"fmt"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// ForceField fills f with forces for positions x restricted to the selected
// force groups and returns the potential energy.
type ForceField interface {
	Compute(x, f []dynamo.Vec3, groups int) float64
}

// VirtualSite places a massless particle at a weighted sum of its parents.
type VirtualSite struct {
	Index   int       `yaml:"index"`
	Parents []int     `yaml:"parents"`
	Weights []float64 `yaml:"weights"`
}

// System is the static description of the particles a context simulates.
type System struct {
	Masses       []float64
	VirtualSites []VirtualSite
}

func (s System) NumParticles() int { return len(s.Masses) }

// Validate checks virtual-site references and that sites are massless.
func (s System) Validate() error {
	n := len(s.Masses)
	for _, m := range s.Masses {
		if m < 0 {
			return fmt.Errorf("negative mass %g: %w", m, dynamo.ErrParameterBounds)
		}
	}
	for _, vs := range s.VirtualSites {
		if vs.Index < 0 || vs.Index >= n {
			return fmt.Errorf("virtual site index %d out of range", vs.Index)
		}
		if s.Masses[vs.Index] != 0 {
			return fmt.Errorf("virtual site %d must be massless", vs.Index)
		}
		if len(vs.Parents) != len(vs.Weights) {
			return &dynamo.DimensionError{What: "virtual site weights", Got: len(vs.Weights), Want: len(vs.Parents)}
		}
		for _, p := range vs.Parents {
			if p < 0 || p >= n || p == vs.Index {
				return fmt.Errorf("virtual site %d has invalid parent %d", vs.Index, p)
			}
		}
	}
	return nil
}
