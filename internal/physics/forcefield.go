package physics

import (
	"fmt"
	"sort"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// Term is one potential-energy contribution. Compute adds its forces to f
// and returns its energy.
type Term interface {
	Name() string
	ForceGroup() int
	Compute(x, f []dynamo.Vec3) float64
}

// Composite sums terms selected by a force-group bitmask. Term groups are
// bit positions, so groups 0b101 selects terms in groups 0 and 2.
type Composite struct {
	Terms []Term
}

func NewComposite(terms ...Term) *Composite {
	return &Composite{Terms: terms}
}

// Selected reports whether group is part of the groups bitmask.
func Selected(groups, group int) bool {
	return groups == dynamo.AllForceGroups || groups&(1<<uint(group)) != 0
}

func (c *Composite) Compute(x, f []dynamo.Vec3, groups int) float64 {
	energy := 0.0
	for _, t := range c.Terms {
		if Selected(groups, t.ForceGroup()) {
			energy += t.Compute(x, f)
		}
	}
	return energy
}

// Spec describes one term in configuration files.
type Spec struct {
	Kind   string             `yaml:"kind" json:"kind"`
	Group  int                `yaml:"group,omitempty" json:"group,omitempty"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
	Bonds  []Bond             `yaml:"bonds,omitempty" json:"bonds,omitempty"`
}

type factory func() Term

var registry = map[string]factory{
	"double_well":    func() Term { return NewDoubleWell() },
	"harmonic_trap":  func() Term { return NewHarmonicTrap() },
	"harmonic_bonds": func() Term { return &HarmonicBonds{} },
}

// Kinds lists the term kinds New accepts.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds a composite force field from specs.
func New(specs []Spec) (*Composite, error) {
	c := &Composite{}
	for i, s := range specs {
		t, err := newTerm(s)
		if err != nil {
			return nil, fmt.Errorf("force field term %d: %w", i, err)
		}
		c.Terms = append(c.Terms, t)
	}
	return c, nil
}

func newTerm(s Spec) (Term, error) {
	f, ok := registry[s.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q (want one of %v)", s.Kind, Kinds())
	}
	if s.Group < 0 || s.Group > 30 {
		return nil, fmt.Errorf("group %d: %w", s.Group, dynamo.ErrParameterBounds)
	}
	t := f()

	switch t := t.(type) {
	case *DoubleWell:
		t.Group = s.Group
	case *HarmonicTrap:
		t.Group = s.Group
	case *HarmonicBonds:
		t.Group = s.Group
		t.Bonds = append([]Bond(nil), s.Bonds...)
	}

	if len(s.Params) > 0 {
		cfg, ok := t.(dynamo.Configurable)
		if !ok {
			return nil, fmt.Errorf("%s takes no params", s.Kind)
		}
		names := make([]string, 0, len(s.Params))
		for n := range s.Params {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if err := cfg.SetParam(n, s.Params[n]); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}
