package sampler

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bdsim/internal/dynamo"
)

type Scheme string

const (
	SchemeRandomWalk Scheme = "random_walk"
	SchemeIndirect   Scheme = "indirect_reconstruction"
	SchemeDamped     Scheme = "damped_reconstruction"
)

// Schemes lists every scheme New understands.
func Schemes() []Scheme {
	return []Scheme{SchemeRandomWalk, SchemeIndirect, SchemeDamped}
}

// Params is the persisted configuration of a sampler.
type Params struct {
	Scheme      Scheme  `yaml:"scheme" json:"scheme"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	StepSize    float64 `yaml:"step_size" json:"step_size"`
	Lambda      float64 `yaml:"lambda,omitempty" json:"lambda,omitempty"`
	Gamma       float64 `yaml:"gamma,omitempty" json:"gamma,omitempty"`
	Period      float64 `yaml:"period,omitempty" json:"period,omitempty"`
	Seed        int64   `yaml:"seed" json:"seed"`
}

func (p Params) Validate() error {
	switch p.Scheme {
	case SchemeRandomWalk, SchemeIndirect, SchemeDamped:
	default:
		return fmt.Errorf("unknown scheme %q", p.Scheme)
	}
	if !(p.StepSize > 0) || math.IsInf(p.StepSize, 0) {
		return fmt.Errorf("step_size %g: %w", p.StepSize, dynamo.ErrParameterBounds)
	}
	if !(p.Temperature >= 0) || math.IsInf(p.Temperature, 0) {
		return fmt.Errorf("temperature %g: %w", p.Temperature, dynamo.ErrParameterBounds)
	}
	if !(p.Gamma >= 0) {
		return fmt.Errorf("gamma %g: %w", p.Gamma, dynamo.ErrParameterBounds)
	}
	if math.IsNaN(p.Lambda) || math.IsNaN(p.Period) {
		return fmt.Errorf("lambda/period must be numbers: %w", dynamo.ErrParameterBounds)
	}
	return nil
}

func MarshalParams(p Params) ([]byte, error) {
	return yaml.Marshal(p)
}

func UnmarshalParams(data []byte) (Params, error) {
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("parse sampler params: %w", err)
	}
	return p, nil
}

// New builds the front-end named by p.Scheme. rc is ignored by RandomWalk.
// An explicit WithSeed option overrides p.Seed.
func New(p Params, rc dynamo.ReactionCoordinate, opts ...Option) (Sampler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{WithSeed(p.Seed)}, opts...)

	switch p.Scheme {
	case SchemeRandomWalk:
		return NewRandomWalk(p.Temperature, p.StepSize, p.Period, opts...), nil
	case SchemeIndirect:
		return NewIndirectReconstruction(p.Temperature, p.StepSize, p.Lambda, rc, opts...), nil
	default:
		s, err := NewDampedReconstruction(p.Temperature, p.StepSize, p.Lambda, p.Gamma, rc, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
