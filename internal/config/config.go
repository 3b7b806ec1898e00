package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/physics"
	"github.com/san-kum/bdsim/internal/reaction"
	"github.com/san-kum/bdsim/internal/sampler"
	"github.com/san-kum/bdsim/internal/sim"
)

const (
	DefaultTemperature       = 300.0
	DefaultStepSize          = 0.002
	DefaultIterations        = 1000
	DefaultStepsPerIteration = 10
	DefaultDataDir           = ".bdsim"
)

// Config is everything needed to run one or more Metropolis chains.
type Config struct {
	Sampler    sampler.Params  `yaml:"sampler"`
	Particles  ParticlesConfig `yaml:"particles"`
	Target     [][3]float64    `yaml:"target,omitempty"`
	Reaction   reaction.Spec   `yaml:"reaction"`
	ForceField []physics.Spec  `yaml:"force_field"`
	Run        RunConfig       `yaml:"run"`
	Kernel     KernelConfig    `yaml:"kernel"`
	Storage    StorageConfig   `yaml:"storage"`
}

type ParticlesConfig struct {
	Masses       []float64         `yaml:"masses"`
	Positions    [][3]float64      `yaml:"positions"`
	VirtualSites []sim.VirtualSite `yaml:"virtual_sites,omitempty"`
}

type RunConfig struct {
	Iterations        int   `yaml:"iterations"`
	StepsPerIteration int   `yaml:"steps_per_iteration"`
	Chains            int   `yaml:"chains"`
	IncludeBias       bool  `yaml:"include_bias"`
	AcceptanceSeed    int64 `yaml:"acceptance_seed"`
}

// KernelConfig picks the execution unit: reference, cpu or auto.
type KernelConfig struct {
	Type    string `yaml:"type"`
	Workers int    `yaml:"workers,omitempty"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		Sampler: sampler.Params{
			Scheme:      sampler.SchemeRandomWalk,
			Temperature: DefaultTemperature,
			StepSize:    DefaultStepSize,
		},
		Particles: ParticlesConfig{
			Masses:    []float64{1, 1, 1, 0},
			Positions: [][3]float64{{-1, 0, 0}, {1, 0, 0}, {-1, 0.2, 0}, {0, 0, 0}},
		},
		ForceField: []physics.Spec{
			{Kind: "double_well", Params: map[string]float64{"A": 5, "B": 1, "K": 10}},
		},
		Run: RunConfig{
			Iterations:        DefaultIterations,
			StepsPerIteration: DefaultStepsPerIteration,
			Chains:            1,
		},
		Kernel:  KernelConfig{Type: "reference"},
		Storage: StorageConfig{DataDir: DefaultDataDir},
	}
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func vecs(in [][3]float64) []dynamo.Vec3 {
	if len(in) == 0 {
		return nil
	}
	out := make([]dynamo.Vec3, len(in))
	for i, v := range in {
		out[i] = dynamo.Vec3(v)
	}
	return out
}

// Positions returns the initial configuration.
func (c *Config) Positions() []dynamo.Vec3 { return vecs(c.Particles.Positions) }

// MacroscopicTarget returns z, or nil when the config leaves it at zero.
func (c *Config) MacroscopicTarget() []dynamo.Vec3 { return vecs(c.Target) }

func (c *Config) System() sim.System {
	return sim.System{
		Masses:       append([]float64(nil), c.Particles.Masses...),
		VirtualSites: append([]sim.VirtualSite(nil), c.Particles.VirtualSites...),
	}
}

// Clone returns a deep copy through a YAML round trip.
func (c *Config) Clone() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("config: marshal for clone: %v", err))
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("config: unmarshal for clone: %v", err))
	}
	return out
}
