package config

import (
	"sort"

	"github.com/san-kum/bdsim/internal/physics"
	"github.com/san-kum/bdsim/internal/reaction"
	"github.com/san-kum/bdsim/internal/sampler"
)

func doubleWell(p sampler.Params) *Config {
	cfg := DefaultConfig()
	cfg.Sampler = p
	cfg.Particles = ParticlesConfig{
		Masses:    []float64{1, 1, 1, 1, 0},
		Positions: [][3]float64{{-1, 0, 0}, {-1, 0.1, 0}, {-1, -0.1, 0}, {-1, 0, 0.1}, {0, 0, 0}},
	}
	cfg.ForceField = []physics.Spec{
		{Kind: "double_well", Params: map[string]float64{"A": 5, "B": 1, "K": 10}},
	}
	return cfg
}

func biasedDoubleWell(p sampler.Params) *Config {
	cfg := doubleWell(p)
	cfg.Reaction = reaction.Spec{Kind: "axis", Axis: [3]float64{1, 0, 0}, Kappa: 5}
	cfg.Target = [][3]float64{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}}
	cfg.Run.IncludeBias = true
	return cfg
}

var Presets = map[string]map[string]*Config{
	"doublewell": {
		"unbiased": doubleWell(sampler.Params{
			Scheme: sampler.SchemeRandomWalk, Temperature: 300, StepSize: 0.002,
		}),
		"biased": biasedDoubleWell(sampler.Params{
			Scheme: sampler.SchemeIndirect, Temperature: 300, StepSize: 0.002, Lambda: 20,
		}),
		"damped": biasedDoubleWell(sampler.Params{
			Scheme: sampler.SchemeDamped, Temperature: 300, StepSize: 0.002, Lambda: 20, Gamma: 1,
		}),
	},
	"trap": {
		"periodic": func() *Config {
			cfg := DefaultConfig()
			cfg.Sampler = sampler.Params{
				Scheme: sampler.SchemeRandomWalk, Temperature: 300, StepSize: 0.01, Period: 2,
			}
			cfg.Particles = ParticlesConfig{
				Masses:    []float64{1, 1, 1},
				Positions: [][3]float64{{0, 0, 0}, {0.5, 0, 0}, {0, 0.5, 0}},
			}
			cfg.ForceField = []physics.Spec{
				{Kind: "harmonic_trap", Params: map[string]float64{"K": 2}},
			}
			return cfg
		}(),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(system, preset string) *Config {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	cfg, ok := systemPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(system string) []string {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(systemPresets))
	for name := range systemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListSystems returns the systems that have presets.
func ListSystems() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
