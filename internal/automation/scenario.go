// Package automation runs scripted sequences of experiments described in
// YAML.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bdsim/internal/config"
	"github.com/san-kum/bdsim/internal/experiment"
	"github.com/san-kum/bdsim/internal/mcmc"
	"github.com/san-kum/bdsim/internal/optim"
	"github.com/san-kum/bdsim/internal/sampler"
)

// Scenario is a named list of experiments run one after another.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step starts from a preset and overrides selected settings. Params takes
// the names listed by optim.Parameters.
type Step struct {
	Preset     string             `yaml:"preset"`
	Scheme     sampler.Scheme     `yaml:"scheme,omitempty"`
	Params     map[string]float64 `yaml:"params,omitempty"`
	Seed       int64              `yaml:"seed,omitempty"`
	Iterations int                `yaml:"iterations,omitempty"`
	Steps      int                `yaml:"steps_per_iteration,omitempty"`
	Chains     int                `yaml:"chains,omitempty"`
	Kernel     string             `yaml:"kernel,omitempty"`
	SaveAs     string             `yaml:"save_as,omitempty"`
}

// Label names the step's runs: SaveAs if set, else the preset.
func (s Step) Label() string {
	if s.SaveAs != "" {
		return s.SaveAs
	}
	return s.Preset
}

// StepResult holds every chain of one step.
type StepResult struct {
	Step     Step
	Config   *config.Config
	BaseSeed int64
	Results  []*mcmc.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &sc, nil
}

// Config builds and validates the configuration of step s.
func (s Step) Config() (*config.Config, error) {
	system, name, ok := strings.Cut(s.Preset, "/")
	if !ok {
		return nil, fmt.Errorf("preset must be system/name, got %q", s.Preset)
	}
	cfg := config.GetPreset(system, name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset %q", s.Preset)
	}

	if s.Scheme != "" {
		cfg.Sampler.Scheme = s.Scheme
	}
	names := make([]string, 0, len(s.Params))
	for k := range s.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := optim.Apply(cfg, k, s.Params[k]); err != nil {
			return nil, err
		}
	}
	if s.Seed != 0 {
		cfg.Sampler.Seed = s.Seed
	}
	if s.Iterations > 0 {
		cfg.Run.Iterations = s.Iterations
	}
	if s.Steps > 0 {
		cfg.Run.StepsPerIteration = s.Steps
	}
	if s.Chains > 0 {
		cfg.Run.Chains = s.Chains
	}
	if s.Kernel != "" {
		cfg.Kernel.Type = s.Kernel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Handler receives each step as soon as it finishes, for example to store
// its runs. An error from the handler stops the scenario.
type Handler func(index int, r StepResult) error

// RunScenario runs every step in order. A step that fails to build or run
// stops the scenario; the steps already finished are returned.
func RunScenario(ctx context.Context, sc *Scenario, logger *slog.Logger, handle Handler, opts ...experiment.Option) ([]StepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]StepResult, 0, len(sc.Steps))

	for i, step := range sc.Steps {
		logger.Info("scenario step", "scenario", sc.Name, "step", i+1, "of", len(sc.Steps), "preset", step.Preset)

		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		exp, err := experiment.New(cfg, opts...)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		runs, err := exp.RunEnsemble(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return results, err
			}
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		r := StepResult{Step: step, Config: exp.Config(), BaseSeed: exp.BaseSeed(), Results: runs}
		if handle != nil {
			if err := handle(i, r); err != nil {
				return results, fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		results = append(results, r)
	}
	return results, nil
}
