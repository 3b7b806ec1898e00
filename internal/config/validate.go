package config

import (
	"errors"
	"fmt"

	"github.com/san-kum/bdsim/internal/physics"
	"github.com/san-kum/bdsim/internal/reaction"
)

// Validate checks the configuration and reports every problem it finds.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Sampler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sampler: %w", err))
	}

	n := len(c.Particles.Masses)
	if n == 0 {
		errs = append(errs, fmt.Errorf("particles.masses is required"))
	}
	if len(c.Particles.Positions) != n {
		errs = append(errs, fmt.Errorf("particles.positions has %d entries, want %d", len(c.Particles.Positions), n))
	}
	if err := c.System().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("particles: %w", err))
	}
	if len(c.Target) != 0 && len(c.Target) != n {
		errs = append(errs, fmt.Errorf("target has %d entries, want %d", len(c.Target), n))
	}

	if _, err := reaction.New(c.Reaction); err != nil {
		errs = append(errs, fmt.Errorf("reaction: %w", err))
	}
	if _, err := physics.New(c.ForceField); err != nil {
		errs = append(errs, fmt.Errorf("force_field: %w", err))
	}

	if c.Run.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("run.iterations must be > 0, got %d", c.Run.Iterations))
	}
	if c.Run.StepsPerIteration <= 0 {
		errs = append(errs, fmt.Errorf("run.steps_per_iteration must be > 0, got %d", c.Run.StepsPerIteration))
	}
	if c.Run.Chains <= 0 {
		errs = append(errs, fmt.Errorf("run.chains must be > 0, got %d", c.Run.Chains))
	}

	switch c.Kernel.Type {
	case "reference", "cpu", "auto":
	default:
		errs = append(errs, fmt.Errorf("kernel.type must be \"reference\", \"cpu\" or \"auto\", got %q", c.Kernel.Type))
	}
	if c.Kernel.Workers < 0 {
		errs = append(errs, fmt.Errorf("kernel.workers must be >= 0, got %d", c.Kernel.Workers))
	}

	return errors.Join(errs...)
}
