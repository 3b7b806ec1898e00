package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bdsim/internal/sampler"
)

// Load builds a configuration in layers:
//  1. Built-in defaults
//  2. YAML config file (explicit path, BDSIM_CONFIG env, ./bdsim.yaml)
//  3. BDSIM_* environment variable overrides
//  4. Validation
func Load(configPath string) (*Config, error) {
	return LoadFrom(DefaultConfig(), configPath)
}

// LoadFrom is Load starting from base instead of the defaults, so presets
// can be layered under a file and the environment.
func LoadFrom(base *Config, configPath string) (*Config, error) {
	cfg := base.Clone()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("BDSIM_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("bdsim.yaml"); err == nil {
		return "bdsim.yaml"
	}
	return ""
}

// loadYAMLFile parses path over cfg. Fields missing from the file keep
// their current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BDSIM_SCHEME"); v != "" {
		cfg.Sampler.Scheme = sampler.Scheme(v)
	}

	floats := []struct {
		env string
		dst *float64
	}{
		{"BDSIM_TEMPERATURE", &cfg.Sampler.Temperature},
		{"BDSIM_STEP_SIZE", &cfg.Sampler.StepSize},
		{"BDSIM_LAMBDA", &cfg.Sampler.Lambda},
		{"BDSIM_GAMMA", &cfg.Sampler.Gamma},
		{"BDSIM_PERIOD", &cfg.Sampler.Period},
	}
	for _, f := range floats {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", f.env, err)
		}
		*f.dst = parsed
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"BDSIM_ITERATIONS", &cfg.Run.Iterations},
		{"BDSIM_STEPS", &cfg.Run.StepsPerIteration},
		{"BDSIM_CHAINS", &cfg.Run.Chains},
		{"BDSIM_WORKERS", &cfg.Kernel.Workers},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", i.env, err)
		}
		*i.dst = parsed
	}

	if v := os.Getenv("BDSIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BDSIM_SEED: %w", err)
		}
		cfg.Sampler.Seed = seed
	}
	if v := os.Getenv("BDSIM_INCLUDE_BIAS"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BDSIM_INCLUDE_BIAS: %w", err)
		}
		cfg.Run.IncludeBias = include
	}
	if v := os.Getenv("BDSIM_KERNEL"); v != "" {
		cfg.Kernel.Type = v
	}
	if v := os.Getenv("BDSIM_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	return nil
}
