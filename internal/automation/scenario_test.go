package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/bdsim/internal/sampler"
)

const scenarioYAML = `
name: compare
description: unbiased against biased double well
steps:
  - preset: doublewell/unbiased
    seed: 11
    iterations: 12
    steps_per_iteration: 2
  - preset: doublewell/biased
    scheme: damped_reconstruction
    params:
      gamma: 0.5
      dt: 0.001
    seed: 12
    iterations: 12
    steps_per_iteration: 2
    chains: 2
    save_as: damped
`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)
	assert.Equal(t, "compare", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, sampler.SchemeDamped, sc.Steps[1].Scheme)
	assert.Equal(t, 0.5, sc.Steps[1].Params["gamma"])
	assert.Equal(t, "doublewell/unbiased", sc.Steps[0].Label())
	assert.Equal(t, "damped", sc.Steps[1].Label())

	_, err = LoadScenario(writeScenario(t, "name: empty\n"))
	assert.Error(t, err)
	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStepConfig(t *testing.T) {
	cfg, err := Step{Preset: "doublewell/biased", Params: map[string]float64{"lambda": 3, "dt": 0.001}, Chains: 4}.Config()
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Sampler.Lambda)
	assert.Equal(t, 0.001, cfg.Sampler.StepSize)
	assert.Equal(t, 4, cfg.Run.Chains)

	_, err = Step{Preset: "doublewell"}.Config()
	assert.Error(t, err)
	_, err = Step{Preset: "nope/none"}.Config()
	assert.Error(t, err)
	_, err = Step{Preset: "doublewell/biased", Params: map[string]float64{"mass": 1}}.Config()
	assert.ErrorContains(t, err, "unknown parameter")
	_, err = Step{Preset: "doublewell/biased", Params: map[string]float64{"dt": -1}}.Config()
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	var handled []int
	results, err := RunScenario(context.Background(), sc, quiet(), func(i int, r StepResult) error {
		handled = append(handled, i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, handled)
	require.Len(t, results, 2)

	assert.Len(t, results[0].Results, 1)
	assert.Equal(t, int64(11), results[0].BaseSeed)
	require.Len(t, results[1].Results, 2)
	assert.Equal(t, sampler.SchemeDamped, results[1].Config.Sampler.Scheme)
	for _, r := range results[1].Results {
		assert.Equal(t, 12, r.Iterations)
	}
}

func TestRunScenarioStopsOnHandlerError(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	boom := errors.New("disk full")
	results, err := RunScenario(context.Background(), sc, quiet(), func(int, StepResult) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, results)
}

func TestRunScenarioStopsOnBadStep(t *testing.T) {
	sc := &Scenario{Name: "bad", Steps: []Step{
		{Preset: "doublewell/unbiased", Seed: 1, Iterations: 5, Steps: 1},
		{Preset: "doublewell/unbiased", Kernel: "gpu"},
	}}
	results, err := RunScenario(context.Background(), sc, quiet(), nil)
	assert.ErrorContains(t, err, "step 2")
	assert.Len(t, results, 1)
}
