package optim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/bdsim/internal/config"
	"github.com/san-kum/bdsim/internal/mcmc"
)

func baseConfig() *config.Config {
	cfg := config.GetPreset("doublewell", "biased")
	cfg.Sampler.Seed = 3
	cfg.Run.AcceptanceSeed = 9
	cfg.Run.Iterations = 15
	cfg.Run.StepsPerIteration = 2
	return cfg
}

func TestNewGridSearchValidates(t *testing.T) {
	_, err := NewGridSearch([]string{"dt"}, nil)
	assert.Error(t, err)

	_, err = NewGridSearch([]string{"mass"}, [][]float64{{1}})
	assert.ErrorContains(t, err, "unknown parameter")

	_, err = NewGridSearch([]string{"dt"}, [][]float64{{}})
	assert.ErrorContains(t, err, "no values")

	g, err := NewGridSearch([]string{"dt", "lambda"}, [][]float64{{0.001, 0.002}, {0, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 6, g.Size())
}

func TestParameters(t *testing.T) {
	assert.Equal(t, []string{"dt", "gamma", "lambda", "temperature"}, Parameters())
}

func TestSearchPicksLowestScore(t *testing.T) {
	g, err := NewGridSearch([]string{"dt", "lambda"}, [][]float64{{-1, 0.001, 0.004}, {0, 2}})
	require.NoError(t, err)

	best, trials, err := g.Search(context.Background(), baseConfig(), TargetAcceptance(0.5))
	require.NoError(t, err)
	require.Len(t, trials, 6)

	// grid order: the first parameter varies slowest
	assert.Equal(t, map[string]float64{"dt": -1, "lambda": 0}, trials[0].Params)
	assert.Equal(t, map[string]float64{"dt": 0.004, "lambda": 2}, trials[5].Params)

	for _, tr := range trials[:2] {
		assert.Error(t, tr.Err, "negative step size must fail")
		assert.True(t, math.IsInf(tr.Score, 1))
	}

	lowest := math.Inf(1)
	var want map[string]float64
	for _, tr := range trials[2:] {
		require.NoError(t, tr.Err)
		assert.GreaterOrEqual(t, tr.Score, 0.0)
		assert.LessOrEqual(t, tr.Score, 0.5)
		if tr.Score < lowest {
			lowest, want = tr.Score, tr.Params
		}
	}
	assert.Equal(t, want, best)
}

func TestSearchIsReproducible(t *testing.T) {
	g, err := NewGridSearch([]string{"dt"}, [][]float64{{0.001, 0.003}})
	require.NoError(t, err)

	_, a, err := g.Search(context.Background(), baseConfig(), Metric("mean_energy"))
	require.NoError(t, err)
	_, b, err := g.Search(context.Background(), baseConfig(), Metric("mean_energy"))
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, a[i].Score, b[i].Score)
	}
}

func TestSearchAllFailing(t *testing.T) {
	g, err := NewGridSearch([]string{"temperature"}, [][]float64{{-5}})
	require.NoError(t, err)

	best, trials, err := g.Search(context.Background(), baseConfig(), TargetAcceptance(0.5))
	assert.Error(t, err)
	assert.Nil(t, best)
	assert.Len(t, trials, 1)
}

func TestSearchCancelled(t *testing.T) {
	g, err := NewGridSearch([]string{"dt"}, [][]float64{{0.001, 0.002}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = g.Search(ctx, baseConfig(), TargetAcceptance(0.5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetricObjective(t *testing.T) {
	obj := Metric("mean_energy")
	assert.Equal(t, 1.5, obj(&mcmc.Result{Metrics: map[string]float64{"mean_energy": 1.5}}))
	assert.True(t, math.IsInf(obj(&mcmc.Result{}), 1))
	assert.True(t, math.IsInf(obj(&mcmc.Result{Metrics: map[string]float64{"mean_energy": math.NaN()}}), 1))

	assert.InDelta(t, 0.1, TargetAcceptance(0.3)(&mcmc.Result{AcceptanceRate: 0.4}), 1e-12)
}
