package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/bdsim/internal/compute"
	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/metrics"
)

// Registry maps the names used in configuration files to kernels and
// chain metrics.
type Registry struct {
	kernels map[string]func(workers int) compute.Factory
	metrics map[string]func() dynamo.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		kernels: make(map[string]func(int) compute.Factory),
		metrics: make(map[string]func() dynamo.Metric),
	}

	r.kernels["reference"] = func(int) compute.Factory { return compute.ReferenceFactory }
	r.kernels["cpu"] = func(workers int) compute.Factory { return compute.CPUFactory(workers) }
	r.kernels["auto"] = func(int) compute.Factory { return compute.AutoFactory }

	r.metrics["mean_energy"] = func() dynamo.Metric { return metrics.NewMeanEnergy() }
	r.metrics["energy_drift"] = func() dynamo.Metric { return metrics.NewEnergyDrift() }
	r.metrics["acceptance_rate"] = func() dynamo.Metric { return metrics.NewAcceptanceRate() }
	r.metrics["mean_squared_displacement"] = func() dynamo.Metric { return metrics.NewMeanSquaredDisplacement() }
	r.metrics["mean_distance"] = func() dynamo.Metric { return metrics.NewMeanDistance() }

	return r
}

func (r *Registry) GetKernel(name string, workers int) (compute.Factory, error) {
	fn, ok := r.kernels[name]
	if !ok {
		return nil, fmt.Errorf("unknown kernel: %s", name)
	}
	return fn(workers), nil
}

func (r *Registry) GetMetric(name string) (dynamo.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListKernels() []string { return sortedKeys(r.kernels) }
func (r *Registry) ListMetrics() []string { return sortedKeys(r.metrics) }

// DefaultMetrics returns a fresh instance of every registered metric.
// Metrics keep running sums, so each chain needs its own set.
func (r *Registry) DefaultMetrics() []dynamo.Metric {
	names := r.ListMetrics()
	out := make([]dynamo.Metric, 0, len(names))
	for _, name := range names {
		out = append(out, r.metrics[name]())
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
