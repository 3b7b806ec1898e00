// Package observability exports sampler telemetry as Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StepBuckets covers a single Step call, from a few microseconds for a
// handful of particles up to seconds for large systems.
var StepBuckets = prometheus.ExponentialBuckets(1e-6, 4, 12)

// Recorder implements dynamo.Recorder on top of Prometheus collectors. It is
// safe for concurrent use, so one Recorder can serve a whole ensemble.
type Recorder struct {
	// StepsTotal counts engine updates by scheme.
	StepsTotal *prometheus.CounterVec
	// StepDuration records the wall time of one Step call.
	StepDuration *prometheus.HistogramVec
	// MovesTotal counts Metropolis decisions by scheme and outcome.
	MovesTotal *prometheus.CounterVec
	// FoldOverflowsTotal counts random-walk folds that left the box.
	FoldOverflowsTotal *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bdsim_sampler_steps_total",
				Help: "Engine updates performed",
			},
			[]string{"scheme"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bdsim_sampler_step_duration_seconds",
				Help:    "Wall time of one Step call",
				Buckets: StepBuckets,
			},
			[]string{"scheme"},
		),
		MovesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bdsim_sampler_moves_total",
				Help: "Metropolis decisions",
			},
			[]string{"scheme", "accepted"},
		),
		FoldOverflowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bdsim_fold_overflows_total",
				Help: "Random-walk moves that stayed outside the periodic box after one fold",
			},
			[]string{"scheme"},
		),
	}
	if reg != nil {
		reg.MustRegister(r.StepsTotal, r.StepDuration, r.MovesTotal, r.FoldOverflowsTotal)
	}
	return r
}

func (r *Recorder) ObserveStep(scheme string, steps int, seconds float64) {
	r.StepsTotal.WithLabelValues(scheme).Add(float64(steps))
	r.StepDuration.WithLabelValues(scheme).Observe(seconds)
}

func (r *Recorder) ObserveDecision(scheme string, accepted bool) {
	r.MovesTotal.WithLabelValues(scheme, strconv.FormatBool(accepted)).Inc()
}

func (r *Recorder) ObserveFoldOverflows(scheme string, n int) {
	if n > 0 {
		r.FoldOverflowsTotal.WithLabelValues(scheme).Add(float64(n))
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
