package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/san-kum/bdsim/internal/dynamo"
)

var _ dynamo.Recorder = (*Recorder)(nil)

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecorderRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveStep("random_walk", 10, 0.001)
	r.ObserveDecision("random_walk", true)
	r.ObserveFoldOverflows("random_walk", 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}
	expected := map[string]bool{
		"bdsim_sampler_steps_total":           false,
		"bdsim_sampler_step_duration_seconds": false,
		"bdsim_sampler_moves_total":           false,
		"bdsim_fold_overflows_total":          false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in registry", name)
		}
	}
}

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder(nil)

	r.ObserveStep("indirect_reconstruction", 5, 0.002)
	r.ObserveStep("indirect_reconstruction", 3, 0.001)
	r.ObserveDecision("indirect_reconstruction", true)
	r.ObserveDecision("indirect_reconstruction", false)
	r.ObserveDecision("indirect_reconstruction", false)
	r.ObserveFoldOverflows("random_walk", 0)
	r.ObserveFoldOverflows("random_walk", 4)

	if got := counterValue(t, r.StepsTotal, "indirect_reconstruction"); got != 8 {
		t.Errorf("steps = %v, want 8", got)
	}
	if got := histogramCount(t, r.StepDuration, "indirect_reconstruction"); got != 2 {
		t.Errorf("step observations = %d, want 2", got)
	}
	if got := counterValue(t, r.MovesTotal, "indirect_reconstruction", "false"); got != 2 {
		t.Errorf("rejected moves = %v, want 2", got)
	}
	if got := counterValue(t, r.MovesTotal, "indirect_reconstruction", "true"); got != 1 {
		t.Errorf("accepted moves = %v, want 1", got)
	}
	if got := counterValue(t, r.FoldOverflowsTotal, "random_walk"); got != 4 {
		t.Errorf("fold overflows = %v, want 4", got)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.ObserveDecision("damped_reconstruction", true)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `bdsim_sampler_moves_total{accepted="true",scheme="damped_reconstruction"} 1`) {
		t.Errorf("unexpected body:\n%s", rec.Body.String())
	}
}
