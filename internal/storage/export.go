package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/san-kum/bdsim/internal/dynamo"
)

type ExportData struct {
	Run     RunMetadata    `json:"run"`
	Samples []ExportSample `json:"samples"`
}

// ExportSample is a sample as written to JSON. NaN values become null.
type ExportSample struct {
	Iteration    int      `json:"iteration"`
	Energy       *float64 `json:"energy"`
	BiasedEnergy *float64 `json:"biased_energy"`
	Accepted     bool     `json:"accepted"`
	Distance     *float64 `json:"distance"`
	Displacement *float64 `json:"displacement"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func ExportJSON(w io.Writer, meta RunMetadata, samples []dynamo.Sample) error {
	data := ExportData{
		Run:     meta,
		Samples: make([]ExportSample, len(samples)),
	}
	data.Run.Metrics = cloneFinite(meta.Metrics)
	for i, s := range samples {
		data.Samples[i] = ExportSample{
			Iteration:    s.Iteration,
			Energy:       finite(s.Energy),
			BiasedEnergy: finite(s.BiasedEnergy),
			Accepted:     s.Accepted,
			Distance:     finite(s.Distance),
			Displacement: finite(s.Displacement),
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func cloneFinite(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if finite(v) != nil {
			out[k] = v
		}
	}
	return out
}

// ExportCSV writes one row per sample with a header line.
func ExportCSV(w io.Writer, samples []dynamo.Sample) error {
	cw := csv.NewWriter(w)
	header := []string{"iteration", "energy", "biased_energy", "accepted", "distance", "displacement"}
	if err := cw.Write(header); err != nil {
		return err
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, s := range samples {
		row := []string{
			strconv.Itoa(s.Iteration),
			format(s.Energy),
			format(s.BiasedEnergy),
			strconv.FormatBool(s.Accepted),
			format(s.Distance),
			format(s.Displacement),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
