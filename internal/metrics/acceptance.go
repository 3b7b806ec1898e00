package metrics

import "github.com/san-kum/bdsim/internal/dynamo"

// AcceptanceRate is the fraction of proposals the driver kept.
type AcceptanceRate struct {
	name     string
	accepted int
	samples  int
}

func NewAcceptanceRate() *AcceptanceRate {
	return &AcceptanceRate{name: "acceptance_rate"}
}

func (a *AcceptanceRate) Name() string { return a.name }

func (a *AcceptanceRate) Observe(s dynamo.Sample) {
	if s.Accepted {
		a.accepted++
	}
	a.samples++
}

func (a *AcceptanceRate) Value() float64 {
	if a.samples == 0 {
		return 0
	}
	return float64(a.accepted) / float64(a.samples)
}

func (a *AcceptanceRate) Reset() {
	a.accepted = 0
	a.samples = 0
}

// MeanSquaredDisplacement averages |x' - x|^2 over all proposals.
type MeanSquaredDisplacement struct {
	name    string
	sum     float64
	samples int
}

func NewMeanSquaredDisplacement() *MeanSquaredDisplacement {
	return &MeanSquaredDisplacement{name: "mean_squared_displacement"}
}

func (m *MeanSquaredDisplacement) Name() string { return m.name }

func (m *MeanSquaredDisplacement) Observe(s dynamo.Sample) {
	m.sum += s.Displacement
	m.samples++
}

func (m *MeanSquaredDisplacement) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanSquaredDisplacement) Reset() {
	m.sum = 0
	m.samples = 0
}

// MeanDistance averages the distance of the reaction coordinate from the
// macroscopic target.
type MeanDistance struct {
	name    string
	sum     float64
	samples int
}

func NewMeanDistance() *MeanDistance {
	return &MeanDistance{name: "mean_distance"}
}

func (m *MeanDistance) Name() string { return m.name }

func (m *MeanDistance) Observe(s dynamo.Sample) {
	m.sum += s.Distance
	m.samples++
}

func (m *MeanDistance) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanDistance) Reset() {
	m.sum = 0
	m.samples = 0
}

// Default returns the metrics every run records.
func Default() []dynamo.Metric {
	return []dynamo.Metric{
		NewAcceptanceRate(),
		NewMeanEnergy(),
		NewEnergyDrift(),
		NewMeanSquaredDisplacement(),
		NewMeanDistance(),
	}
}
