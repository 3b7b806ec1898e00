package analysis

import (
	"math"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// windowFactor is c in Sokal's self-consistent window M >= c·tau.
const windowFactor = 5.0

func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// Variance is the unbiased sample variance.
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	m := Mean(data)
	sum := 0.0
	for _, v := range data {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(data)-1)
}

// IntegratedAutocorrelationTime estimates tau = 1 + 2·sum(acf[1..M]) with
// the smallest window M satisfying M >= 5·tau. Uncorrelated data gives
// tau close to 1. Constant or empty data gives 1.
func IntegratedAutocorrelationTime(data []float64) float64 {
	acf := Autocorrelation(data)
	if len(acf) < 2 || acf[0] == 0 {
		return 1
	}
	tau := 1.0
	for m := 1; m < len(acf); m++ {
		tau += 2 * acf[m]
		if float64(m) >= windowFactor*tau {
			break
		}
	}
	return math.Max(tau, 1)
}

// EffectiveSampleSize is len(data)/tau.
func EffectiveSampleSize(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return float64(len(data)) / IntegratedAutocorrelationTime(data)
}

// RunningAcceptance is the acceptance rate over a trailing window of
// decisions. A window <= 0 uses all decisions so far.
func RunningAcceptance(accepted []bool, window int) []float64 {
	out := make([]float64, len(accepted))
	count := 0
	for i, ok := range accepted {
		if ok {
			count++
		}
		size := i + 1
		if window > 0 && size > window {
			if accepted[i-window] {
				count--
			}
			size = window
		}
		out[i] = float64(count) / float64(size)
	}
	return out
}

// Histogram bins finite values into n equal-width bins over [min, max].
// It returns the bin counts and the n+1 edges.
func Histogram(data []float64, n int) ([]int, []float64) {
	if n < 1 {
		return nil, nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	counts := make([]int, n)
	if lo > hi {
		return counts, nil
	}
	if lo == hi {
		hi = lo + 1
	}
	width := (hi - lo) / float64(n)
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		bin := int((v - lo) / width)
		if bin >= n {
			bin = n - 1
		}
		counts[bin]++
	}
	return counts, edges
}

// Summary condenses one chain.
type Summary struct {
	Samples             int     `json:"samples"`
	AcceptanceRate      float64 `json:"acceptance_rate"`
	MeanEnergy          float64 `json:"mean_energy"`
	StdEnergy           float64 `json:"std_energy"`
	AutocorrelationTime float64 `json:"autocorrelation_time"`
	EffectiveSamples    float64 `json:"effective_samples"`
	MeanDistance        float64 `json:"mean_distance"`
}

// Summarize computes energy statistics over the chain. NaN distances are
// left out of the mean.
func Summarize(samples []dynamo.Sample) Summary {
	s := Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return s
	}

	energies := make([]float64, len(samples))
	accepted := 0
	distSum, distN := 0.0, 0
	for i, smp := range samples {
		energies[i] = smp.Energy
		if smp.Accepted {
			accepted++
		}
		if !math.IsNaN(smp.Distance) {
			distSum += smp.Distance
			distN++
		}
	}

	s.AcceptanceRate = float64(accepted) / float64(len(samples))
	s.MeanEnergy = Mean(energies)
	s.StdEnergy = math.Sqrt(Variance(energies))
	s.AutocorrelationTime = IntegratedAutocorrelationTime(energies)
	s.EffectiveSamples = float64(len(samples)) / s.AutocorrelationTime
	if distN > 0 {
		s.MeanDistance = distSum / float64(distN)
	}
	return s
}
