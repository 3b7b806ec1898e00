package integrators

import (
	"math"

	"github.com/san-kum/bdsim/internal/dynamo"
)

// RandomWalk displaces every mobile particle by Gaussian noise of variance
// 2 kB T dt per axis, optionally folded into [-period, period].
type RandomWalk struct {
	base
	period        float64
	foldOverflows int
}

func NewRandomWalk(temperature, stepSize, period float64) *RandomWalk {
	return &RandomWalk{base: newBase(temperature, stepSize), period: period}
}

func (r *RandomWalk) Name() string        { return "random_walk" }
func (r *RandomWalk) Period() float64     { return r.period }
func (r *RandomWalk) SetPeriod(p float64) { r.period = p }
func (r *RandomWalk) FoldOverflows() int  { return r.foldOverflows }

// CheckPeriod warns when one step of noise is wider than the half period,
// which makes folding ambiguous.
func (r *RandomWalk) CheckPeriod() {
	if r.period <= 0 {
		return
	}
	if amp := r.NoiseAmplitude(); amp > r.period {
		r.logger.Warn("noise amplitude exceeds half period",
			"scheme", r.Name(), "noise_amplitude", amp, "period", r.period)
	}
}

func (r *RandomWalk) Update(p dynamo.Particles, noise dynamo.Noise) error {
	if err := r.validate(p, false); err != nil {
		return err
	}

	n := p.Len()
	r.ensureScratch(n)
	r.drawNoise(p.Masses, noise)

	amp := r.NoiseAmplitude()
	period := r.period
	dynamo.ParallelFor(n, minChunk, r.workers, func(start, end int) {
		for i := start; i < end; i++ {
			if p.Masses[i] == 0 {
				continue
			}
			for j := 0; j < 3; j++ {
				v := p.Positions[i][j] + amp*r.xi[i][j]
				if period > 0 {
					v = Fold(v, period)
				}
				r.xPrime[i][j] = v
			}
		}
	})

	if period > 0 {
		r.checkFolded(p.Masses)
	}

	r.commit(p)
	return nil
}

// checkFolded reports folded coordinates that still escape [-period, period].
// They are left as they are.
func (r *RandomWalk) checkFolded(masses []float64) {
	limit := r.period * (1 + 1e-12)
	for i, m := range masses {
		if m == 0 {
			continue
		}
		for j := 0; j < 3; j++ {
			v := r.xPrime[i][j]
			if math.Abs(v) <= limit {
				continue
			}
			r.foldOverflows++
			r.logger.Warn("folded coordinate outside period",
				"scheme", r.Name(), "particle", i, "axis", j, "value", v, "period", r.period)
		}
	}
}

// Fold subtracts the nearest even multiple of period from v.
func Fold(v, period float64) float64 {
	n := math.Round(v / (2 * period))
	return v - n*2*period
}
