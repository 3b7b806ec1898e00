package compute

import "math/rand"

// GaussianNoise draws standard normal deviates from a seeded source.
type GaussianNoise struct {
	rng  *rand.Rand
	seed int64
}

func NewGaussianNoise(seed int64) *GaussianNoise {
	return &GaussianNoise{rng: rand.New(rand.NewSource(seed)), seed: seed}
}

func (g *GaussianNoise) Normal() float64 { return g.rng.NormFloat64() }
func (g *GaussianNoise) Seed() int64     { return g.seed }

// Reseed restarts the stream. Equal seeds give equal streams.
func (g *GaussianNoise) Reseed(seed int64) {
	g.seed = seed
	g.rng.Seed(seed)
}

// ZeroNoise always returns 0, turning every scheme into its deterministic drift.
type ZeroNoise struct{}

func (ZeroNoise) Normal() float64 { return 0 }
func (ZeroNoise) Reseed(int64)    {}
