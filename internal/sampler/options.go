package sampler

import (
	"log/slog"
	"time"

	"github.com/san-kum/bdsim/internal/compute"
	"github.com/san-kum/bdsim/internal/dynamo"
)

// SeedSource supplies a seed when none was configured.
type SeedSource func() int64

// TimeSeed seeds from the wall clock. Runs seeded this way cannot be repeated.
func TimeSeed() int64 { return time.Now().UnixNano() }

// reseeder is implemented by noise streams that can restart from a seed.
type reseeder interface {
	Reseed(seed int64)
}

type options struct {
	kernel     compute.Factory
	noise      dynamo.Noise
	seed       int64
	seedSource SeedSource
	logger     *slog.Logger
	recorder   dynamo.Recorder
}

type Option func(*options)

// WithKernel selects how the execution unit is built at Bind.
func WithKernel(f compute.Factory) Option {
	return func(o *options) { o.kernel = f }
}

// WithNoise replaces the Gaussian noise stream. Streams without a Reseed
// method are used as given and ignore the seed.
func WithNoise(n dynamo.Noise) Option {
	return func(o *options) { o.noise = n }
}

// WithSeed fixes the seed. Zero means "ask the seed source".
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

func WithSeedSource(src SeedSource) Option {
	return func(o *options) { o.seedSource = src }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithRecorder(r dynamo.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func buildOptions(opts []Option) options {
	o := options{
		kernel:     compute.ReferenceFactory,
		seedSource: TimeSeed,
		logger:     slog.Default(),
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.noise == nil {
		o.noise = compute.NewGaussianNoise(o.seed)
	}
	return o
}

type nopRecorder struct{}

func (nopRecorder) ObserveStep(string, int, float64) {}
func (nopRecorder) ObserveDecision(string, bool)     {}
func (nopRecorder) ObserveFoldOverflows(string, int) {}
