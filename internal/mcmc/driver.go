package mcmc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/sampler"
)

// Result is the record of one chain.
type Result struct {
	Samples        []dynamo.Sample
	Energies       []float64
	Accepted       []bool
	Distances      []float64
	AcceptanceRate float64
	Metrics        map[string]float64
	Iterations     int
}

// Driver runs a Metropolis chain: propose with the sampler, accept with
// probability min(1, exp(-dE/kT)), and report the decision back.
type Driver struct {
	sampler     sampler.Sampler
	host        dynamo.Context
	rng         *rand.Rand
	includeBias bool
	logger      *slog.Logger
	metrics     []dynamo.Metric
	observers   []dynamo.Observer
}

type Option func(*Driver)

// WithAcceptanceSeed seeds the acceptance draws. Zero seeds from the clock.
func WithAcceptanceSeed(seed int64) Option {
	return func(d *Driver) {
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		d.rng = rand.New(rand.NewSource(seed))
	}
}

// WithIncludeBias adds the bias energy to the potential energy in the
// acceptance ratio. Off by default: the bias energy is then only reported.
func WithIncludeBias(include bool) Option {
	return func(d *Driver) { d.includeBias = include }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func New(s sampler.Sampler, host dynamo.Context, opts ...Option) *Driver {
	d := &Driver{
		sampler: s,
		host:    host,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return d
}

func (d *Driver) AddMetric(m dynamo.Metric)     { d.metrics = append(d.metrics, m) }
func (d *Driver) AddObserver(o dynamo.Observer) { d.observers = append(d.observers, o) }

func (d *Driver) Sampler() sampler.Sampler { return d.sampler }

// Run binds the sampler, sets it up and performs iterations Metropolis
// moves of stepsPerIteration engine steps each. Cancellation is checked
// between iterations; the partial result is returned with ctx.Err().
func (d *Driver) Run(ctx context.Context, iterations, stepsPerIteration int) (*Result, error) {
	result := &Result{
		Samples:   make([]dynamo.Sample, 0, max(iterations, 0)),
		Energies:  make([]float64, 0, max(iterations, 0)),
		Accepted:  make([]bool, 0, max(iterations, 0)),
		Distances: make([]float64, 0, max(iterations, 0)),
		Metrics:   make(map[string]float64),
	}
	err := d.RunWithCallback(ctx, iterations, stepsPerIteration, func(s dynamo.Sample) bool {
		result.Samples = append(result.Samples, s)
		result.Energies = append(result.Energies, s.Energy)
		result.Accepted = append(result.Accepted, s.Accepted)
		result.Distances = append(result.Distances, s.Distance)
		return true
	})

	accepted := 0
	for _, ok := range result.Accepted {
		if ok {
			accepted++
		}
	}
	result.Iterations = len(result.Samples)
	if result.Iterations > 0 {
		result.AcceptanceRate = float64(accepted) / float64(result.Iterations)
	}
	for _, m := range d.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	if err != nil {
		return result, err
	}
	d.logger.Info("chain finished",
		"scheme", d.sampler.Scheme(),
		"iterations", result.Iterations,
		"acceptance_rate", result.AcceptanceRate)
	return result, nil
}

// RunWithCallback is Run without the bookkeeping. fn sees every sample and
// stops the chain by returning false.
func (d *Driver) RunWithCallback(ctx context.Context, iterations, stepsPerIteration int, fn func(dynamo.Sample) bool) error {
	if iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	if stepsPerIteration < 1 {
		return fmt.Errorf("steps per iteration must be positive, got %d", stepsPerIteration)
	}

	for _, m := range d.metrics {
		m.Reset()
	}
	if err := d.sampler.Bind(d.host); err != nil {
		return err
	}
	if err := d.sampler.SetupSampler(); err != nil {
		return err
	}

	bias, err := d.biasedEnergy()
	if err != nil {
		return err
	}
	current := d.total(d.host.Energy(), bias)

	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		before := dynamo.CloneVecs(d.host.Positions())
		if err := d.sampler.Step(stepsPerIteration); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		displacement := dynamo.SquaredDistance(d.host.Positions(), before)

		proposedBias, err := d.biasedEnergy()
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		proposed := d.total(d.host.Energy(), proposedBias)

		ok := d.accept(proposed - current)
		if err := d.sampler.Accepted(ok); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		if ok {
			current = proposed
			bias = proposedBias
		}

		sample := dynamo.Sample{
			Iteration:    i,
			Energy:       d.host.Energy(),
			BiasedEnergy: bias,
			Accepted:     ok,
			Distance:     d.distance(),
			Displacement: displacement,
		}
		for _, m := range d.metrics {
			m.Observe(sample)
		}
		for _, obs := range d.observers {
			obs.OnSample(sample)
		}
		if !fn(sample) {
			return nil
		}
	}
	return nil
}

func (d *Driver) total(energy, bias float64) float64 {
	if d.includeBias {
		return energy + bias
	}
	return energy
}

// accept is the Metropolis criterion. A NaN energy change is always rejected.
func (d *Driver) accept(dE float64) bool {
	if math.IsNaN(dE) {
		return false
	}
	if dE <= 0 {
		return true
	}
	kT := dynamo.Boltz * d.sampler.Temperature()
	if kT <= 0 {
		return false
	}
	return d.rng.Float64() < math.Exp(-dE/kT)
}

func (d *Driver) biasedEnergy() (float64, error) {
	b, ok := d.sampler.(sampler.Biased)
	if !ok {
		return 0, nil
	}
	return dynamo.BiasedEnergy(b.ReactionCoordinate(), d.host.Positions(), b.MacroscopicTarget())
}

// distance is |value(x) - z| for biased samplers and 0 otherwise.
func (d *Driver) distance() float64 {
	b, ok := d.sampler.(sampler.Biased)
	if !ok || b.ReactionCoordinate() == nil {
		return 0
	}
	x := d.host.Positions()
	value := b.ReactionCoordinate().Value(x)
	z := b.MacroscopicTarget()
	if len(value) != len(z) {
		return math.NaN()
	}
	return math.Sqrt(dynamo.SquaredDistance(value, z))
}
