package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/bdsim/internal/config"
	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/mcmc"
	"github.com/san-kum/bdsim/internal/physics"
	"github.com/san-kum/bdsim/internal/reaction"
	"github.com/san-kum/bdsim/internal/sampler"
	"github.com/san-kum/bdsim/internal/sim"
)

// Experiment turns a validated configuration into runnable chains.
type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	logger    *slog.Logger
	recorder  dynamo.Recorder
	observers []dynamo.Observer
	baseSeed  int64
}

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

// WithRecorder forwards sampler telemetry. The recorder is shared by every
// chain of an ensemble.
func WithRecorder(r dynamo.Recorder) Option {
	return func(e *Experiment) { e.recorder = r }
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.registry = r }
}

func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{
		cfg:      cfg.Clone(),
		registry: NewRegistry(),
		logger:   slog.Default(),
		baseSeed: cfg.Sampler.Seed,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.baseSeed == 0 {
		e.baseSeed = sampler.TimeSeed()
	}
	return e, nil
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// BaseSeed is the seed of chain 0. Chain i uses BaseSeed()+i.
func (e *Experiment) BaseSeed() int64 { return e.baseSeed }

// AddObserver attaches o to every chain built afterwards. With more than
// one chain, o is called from several goroutines.
func (e *Experiment) AddObserver(o dynamo.Observer) { e.observers = append(e.observers, o) }

// Chain is one host, its sampler and the driver that runs them.
type Chain struct {
	Index   int
	Seed    int64
	Host    *sim.Context
	Sampler sampler.Sampler
	Driver  *mcmc.Driver
}

type targetSetter interface {
	SetMacroscopicTarget(z []dynamo.Vec3) error
}

// BuildChain assembles chain i from scratch. Chains share nothing but the
// recorder and observers.
func (e *Experiment) BuildChain(i int) (*Chain, error) {
	ff, err := physics.New(e.cfg.ForceField)
	if err != nil {
		return nil, fmt.Errorf("force field: %w", err)
	}
	host, err := sim.NewContext(e.cfg.System(), ff, e.cfg.Positions())
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	rc, err := reaction.New(e.cfg.Reaction)
	if err != nil {
		return nil, fmt.Errorf("reaction: %w", err)
	}
	kernel, err := e.registry.GetKernel(e.cfg.Kernel.Type, e.cfg.Kernel.Workers)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("chain", i)
	params := e.cfg.Sampler
	params.Seed = e.baseSeed + int64(i)

	opts := []sampler.Option{sampler.WithKernel(kernel), sampler.WithLogger(logger)}
	if e.recorder != nil {
		opts = append(opts, sampler.WithRecorder(e.recorder))
	}
	s, err := sampler.New(params, rc, opts...)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	if z := e.cfg.MacroscopicTarget(); z != nil {
		if ts, ok := s.(targetSetter); ok {
			if err := ts.SetMacroscopicTarget(z); err != nil {
				return nil, fmt.Errorf("target: %w", err)
			}
		} else {
			logger.Warn("target ignored by unbiased scheme", "scheme", params.Scheme)
		}
	}

	driverOpts := []mcmc.Option{
		mcmc.WithIncludeBias(e.cfg.Run.IncludeBias),
		mcmc.WithLogger(logger),
	}
	if seed := e.cfg.Run.AcceptanceSeed; seed != 0 {
		driverOpts = append(driverOpts, mcmc.WithAcceptanceSeed(seed+int64(i)))
	}
	d := mcmc.New(s, host, driverOpts...)
	for _, m := range e.registry.DefaultMetrics() {
		d.AddMetric(m)
	}
	for _, o := range e.observers {
		d.AddObserver(o)
	}

	return &Chain{Index: i, Seed: params.Seed, Host: host, Sampler: s, Driver: d}, nil
}

// Run builds and runs chain 0. The sampler's kernel is released afterwards.
func (e *Experiment) Run(ctx context.Context) (*mcmc.Result, error) {
	c, err := e.BuildChain(0)
	if err != nil {
		return nil, err
	}
	defer c.Sampler.Cleanup()
	return c.Driver.Run(ctx, e.cfg.Run.Iterations, e.cfg.Run.StepsPerIteration)
}

// RunEnsemble runs cfg.Run.Chains independent chains concurrently. The first
// failure cancels the others; results are indexed by chain.
func (e *Experiment) RunEnsemble(ctx context.Context) ([]*mcmc.Result, error) {
	n := e.cfg.Run.Chains
	results := make([]*mcmc.Result, n)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			c, err := e.BuildChain(i)
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			defer c.Sampler.Cleanup()

			res, err := c.Driver.Run(ctx, e.cfg.Run.Iterations, e.cfg.Run.StepsPerIteration)
			results[i] = res
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	e.logger.Info("ensemble finished", "chains", n, "base_seed", e.baseSeed)
	return results, nil
}
