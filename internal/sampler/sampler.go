package sampler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/bdsim/internal/compute"
	"github.com/san-kum/bdsim/internal/dynamo"
)

// Sampler is what a Markov-chain driver needs from any of the three front-ends.
type Sampler interface {
	Scheme() string
	Bind(host dynamo.Context) error
	SetupSampler() error
	Step(n int) error
	Accepted(ok bool) error
	PreviousState() (dynamo.Snapshot, error)
	KineticEnergy() (float64, error)
	Cleanup()

	Temperature() float64
	StepSize() float64
	Seed() int64
	Params() Params
}

// Biased is implemented by the reconstruction front-ends.
type Biased interface {
	Sampler
	Lambda() float64
	ReactionCoordinate() dynamo.ReactionCoordinate
	MacroscopicTarget() []dynamo.Vec3
}

// engine is the part of an integrator the front-end drives directly.
type engine interface {
	dynamo.Engine
	Temperature() float64
	SetTemperature(t float64)
	SetStepSize(dt float64)
	TimeStep() int
	SetLogger(l *slog.Logger)
}

// plan is the order of host calls around the engine updates of one Step.
type plan struct {
	// prelude recomputes forces and energy before the first update.
	prelude bool
	// perStep refreshes the host once up front and recomputes forces and
	// energy after every update. Without it the host is refreshed before
	// each update and only the energy is recomputed, once, at the end.
	perStep bool
}

type base struct {
	engine engine
	plan   plan
	mask   dynamo.StateMask
	// reseedOnSetup restarts the noise stream in every SetupSampler.
	reseedOnSetup bool

	newKernel   compute.Factory
	kernel      dynamo.Kernel
	noise       dynamo.Noise
	seed        int64
	seedSource  SeedSource
	forceGroups int

	logger   *slog.Logger
	recorder dynamo.Recorder

	st state
}

func newBase(e engine, p plan, mask dynamo.StateMask, reseedOnSetup bool, opts []Option) base {
	o := buildOptions(opts)
	e.SetLogger(o.logger)
	return base{
		engine:        e,
		plan:          p,
		mask:          mask,
		reseedOnSetup: reseedOnSetup,
		newKernel:     o.kernel,
		noise:         o.noise,
		seed:          o.seed,
		seedSource:    o.seedSource,
		forceGroups:   dynamo.AllForceGroups,
		logger:        o.logger.With("scheme", e.Name()),
		recorder:      o.recorder,
	}
}

func (b *base) Scheme() string           { return b.engine.Name() }
func (b *base) Temperature() float64     { return b.engine.Temperature() }
func (b *base) SetTemperature(t float64) { b.engine.SetTemperature(t) }
func (b *base) StepSize() float64        { return b.engine.StepSize() }
func (b *base) SetStepSize(dt float64)   { b.engine.SetStepSize(dt) }
func (b *base) Seed() int64              { return b.seed }
func (b *base) TimeStep() int            { return b.engine.TimeStep() }
func (b *base) Kernel() dynamo.Kernel    { return b.kernel }

// SetSeed restarts the noise stream of a bound sampler from seed right
// away. An unbound sampler uses it at Bind.
func (b *base) SetSeed(seed int64) {
	b.seed = seed
	if b.Bound() {
		b.reseed()
	}
}

// IntegrationForceGroups is the force-group bitmask used for recomputes.
func (b *base) IntegrationForceGroups() int     { return b.forceGroups }
func (b *base) SetIntegrationForceGroups(g int) { b.forceGroups = g }

// Bound reports whether the sampler is attached to a host context.
func (b *base) Bound() bool { return b.st.phase != phaseUnbound }

// Ready reports whether SetupSampler has captured a previous state.
func (b *base) Ready() bool { return b.st.phase == phaseReady }

func (b *base) Bind(host dynamo.Context) error {
	next, eff, err := b.st.bind(host)
	if err != nil {
		return err
	}
	if eff == effectInitKernel {
		k := b.newKernel(b.engine, b.noise)
		if err := k.Initialize(host.NumParticles(), host.Masses()); err != nil {
			return fmt.Errorf("initialize kernel: %w", err)
		}
		b.kernel = k
		b.reseed()
		b.logger.Debug("sampler bound", "particles", host.NumParticles())
	}
	b.st = next
	return nil
}

func (b *base) reseed() {
	r, ok := b.noise.(reseeder)
	if !ok {
		return
	}
	seed := b.seed
	if seed == 0 {
		seed = b.seedSource()
		b.logger.Debug("seeding noise from seed source", "seed", seed)
	}
	r.Reseed(seed)
}

func (b *base) SetupSampler() error {
	if err := b.st.requireBound(); err != nil {
		return err
	}
	host := b.st.host
	host.UpdateState()
	if _, err := host.CalcForcesAndEnergy(true, true, b.forceGroups); err != nil {
		return fmt.Errorf("setup %s: %w", b.Scheme(), err)
	}

	next, err := b.st.ready(host.State(b.mask))
	if err != nil {
		return err
	}
	if b.reseedOnSetup {
		b.reseed()
	}
	b.st = next
	return nil
}

// Step runs n engine updates. On error the host is put back where it was
// before the call.
func (b *base) Step(n int) error {
	if err := b.st.requireReady(); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("step count %d: %w", n, dynamo.ErrParameterBounds)
	}

	host := b.st.host
	before := host.State(dynamo.Positions | dynamo.Velocities | dynamo.Forces | dynamo.Energy)
	start := time.Now()
	if err := b.run(host, n); err != nil {
		if rerr := host.SetState(before); rerr != nil {
			b.logger.Error("restore after failed step", "error", rerr)
		}
		return err
	}
	b.recorder.ObserveStep(b.Scheme(), n, time.Since(start).Seconds())
	return nil
}

func (b *base) run(host dynamo.Context, n int) error {
	if b.plan.perStep {
		host.UpdateState()
	}
	if b.plan.prelude {
		if _, err := host.CalcForcesAndEnergy(true, true, b.forceGroups); err != nil {
			return &dynamo.StepError{Scheme: b.Scheme(), Step: 0, Wrapped: err}
		}
	}

	for i := 0; i < n; i++ {
		if !b.plan.perStep {
			host.UpdateState()
		}
		if err := b.kernel.Execute(host); err != nil {
			return &dynamo.StepError{Scheme: b.Scheme(), Step: i, Wrapped: err}
		}
		if !b.plan.perStep {
			continue
		}
		host.UpdateState()
		if _, err := host.CalcForcesAndEnergy(true, true, b.forceGroups); err != nil {
			return &dynamo.StepError{Scheme: b.Scheme(), Step: i, Wrapped: err}
		}
	}

	if !b.plan.perStep {
		host.UpdateState()
		if _, err := host.CalcForcesAndEnergy(false, true, b.forceGroups); err != nil {
			return &dynamo.StepError{Scheme: b.Scheme(), Step: n, Wrapped: err}
		}
	}
	return nil
}

// Accepted keeps the current host state (true) or rolls the host back to the
// previous state (false).
func (b *base) Accepted(ok bool) error {
	if err := b.st.requireReady(); err != nil {
		return err
	}
	host := b.st.host

	if ok {
		next, err := b.st.ready(host.State(b.mask))
		if err != nil {
			return err
		}
		b.st = next
	} else {
		if err := host.SetState(b.st.snapshot); err != nil {
			return fmt.Errorf("restore previous state: %w", err)
		}
		host.UpdateState()
	}
	b.recorder.ObserveDecision(b.Scheme(), ok)
	return nil
}

// PreviousState returns a copy of the last accepted state.
func (b *base) PreviousState() (dynamo.Snapshot, error) {
	if err := b.st.requireReady(); err != nil {
		return dynamo.Snapshot{}, err
	}
	return b.st.snapshot.Clone(), nil
}

func (b *base) KineticEnergy() (float64, error) {
	if err := b.st.requireBound(); err != nil {
		return 0, err
	}
	return b.kernel.ComputeKineticEnergy(b.st.host), nil
}

// Cleanup releases the kernel and detaches from the host. The sampler can be
// bound again afterwards.
func (b *base) Cleanup() {
	next, eff := b.st.release()
	if eff == effectReleaseKernel && b.kernel != nil {
		b.kernel.Cleanup()
		b.kernel = nil
	}
	b.st = next
}

func (b *base) numParticles() int {
	if b.st.phase == phaseUnbound {
		return -1
	}
	return b.st.host.NumParticles()
}
