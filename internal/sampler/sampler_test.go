package sampler

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/bdsim/internal/compute"
	"github.com/san-kum/bdsim/internal/dynamo"
)

func TestGuardsBeforeSetup(t *testing.T) {
	for name, s := range allSchemes(7) {
		t.Run(name, func(t *testing.T) {
			if err := s.Step(1); !errors.Is(err, dynamo.ErrNotBound) {
				t.Errorf("Step before Bind: expected ErrNotBound, got %v", err)
			}
			if err := s.SetupSampler(); !errors.Is(err, dynamo.ErrNotBound) {
				t.Errorf("SetupSampler before Bind: expected ErrNotBound, got %v", err)
			}

			host := newHost([]float64{1, 1, 0})
			before := dynamo.CloneVecs(host.Positions())
			if err := s.Bind(host); err != nil {
				t.Fatal(err)
			}
			if err := s.Step(1); !errors.Is(err, dynamo.ErrNotReady) {
				t.Errorf("Step before SetupSampler: expected ErrNotReady, got %v", err)
			}
			if err := s.Accepted(true); !errors.Is(err, dynamo.ErrNotReady) {
				t.Errorf("Accepted before SetupSampler: expected ErrNotReady, got %v", err)
			}
			if _, err := s.PreviousState(); !errors.Is(err, dynamo.ErrNotReady) {
				t.Errorf("PreviousState before SetupSampler: expected ErrNotReady, got %v", err)
			}
			if !equalVecs(host.Positions(), before) {
				t.Error("guard failure mutated host positions")
			}
			if host.Updates() != 0 {
				t.Errorf("guard failure refreshed host %d times", host.Updates())
			}
		})
	}
}

func TestBindDifferentContext(t *testing.T) {
	for name, s := range allSchemes(7) {
		t.Run(name, func(t *testing.T) {
			a := newHost([]float64{1, 1})
			b := newHost([]float64{1, 1})
			if err := s.Bind(a); err != nil {
				t.Fatal(err)
			}
			if err := s.SetupSampler(); err != nil {
				t.Fatal(err)
			}
			if err := s.Bind(a); err != nil {
				t.Errorf("rebinding same context: %v", err)
			}
			if err := s.Bind(b); !errors.Is(err, dynamo.ErrAlreadyBound) {
				t.Errorf("expected ErrAlreadyBound, got %v", err)
			}
			if _, err := s.PreviousState(); err != nil {
				t.Errorf("failed bind dropped previous state: %v", err)
			}
		})
	}
}

func TestRejectRestoresPreviousState(t *testing.T) {
	for name, s := range allSchemes(11) {
		t.Run(name, func(t *testing.T) {
			host := newHost([]float64{1, 2, 0, 1.5})
			if err := s.Bind(host); err != nil {
				t.Fatal(err)
			}
			if err := s.SetupSampler(); err != nil {
				t.Fatal(err)
			}
			prev, err := s.PreviousState()
			if err != nil {
				t.Fatal(err)
			}

			for i := 0; i < 3; i++ {
				if err := s.Step(5); err != nil {
					t.Fatal(err)
				}
			}
			if equalVecs(host.Positions(), prev.Positions) {
				t.Fatal("steps did not move anything")
			}

			if err := s.Accepted(false); err != nil {
				t.Fatal(err)
			}
			if !equalVecs(host.Positions(), prev.Positions) {
				t.Error("positions differ from previous state after rejection")
			}
			if host.Energy() != prev.Energy {
				t.Errorf("expected energy %v, got %v", prev.Energy, host.Energy())
			}
			if prev.Mask.Has(dynamo.Forces) && !equalVecs(host.Forces(), prev.Forces) {
				t.Error("forces differ from previous state after rejection")
			}
		})
	}
}

func TestAcceptRefreshesPreviousState(t *testing.T) {
	for name, s := range allSchemes(3) {
		t.Run(name, func(t *testing.T) {
			host := newHost([]float64{1, 1, 1})
			if err := s.Bind(host); err != nil {
				t.Fatal(err)
			}
			if err := s.SetupSampler(); err != nil {
				t.Fatal(err)
			}
			if err := s.Step(4); err != nil {
				t.Fatal(err)
			}
			if err := s.Accepted(true); err != nil {
				t.Fatal(err)
			}
			accepted := dynamo.CloneVecs(host.Positions())

			if err := s.Step(4); err != nil {
				t.Fatal(err)
			}
			if err := s.Accepted(false); err != nil {
				t.Fatal(err)
			}
			if !equalVecs(host.Positions(), accepted) {
				t.Error("rejection did not return to the last accepted state")
			}

			prev, _ := s.PreviousState()
			prev.Positions[0][0] = math.Inf(1)
			again, _ := s.PreviousState()
			if math.IsInf(again.Positions[0][0], 1) {
				t.Error("PreviousState returned an aliased snapshot")
			}
		})
	}
}

func TestSnapshotMask(t *testing.T) {
	tests := []struct {
		name string
		s    Sampler
		want dynamo.StateMask
	}{
		{"random_walk", NewRandomWalk(300, 0.002, 0, WithSeed(1)), dynamo.Positions | dynamo.Energy},
		{"indirect_reconstruction", NewIndirectReconstruction(300, 0.002, 1, identity{}, WithSeed(1)), dynamo.Positions | dynamo.Forces | dynamo.Energy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Bind(newHost([]float64{1})); err != nil {
				t.Fatal(err)
			}
			if err := tt.s.SetupSampler(); err != nil {
				t.Fatal(err)
			}
			prev, _ := tt.s.PreviousState()
			if prev.Mask != tt.want {
				t.Errorf("expected mask %b, got %b", tt.want, prev.Mask)
			}
		})
	}
}

func TestHostCallSequence(t *testing.T) {
	tests := []struct {
		name        string
		s           Sampler
		updates     int
		forceCalcs  int
		energyCalcs int
	}{
		{"random_walk", NewRandomWalk(300, 0.002, 0, WithSeed(1)), 4, 0, 1},
		{"indirect_reconstruction", NewIndirectReconstruction(300, 0.002, 1, identity{}, WithSeed(1)), 4, 3, 0},
		{"damped_reconstruction", mustDamped(t, 1, 1), 4, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &countingHost{Context: newHost([]float64{1, 1})}
			if err := tt.s.Bind(host); err != nil {
				t.Fatal(err)
			}
			if err := tt.s.SetupSampler(); err != nil {
				t.Fatal(err)
			}
			if host.forceCalcs != 1 || host.energyCalcs != 0 {
				t.Errorf("expected setup to recompute forces once, got %d force and %d energy-only recomputes",
					host.forceCalcs, host.energyCalcs)
			}
			host.reset()

			if err := tt.s.Step(3); err != nil {
				t.Fatal(err)
			}
			if host.updates != tt.updates {
				t.Errorf("expected %d state updates, got %d", tt.updates, host.updates)
			}
			if host.forceCalcs != tt.forceCalcs {
				t.Errorf("expected %d force recomputes, got %d", tt.forceCalcs, host.forceCalcs)
			}
			if host.energyCalcs != tt.energyCalcs {
				t.Errorf("expected %d energy-only recomputes, got %d", tt.energyCalcs, host.energyCalcs)
			}
		})
	}
}

func mustDamped(t *testing.T, lambda, gamma float64) *DampedReconstruction {
	t.Helper()
	s, err := NewDampedReconstruction(300, 0.002, lambda, gamma, identity{}, WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStepIsAtomicOnError(t *testing.T) {
	t.Run("dimension mismatch", func(t *testing.T) {
		s := NewIndirectReconstruction(300, 0.002, 1, truncated{}, WithSeed(5))
		host := newHost([]float64{1, 1, 1})
		if err := s.Bind(host); err != nil {
			t.Fatal(err)
		}
		if err := s.SetupSampler(); err != nil {
			t.Fatal(err)
		}
		before := dynamo.CloneVecs(host.Positions())

		err := s.Step(3)
		if !errors.Is(err, dynamo.ErrDimensionMismatch) {
			t.Fatalf("expected ErrDimensionMismatch, got %v", err)
		}
		var stepErr *dynamo.StepError
		if !errors.As(err, &stepErr) || stepErr.Step != 0 {
			t.Errorf("expected StepError at step 0, got %v", err)
		}
		if !equalVecs(host.Positions(), before) {
			t.Error("failed step left positions modified")
		}
	})

	t.Run("failure after partial progress", func(t *testing.T) {
		s := NewIndirectReconstruction(300, 0.002, 1, identity{}, WithSeed(5))
		host := &countingHost{Context: newHost([]float64{1, 1})}
		if err := s.Bind(host); err != nil {
			t.Fatal(err)
		}
		if err := s.SetupSampler(); err != nil {
			t.Fatal(err)
		}
		before := dynamo.CloneVecs(host.Positions())
		energy := host.Energy()
		host.failCalcFrom = 3

		if err := s.Step(5); !errors.Is(err, dynamo.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		if !equalVecs(host.Positions(), before) {
			t.Error("positions not restored after failed step")
		}
		if host.Energy() != energy {
			t.Errorf("expected energy %v, got %v", energy, host.Energy())
		}
	})

	t.Run("negative step count", func(t *testing.T) {
		s := NewRandomWalk(300, 0.002, 0, WithSeed(1))
		if err := s.Bind(newHost([]float64{1})); err != nil {
			t.Fatal(err)
		}
		if err := s.SetupSampler(); err != nil {
			t.Fatal(err)
		}
		if err := s.Step(-1); !errors.Is(err, dynamo.ErrParameterBounds) {
			t.Errorf("expected ErrParameterBounds, got %v", err)
		}
	})
}

func run(t *testing.T, s Sampler, steps int) []dynamo.Vec3 {
	t.Helper()
	host := newHost([]float64{1, 1, 0})
	if err := s.Bind(host); err != nil {
		t.Fatal(err)
	}
	if err := s.SetupSampler(); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(steps); err != nil {
		t.Fatal(err)
	}
	return dynamo.CloneVecs(host.Positions())
}

func TestSeedDeterminism(t *testing.T) {
	for _, scheme := range []string{"random_walk", "indirect_reconstruction", "damped_reconstruction"} {
		t.Run(scheme, func(t *testing.T) {
			a := run(t, allSchemes(99)[scheme], 10)
			b := run(t, allSchemes(99)[scheme], 10)
			c := run(t, allSchemes(100)[scheme], 10)
			if !equalVecs(a, b) {
				t.Error("equal seeds produced different trajectories")
			}
			if equalVecs(a, c) {
				t.Error("different seeds produced the same trajectory")
			}
		})
	}
}

func TestSetSeedAfterBind(t *testing.T) {
	trajectory := func(seed int64) []dynamo.Vec3 {
		t.Helper()
		s := NewRandomWalk(300, 0.002, 0, WithSeed(1))
		host := newHost([]float64{1, 1})
		if err := s.Bind(host); err != nil {
			t.Fatal(err)
		}
		if seed != 0 {
			s.SetSeed(seed)
		}
		if err := s.SetupSampler(); err != nil {
			t.Fatal(err)
		}
		if err := s.Step(1); err != nil {
			t.Fatal(err)
		}
		return dynamo.CloneVecs(host.Positions())
	}

	want := trajectory(0)
	if !equalVecs(trajectory(1), want) {
		t.Error("re-applying the bound seed changed the trajectory")
	}
	if equalVecs(trajectory(99), want) {
		t.Error("SetSeed after Bind did not change the noise stream")
	}
}

func TestRandomWalkPeriodWarning(t *testing.T) {
	tests := []struct {
		name   string
		change func(s *RandomWalk)
	}{
		{"period", func(s *RandomWalk) { s.SetPeriod(0.05) }},
		{"temperature", func(s *RandomWalk) { s.SetTemperature(300000) }},
		{"step_size", func(s *RandomWalk) { s.SetStepSize(2) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := NewRandomWalk(300, 0.002, 1, WithSeed(1), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
			if err := s.Bind(newHost([]float64{1})); err != nil {
				t.Fatal(err)
			}
			if strings.Contains(buf.String(), "exceeds half period") {
				t.Fatalf("unexpected warning at Bind: %s", buf.String())
			}
			tt.change(s)
			if !strings.Contains(buf.String(), "noise amplitude exceeds half period") {
				t.Errorf("expected a half-period warning after changing %s, got %q", tt.name, buf.String())
			}
		})
	}
}

func TestSeedSource(t *testing.T) {
	calls := 0
	src := func() int64 {
		calls++
		return 1234
	}

	s := NewIndirectReconstruction(300, 0.002, 1, identity{}, WithSeedSource(src))
	host := newHost([]float64{1})
	if err := s.Bind(host); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected seed source at Bind, got %d calls", calls)
	}
	for i := 0; i < 2; i++ {
		if err := s.SetupSampler(); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 3 {
		t.Errorf("expected seed source at each SetupSampler, got %d calls", calls)
	}

	calls = 0
	seeded := NewIndirectReconstruction(300, 0.002, 1, identity{}, WithSeed(8), WithSeedSource(src))
	if err := seeded.Bind(newHost([]float64{1})); err != nil {
		t.Fatal(err)
	}
	if err := seeded.SetupSampler(); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("explicit seed must not consult the seed source, got %d calls", calls)
	}
}

func TestZeroNoiseRandomWalkStaysPut(t *testing.T) {
	s := NewRandomWalk(300, 0.002, 0, WithNoise(compute.ZeroNoise{}))
	host := newHost([]float64{1, 1, 0})
	before := dynamo.CloneVecs(host.Positions())
	if err := s.Bind(host); err != nil {
		t.Fatal(err)
	}
	if err := s.SetupSampler(); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(10); err != nil {
		t.Fatal(err)
	}
	if !equalVecs(host.Positions(), before) {
		t.Error("zero-noise random walk moved particles")
	}
	ke, err := s.KineticEnergy()
	if err != nil {
		t.Fatal(err)
	}
	if ke != 0 {
		t.Errorf("expected zero kinetic energy, got %v", ke)
	}
}

func TestMasslessParticleNeverMoves(t *testing.T) {
	for name, s := range allSchemes(21) {
		t.Run(name, func(t *testing.T) {
			host := newHost([]float64{1, 1, 0})
			frozen := host.Positions()[2]
			if err := s.Bind(host); err != nil {
				t.Fatal(err)
			}
			if err := s.SetupSampler(); err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 5; i++ {
				if err := s.Step(3); err != nil {
					t.Fatal(err)
				}
				if err := s.Accepted(i%2 == 0); err != nil {
					t.Fatal(err)
				}
			}
			if host.Positions()[2] != frozen {
				t.Errorf("massless particle moved to %v", host.Positions()[2])
			}
			if host.Velocities()[2] != (dynamo.Vec3{}) {
				t.Errorf("massless particle has velocity %v", host.Velocities()[2])
			}
		})
	}
}

func TestKineticEnergy(t *testing.T) {
	s := NewRandomWalk(300, 0.002, 0, WithSeed(4))
	if _, err := s.KineticEnergy(); !errors.Is(err, dynamo.ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
	host := newHost([]float64{2, 0.5})
	if err := s.Bind(host); err != nil {
		t.Fatal(err)
	}
	if err := s.SetupSampler(); err != nil {
		t.Fatal(err)
	}
	if err := s.Step(1); err != nil {
		t.Fatal(err)
	}

	want := 0.0
	for i, m := range host.Masses() {
		v := host.Velocities()[i]
		want += 0.5 * m * v.Dot(v)
	}
	got, err := s.KineticEnergy()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-want) > 1e-12*math.Max(1, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMacroscopicTarget(t *testing.T) {
	s := NewIndirectReconstruction(300, 0.002, 1, identity{}, WithSeed(1))
	if z := s.MacroscopicTarget(); z != nil {
		t.Errorf("expected nil target before Bind, got %v", z)
	}
	if err := s.Bind(newHost([]float64{1, 1})); err != nil {
		t.Fatal(err)
	}
	if z := s.MacroscopicTarget(); len(z) != 2 || z[0] != (dynamo.Vec3{}) {
		t.Errorf("expected two zero vectors, got %v", z)
	}
	if err := s.SetMacroscopicTarget(make([]dynamo.Vec3, 3)); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	z := []dynamo.Vec3{{1, 0, 0}, {0, 1, 0}}
	if err := s.SetMacroscopicTarget(z); err != nil {
		t.Fatal(err)
	}
	z[0][0] = 5
	if got := s.MacroscopicTarget(); got[0][0] != 1 {
		t.Error("target aliases the caller's slice")
	}

	e, err := s.BiasedEnergy()
	if err != nil {
		t.Fatal(err)
	}
	if e <= 0 {
		t.Errorf("expected positive bias energy, got %v", e)
	}
}

func TestBiasPullsTowardTarget(t *testing.T) {
	distance := func(lambda float64) float64 {
		s := NewIndirectReconstruction(300, 0.002, lambda, identity{}, WithNoise(compute.ZeroNoise{}))
		host := newHost([]float64{1, 1})
		if err := s.Bind(host); err != nil {
			t.Fatal(err)
		}
		z := []dynamo.Vec3{{2, 2, 2}, {2, 2, 2}}
		if err := s.SetMacroscopicTarget(z); err != nil {
			t.Fatal(err)
		}
		if err := s.SetupSampler(); err != nil {
			t.Fatal(err)
		}
		if err := s.Step(1); err != nil {
			t.Fatal(err)
		}
		return dynamo.SquaredDistance(host.Positions(), z)
	}

	prev := distance(0)
	for _, lambda := range []float64{1, 10, 100} {
		d := distance(lambda)
		if d >= prev {
			t.Errorf("lambda %v: expected distance below %v, got %v", lambda, prev, d)
		}
		prev = d
	}
}

func TestCleanup(t *testing.T) {
	s := NewRandomWalk(300, 0.002, 0, WithSeed(1))
	a := newHost([]float64{1})
	if err := s.Bind(a); err != nil {
		t.Fatal(err)
	}
	if err := s.SetupSampler(); err != nil {
		t.Fatal(err)
	}
	s.Cleanup()
	if s.Bound() || s.Kernel() != nil {
		t.Error("Cleanup left the sampler bound")
	}
	if err := s.Step(1); !errors.Is(err, dynamo.ErrNotBound) {
		t.Errorf("expected ErrNotBound after Cleanup, got %v", err)
	}
	if err := s.Bind(newHost([]float64{1, 1})); err != nil {
		t.Errorf("bind after Cleanup: %v", err)
	}
	s.Cleanup()
	s.Cleanup()
}

type fakeRecorder struct {
	steps     int
	accepted  int
	rejected  int
	overflows int
}

func (r *fakeRecorder) ObserveStep(_ string, n int, _ float64) { r.steps += n }

func (r *fakeRecorder) ObserveDecision(_ string, ok bool) {
	if ok {
		r.accepted++
	} else {
		r.rejected++
	}
}

func (r *fakeRecorder) ObserveFoldOverflows(_ string, n int) { r.overflows += n }

func TestRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewRandomWalk(300, 0.002, 0, WithSeed(1), WithRecorder(rec))
	if err := s.Bind(newHost([]float64{1})); err != nil {
		t.Fatal(err)
	}
	if err := s.SetupSampler(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := s.Step(2); err != nil {
			t.Fatal(err)
		}
		if err := s.Accepted(i < 3); err != nil {
			t.Fatal(err)
		}
	}
	if rec.steps != 8 {
		t.Errorf("expected 8 recorded steps, got %d", rec.steps)
	}
	if rec.accepted != 3 || rec.rejected != 1 {
		t.Errorf("expected 3/1 decisions, got %d/%d", rec.accepted, rec.rejected)
	}
}

func TestParamsRoundTrip(t *testing.T) {
	damped := mustDamped(t, 2.5, 0.75)
	damped.SetSeed(42)
	tests := []Sampler{
		NewRandomWalk(310, 0.001, 1.5, WithSeed(9)),
		NewIndirectReconstruction(280, 0.004, 12, identity{}, WithSeed(-3)),
		damped,
	}
	for _, s := range tests {
		t.Run(s.Scheme(), func(t *testing.T) {
			data, err := MarshalParams(s.Params())
			if err != nil {
				t.Fatal(err)
			}
			p, err := UnmarshalParams(data)
			if err != nil {
				t.Fatal(err)
			}
			if p != s.Params() {
				t.Errorf("expected %+v, got %+v", s.Params(), p)
			}

			rebuilt, err := New(p, identity{})
			if err != nil {
				t.Fatal(err)
			}
			if rebuilt.Scheme() != s.Scheme() || rebuilt.Params() != s.Params() {
				t.Errorf("rebuilt %+v, want %+v", rebuilt.Params(), s.Params())
			}
		})
	}
}

func TestNewRejectsBadParams(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"unknown scheme", Params{Scheme: "leapfrog", Temperature: 300, StepSize: 0.002}},
		{"zero step", Params{Scheme: SchemeRandomWalk, Temperature: 300}},
		{"negative temperature", Params{Scheme: SchemeIndirect, Temperature: -1, StepSize: 0.002}},
		{"negative gamma", Params{Scheme: SchemeDamped, Temperature: 300, StepSize: 0.002, Gamma: -0.1}},
		{"nan step", Params{Scheme: SchemeRandomWalk, Temperature: 300, StepSize: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s, err := New(tt.p, nil); err == nil {
				t.Errorf("expected error, got sampler %v", s.Scheme())
			}
		})
	}

	if _, err := NewDampedReconstruction(300, 0.002, 1, -1, nil); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected ErrParameterBounds, got %v", err)
	}
}

func TestDampedZeroGammaMatchesIndirect(t *testing.T) {
	// Assumes the mobility discretization 1/(1+gamma); any scheme that
	// collapses to the undamped update at gamma == 0 must pass.
	damped := mustDamped(t, 5, 0)
	damped.SetSeed(77)
	indirect := NewIndirectReconstruction(300, 0.002, 5, identity{}, WithSeed(77))

	a := run(t, damped, 6)
	b := run(t, indirect, 6)
	if !equalVecs(a, b) {
		t.Errorf("gamma 0 diverged from indirect reconstruction:\n%v\n%v", a, b)
	}
}

func TestForceGroups(t *testing.T) {
	s := NewIndirectReconstruction(300, 0.002, 1, nil)
	if g := s.IntegrationForceGroups(); g != dynamo.AllForceGroups {
		t.Errorf("expected all groups by default, got %d", g)
	}
	s.SetIntegrationForceGroups(0b10)
	if g := s.IntegrationForceGroups(); g != 0b10 {
		t.Errorf("expected 0b10, got %b", g)
	}
}
