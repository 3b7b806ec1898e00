package sampler

import (
	"github.com/san-kum/bdsim/internal/dynamo"
	"github.com/san-kum/bdsim/internal/integrators"
)

// RandomWalk proposes unbiased Gaussian displacements. Its previous state
// holds positions and energy only.
type RandomWalk struct {
	base
	walk *integrators.RandomWalk
}

func NewRandomWalk(temperature, stepSize, period float64, opts ...Option) *RandomWalk {
	walk := integrators.NewRandomWalk(temperature, stepSize, period)
	return &RandomWalk{
		base: newBase(walk, plan{}, dynamo.Positions|dynamo.Energy, false, opts),
		walk: walk,
	}
}

func (s *RandomWalk) Period() float64 { return s.walk.Period() }

// SetPeriod, SetTemperature and SetStepSize repeat the half-period check
// on a bound sampler.
func (s *RandomWalk) SetPeriod(p float64) {
	s.walk.SetPeriod(p)
	s.checkPeriod()
}

func (s *RandomWalk) SetTemperature(t float64) {
	s.base.SetTemperature(t)
	s.checkPeriod()
}

func (s *RandomWalk) SetStepSize(dt float64) {
	s.base.SetStepSize(dt)
	s.checkPeriod()
}

func (s *RandomWalk) checkPeriod() {
	if s.Bound() {
		s.walk.CheckPeriod()
	}
}

// FoldOverflows counts folded coordinates that still fell outside the period.
func (s *RandomWalk) FoldOverflows() int { return s.walk.FoldOverflows() }

func (s *RandomWalk) Bind(host dynamo.Context) error {
	wasBound := s.Bound()
	if err := s.base.Bind(host); err != nil {
		return err
	}
	if !wasBound {
		s.walk.CheckPeriod()
	}
	return nil
}

func (s *RandomWalk) Step(n int) error {
	before := s.walk.FoldOverflows()
	err := s.base.Step(n)
	if d := s.walk.FoldOverflows() - before; d > 0 {
		s.recorder.ObserveFoldOverflows(s.Scheme(), d)
	}
	return err
}

func (s *RandomWalk) Params() Params {
	return Params{
		Scheme:      SchemeRandomWalk,
		Temperature: s.Temperature(),
		StepSize:    s.StepSize(),
		Period:      s.Period(),
		Seed:        s.Seed(),
	}
}
