package sampler

import (
	"fmt"

	"github.com/san-kum/bdsim/internal/dynamo"
)

type phase uint8

const (
	phaseUnbound phase = iota
	phaseBound
	phaseReady
)

func (p phase) String() string {
	switch p {
	case phaseUnbound:
		return "unbound"
	case phaseBound:
		return "bound"
	case phaseReady:
		return "ready"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// effect is the side effect a transition asks its caller to perform.
type effect uint8

const (
	effectNone effect = iota
	effectInitKernel
	effectReleaseKernel
)

// state is Unbound, Bound{host} or Ready{host, snapshot}. Transitions never
// modify the receiver.
type state struct {
	phase    phase
	host     dynamo.Context
	snapshot dynamo.Snapshot
}

func (s state) bind(host dynamo.Context) (state, effect, error) {
	switch {
	case host == nil:
		return s, effectNone, fmt.Errorf("bind nil context: %w", dynamo.ErrNotBound)
	case s.phase == phaseUnbound:
		return state{phase: phaseBound, host: host}, effectInitKernel, nil
	case s.host == host:
		return s, effectNone, nil
	default:
		return s, effectNone, dynamo.ErrAlreadyBound
	}
}

func (s state) requireBound() error {
	if s.phase == phaseUnbound {
		return dynamo.ErrNotBound
	}
	return nil
}

func (s state) requireReady() error {
	switch s.phase {
	case phaseUnbound:
		return dynamo.ErrNotBound
	case phaseBound:
		return dynamo.ErrNotReady
	}
	return nil
}

// ready installs snap as the previous state. Valid from Bound or Ready.
func (s state) ready(snap dynamo.Snapshot) (state, error) {
	if err := s.requireBound(); err != nil {
		return s, err
	}
	return state{phase: phaseReady, host: s.host, snapshot: snap}, nil
}

func (s state) release() (state, effect) {
	if s.phase == phaseUnbound {
		return s, effectNone
	}
	return state{}, effectReleaseKernel
}
