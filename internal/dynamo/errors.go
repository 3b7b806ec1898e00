package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for sampler operations.
var (
	// ErrAlreadyBound indicates a sampler was bound to a second, different context.
	ErrAlreadyBound = errors.New("dynamo: sampler is already bound to a different context")

	// ErrNotBound indicates an operation that needs a context ran before Bind.
	ErrNotBound = errors.New("dynamo: sampler is not bound to a context")

	// ErrNotReady indicates Step or Accepted ran before SetupSampler.
	ErrNotReady = errors.New("dynamo: sampler has no previous state (call SetupSampler first)")

	// ErrDimensionMismatch indicates a reaction coordinate or target length
	// that disagrees with the configuration length.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrInvalidState indicates NaN or Inf in positions.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")
)

// DimensionError reports which array had the wrong length.
type DimensionError struct {
	What string
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dynamo: dimension mismatch: %s has length %d, want %d", e.What, e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// CheckLen returns a *DimensionError when got != want.
func CheckLen(what string, got, want int) error {
	if got != want {
		return &DimensionError{What: what, Got: got, Want: want}
	}
	return nil
}

// StepError wraps a failure inside a sampler step with its position in the run.
type StepError struct {
	Scheme  string
	Step    int
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step %d: %v", e.Scheme, e.Step, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}

// BiasedEnergy validates lengths before asking rc for the bias energy.
func BiasedEnergy(rc ReactionCoordinate, x, z []Vec3) (float64, error) {
	if rc == nil {
		return 0, nil
	}
	if err := CheckLen("macroscopic target", len(z), len(x)); err != nil {
		return 0, err
	}
	return rc.BiasedEnergy(x, z), nil
}
