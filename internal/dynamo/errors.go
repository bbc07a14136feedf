package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for engine operations.
var (
	// ErrConfiguration indicates a caller configuration mistake detected at
	// construction or first use.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrInvalidState indicates an update produced NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrCanceled indicates a progress callback asked the run to stop.
	ErrCanceled = errors.New("dynamo: evolution canceled by progress callback")

	// ErrDimensionMismatch indicates vectors or matrices of different sizes.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")
)

// ConfigurationError names the offending field of a rejected configuration.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

// Configf builds a ConfigurationError for field with a formatted reason.
func Configf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Mismatchf builds a ConfigurationError that also matches ErrDimensionMismatch.
func Mismatchf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: ErrDimensionMismatch}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
