// Package errs defines the typed failure modes shared across the engine.
//
// Layer-level operations return these instead of aborting the process; the
// training loop attaches epoch/step context before surfacing them.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds, usable with errors.Is.
var (
	ErrShapeMismatch      = errors.New("shape mismatch")
	ErrUnknownToken       = errors.New("unknown token")
	ErrInvalidID          = errors.New("invalid token id")
	ErrNumericInstability = errors.New("numeric instability")
	ErrConfiguration      = errors.New("configuration error")
	ErrDataLoad           = errors.New("data load error")
	ErrCheckpoint         = errors.New("checkpoint error")
)

// ShapeError reports a dimension mismatch between a layer's expected and
// actual input. Always fatal to the forward/backward call that produced it.
type ShapeError struct {
	Op       string
	Expected string
	Actual   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: expected %s, got %s", e.Op, e.Expected, e.Actual)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// Shape builds a ShapeError from row/column pairs.
func Shape(op string, wantR, wantC, gotR, gotC int) error {
	return &ShapeError{
		Op:       op,
		Expected: fmt.Sprintf("(%dx%d)", wantR, wantC),
		Actual:   fmt.Sprintf("(%dx%d)", gotR, gotC),
	}
}

// UnknownTokenError reports a vocabulary lookup miss. Recoverable: callers
// may substitute the unknown-token id instead.
type UnknownTokenError struct {
	Token string
}

func (e *UnknownTokenError) Error() string { return fmt.Sprintf("unknown token: %q", e.Token) }

func (e *UnknownTokenError) Unwrap() error { return ErrUnknownToken }

// InvalidIDError reports a decode of an id outside the vocabulary range.
type InvalidIDError struct {
	ID   int
	Size int
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid token id %d (vocabulary size %d)", e.ID, e.Size)
}

func (e *InvalidIDError) Unwrap() error { return ErrInvalidID }

// NumericError reports NaN/Inf detected in a loss or gradient. It is
// surfaced, never silently clipped, since it signals training divergence.
type NumericError struct {
	Op     string
	Detail string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("%s: numeric instability: %s", e.Op, e.Detail)
}

func (e *NumericError) Unwrap() error { return ErrNumericInstability }

// Numeric builds a NumericError.
func Numeric(op, format string, args ...any) error {
	return &NumericError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// ConfigError reports an invalid configuration, detected before any forward
// pass runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// Config builds a ConfigError.
func Config(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DataLoad wraps a dataset parsing/reading failure.
func DataLoad(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataLoad, fmt.Sprintf(format, args...))
}

// Checkpoint wraps a checkpoint persistence failure.
func Checkpoint(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCheckpoint, fmt.Sprintf(format, args...))
}
