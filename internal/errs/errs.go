// Package errs defines the failure kinds shared by the trading core and its
// collaborators. Callers branch on the kind with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable: a market-data or signal source failed. The caller
	// substitutes the neutral default and carries on.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrRiskBreach: a limit refused the action. Never retried.
	ErrRiskBreach = errors.New("risk limit breached")

	// ErrExecution: the broker rejected or failed an order.
	ErrExecution = errors.New("execution failed")

	// ErrInvalidConfig is fatal at startup.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound is returned by stores for missing keys.
	ErrNotFound = errors.New("not found")
)

// Error decorates an underlying error with a kind and the failing operation.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds a kinded error. err may be nil.
func E(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Data wraps err as ErrDataUnavailable.
func Data(op string, err error) error { return E(ErrDataUnavailable, op, err) }

// Execution wraps err as ErrExecution.
func Execution(op string, err error) error { return E(ErrExecution, op, err) }

// Risk reports a refused action with a human readable reason.
func Risk(op, reason string) error { return E(ErrRiskBreach, op, errors.New(reason)) }

// NotFound reports a missing key.
func NotFound(op, key string) error { return E(ErrNotFound, op, errors.New(key)) }

// Config reports an invalid configuration value.
func Config(format string, args ...interface{}) error {
	return E(ErrInvalidConfig, "config", fmt.Errorf(format, args...))
}

// KindOf returns the kind of err or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrDataUnavailable, ErrRiskBreach, ErrExecution, ErrInvalidConfig, ErrNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
