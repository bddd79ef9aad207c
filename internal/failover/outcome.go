package failover

import (
	"errors"

	"filegate/internal/metrics"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	// outcomeTransient tries the next backend.
	outcomeTransient
	// outcomeNotFound means the backend answered and does not hold the object.
	outcomeNotFound
	// outcomeFatal stops the whole operation.
	outcomeFatal
)

// outcome is the result of one backend attempt.
type outcome[T any] struct {
	kind  outcomeKind
	value T
	err   error
}

func succeeded[T any](v T) outcome[T] {
	return outcome[T]{kind: outcomeSuccess, value: v}
}

func transient[T any](location, op string, err error) outcome[T] {
	return outcome[T]{kind: outcomeTransient, err: &TransientError{Location: location, Op: op, Err: err}}
}

func notFound[T any]() outcome[T] {
	return outcome[T]{kind: outcomeNotFound, err: ErrObjectNotFound}
}

func fatal[T any](err error) outcome[T] {
	return outcome[T]{kind: outcomeFatal, err: err}
}

func (o outcome[T]) label() string {
	switch o.kind {
	case outcomeSuccess:
		return metrics.OutcomeSuccess
	case outcomeNotFound:
		return metrics.OutcomeNotFound
	case outcomeFatal:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeTransient
	}
}

// exhausted joins the sentinel with every collected attempt error.
func exhausted(sentinel error, errs []error) error {
	return errors.Join(append([]error{sentinel}, errs...)...)
}
