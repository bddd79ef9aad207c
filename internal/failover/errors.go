package failover

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound means no backend holds the object.
	ErrObjectNotFound = errors.New("object not found")
	// ErrAllBackendsExhausted means every backend failed a write.
	ErrAllBackendsExhausted = errors.New("all storage backends failed")
	// ErrUnknownLocation means a read named a location that is not configured.
	ErrUnknownLocation = errors.New("unknown storage location")
	// ErrNoBackends means the executor has nothing to try.
	ErrNoBackends = errors.New("no storage backends configured")
	// ErrSource means the file being uploaded could not be opened.
	ErrSource = errors.New("upload source unavailable")
)

// TransientError is a failed attempt against one backend. The executor moves
// on to the next backend after it.
type TransientError struct {
	Location string
	Op       string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Location, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
