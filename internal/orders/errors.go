package orders

import (
	"errors"
	"fmt"
)

// ErrNotFound covers both a missing entity and one owned by someone else;
// callers cannot tell the two apart.
var ErrNotFound = errors.New("not found")

// ErrInvalidState means the operation is illegal for the order's current
// status (rush/extend on an order no longer waiting for its batch).
var ErrInvalidState = errors.New("order is not waiting for a batch")

// StorageError wraps a fault from the persistence gateway. The core never
// retries these; retry policy belongs to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageUnavailable reports whether err originated in the persistence
// gateway rather than in request validation.
func IsStorageUnavailable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
