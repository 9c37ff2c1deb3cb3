package docstore

import (
	"errors"
	"fmt"
)

// Configuration-class errors. These indicate the caller or deployment is
// wrong, not that the backend hiccuped; retrying does not help.
var (
	// ErrMissingPartitionKey is returned by Save when the partition key
	// field is absent or blank.
	ErrMissingPartitionKey = errors.New("docstore: missing partition key")

	// ErrStoreDisabled is returned on any access to a store that was never
	// configured.
	ErrStoreDisabled = errors.New("docstore: store not configured")

	// ErrInvalidQuery is returned when a filter or query shape is rejected
	// before dispatch.
	ErrInvalidQuery = errors.New("docstore: invalid query")
)

// PersistenceError wraps a backend read/write failure with the operation and
// collection it happened on. It is distinct from the configuration errors
// above: callers map it to an internal failure, not a client error.
type PersistenceError struct {
	Op         string
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("docstore: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, col *Collection, err error) error {
	return &PersistenceError{Op: op, Collection: col.Name, Err: err}
}

// IsConfigError reports whether err is a configuration-class failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingPartitionKey) ||
		errors.Is(err, ErrStoreDisabled) ||
		errors.Is(err, ErrInvalidQuery)
}
