package segdict

import (
	"errors"
	"fmt"
)

// Sentinel errors for the operations defined in the spec's error-handling
// section. Check with errors.Is; the wrapped variants below still unwrap
// to these.
var (
	// ErrDuplicateKey is returned by Add when the key already exists.
	ErrDuplicateKey = errors.New("segdict: key already exists")

	// ErrKeyNotFound is returned by Get when the key is absent.
	ErrKeyNotFound = errors.New("segdict: key not found")

	// ErrCapacityExceeded is returned when a segment would exceed
	// MaxCapacity even after a resize cycle. Internal state remains
	// consistent: the operation that triggered it did not occur.
	ErrCapacityExceeded = errors.New("segdict: segment capacity exceeded")

	// ErrInvalidArgument names the invalid-argument error kind. No
	// operation in this package returns it: WithCapacity ignores a
	// non-positive capacity, and the sign bit of every hash is masked off
	// before use, so a negative hash never reaches a segment.
	ErrInvalidArgument = errors.New("segdict: invalid argument")
)

// KeyError wraps one of the sentinel errors above with the offending key,
// following the same cause-preserving pattern as hupe1980-vecgo/errors.go.
type KeyError[K any] struct {
	Key   K
	cause error
}

func (e *KeyError[K]) Error() string {
	return fmt.Sprintf("%v: key=%v", e.cause, e.Key)
}

func (e *KeyError[K]) Unwrap() error { return e.cause }

func duplicateKeyError[K any](key K) error {
	return &KeyError[K]{Key: key, cause: ErrDuplicateKey}
}

func keyNotFoundError[K any](key K) error {
	return &KeyError[K]{Key: key, cause: ErrKeyNotFound}
}
