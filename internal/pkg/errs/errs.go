package errs

import "errors"

var (
	// ErrValidation covers bad caller input: empty query text, non-positive
	// chunk sizes, vectors whose dimension does not match the index.
	ErrValidation = errors.New("validation failed")
	// ErrUnavailable means a generation or embedding backend cannot serve
	// right now (missing key, unreachable server). Callers fall back.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrPersistence covers corrupt or missing on-disk state. Consumers
	// degrade to "start empty" or "cache miss" instead of failing.
	ErrPersistence = errors.New("persistence failed")
	// ErrNotReady is returned by an approximate index that has not finished
	// its training phase.
	ErrNotReady = errors.New("index not ready")
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}
