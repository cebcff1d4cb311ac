package kv

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned by backends when asked to read or write an empty key.
var ErrEmptyKey = errors.New("kv: key can not be empty")

// Store defines the interface for the backing key-value engine.
// Implementations must be safe for concurrent use; conflicting writes to the
// same key are serialized by the implementation (last write wins).
type Store interface {
	// Get retrieves the value stored under key.
	// Returns found=false with a nil error if the key does not exist.
	Get(ctx context.Context, key string) (value Value, found bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
}

// Backend is a Store that owns resources which must be released at shutdown.
type Backend interface {
	Store
	Close() error
}
