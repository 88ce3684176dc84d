// Package kvstore holds short-lived shared state (OTP entries, staged
// registrations) behind a small key/value interface so the same code runs
// against process memory in tests and a shared cache in production.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the shared TTL cache. Read-modify-write callers go through the
// compare operations so a concurrent writer is never overwritten.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value. A ttl <= 0
	// keeps the key until it is deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key and reports whether a live value was removed.
	// Exactly one of several concurrent callers observes true.
	Delete(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key, 0 for keys without expiry,
	// or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// CompareAndSwap replaces the value of key with value only if the
	// current live value equals old. The key keeps its remaining TTL.
	CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error)
	// CompareAndDelete removes key only if its live value equals old.
	CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error)
}
