// Package statestore provides the TTL key-value store that holds sync job
// records, dedup/rate-limit markers, and dead-letter entries.
//
// The store exposes plain Get/Put/Delete over string values with a per-key
// TTL and no multi-key transactions. Callers perform whole-record
// read-modify-write; last-writer-wins under concurrent writers to the same
// key is inherited behavior, and the interface is the seam where a
// conditional-write or single-writer strategy could be substituted without
// touching callers.
package statestore

import (
	"context"
	"time"
)

// StateStore is a durable string store with per-key TTL expiry.
type StateStore interface {
	// Get returns the value for key and whether it exists. An expired or
	// absent key reads as missing, not as an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put writes value under key with the given TTL. A ttl <= 0 stores the
	// value without expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases underlying resources.
	Close() error
}
