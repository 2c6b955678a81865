// Package cache provides byte-oriented key/value caches with expiry, backed by
// Redis or by process memory.
package cache

import (
	"context"
	"time"
)

// Store is a key/value cache with per-entry TTL
type Store interface {
	// Get returns the value and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl; a non-positive ttl stores nothing
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key
	Delete(ctx context.Context, key string) error
	// Close releases the store's resources
	Close() error
}

// NopStore never holds anything
type NopStore struct{}

// Get implements Store
func (NopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set implements Store
func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete implements Store
func (NopStore) Delete(context.Context, string) error { return nil }

// Close implements Store
func (NopStore) Close() error { return nil }
