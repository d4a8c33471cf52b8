// Package cache stores small serialized read models (the public widget
// config) in Redis or in process memory, with concurrent misses for the same
// key collapsed into one load.
package cache

import (
	"context"
	"time"
)

// Store is a byte cache with per-entry TTL.
type Store interface {
	// Get returns the value and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl. ttl <= 0 keeps the store default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete drops key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
