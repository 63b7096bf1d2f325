package store

import (
	"context"
	"time"
)

// UpdateFunc transforms the current value of a key. It receives the stored
// value (empty string when the key is absent) and must return the value to
// write back. Returning an error aborts the update without writing.
type UpdateFunc func(current string, exists bool) (string, error)

// Store is a concurrent key-value abstraction for per-identifier state
// (violation records, behavior profiles, cooldown entries, payment attempt
// counters). Implementations must make Update atomic with respect to other
// operations on the same key. A ttl of zero means the entry never expires;
// housekeeping for such entries is the caller's concern.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
