// Package counter implements the real-time tier: per-(bank, minute-bucket)
// success/total pairs with atomic increments and expiry-on-write.
package counter

import (
	"context"
	"time"
)

// Counts holds the success/total pair for a single bucket. The zero value is
// what callers see for absent or expired buckets.
type Counts struct {
	Success uint64
	Total   uint64
}

// Store is the contract of the real-time counter tier.
//
// Increment must apply the total bump, the conditional success bump and the
// TTL refresh as one atomic unit per key; concurrent callers never lose an
// update. Every write extends the key's expiry to ttl from now, so a hot
// bucket lives "last write + ttl", not "first write + ttl".
//
// Read returns the zero Counts for absent or expired keys; absence is the
// expected steady state for buckets outside the lookback window, never an
// error.
type Store interface {
	Increment(ctx context.Context, bank string, bucketStart time.Time, success bool, ttl time.Duration) error
	Read(ctx context.Context, bank string, bucketStart time.Time) (Counts, error)
}
