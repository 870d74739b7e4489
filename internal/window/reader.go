// Package window computes sliding-window success rates from the real-time
// counter tier.
package window

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/counter"
)

// Snapshot is the result of one sliding-window rate computation. It is
// ephemeral; nothing persists it.
type Snapshot struct {
	Bank        string
	WindowStart time.Time
	WindowEnd   time.Time
	Success     uint64
	Total       uint64
}

// Rate returns success/total, or ok=false when the window saw no traffic.
// Callers must distinguish "no data" from an observed 0% success rate.
func (s Snapshot) Rate() (decimal.Decimal, bool) {
	if s.Total == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromUint64(s.Success).Div(decimal.NewFromUint64(s.Total)), true
}

// Reader sums bucket counters across a lookback window. Reads are purely
// read-only and tolerant of missing buckets: an absent, expired or unreadable
// bucket contributes zero rather than failing the whole computation.
type Reader struct {
	store      counter.Store
	bucketSize time.Duration
	fanout     int
	logger     zerolog.Logger
	now        func() time.Time
}

// NewReader constructs a window reader over the given counter store.
func NewReader(store counter.Store, bucketSize time.Duration, logger zerolog.Logger) *Reader {
	if bucketSize <= 0 {
		bucketSize = time.Minute
	}
	return &Reader{
		store:      store,
		bucketSize: bucketSize,
		fanout:     4,
		logger:     logger.With().Str("component", "window_reader").Logger(),
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *Reader) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Rate computes the success rate for the bank over [now-lookback, now).
// Bucket reads fan out in parallel; individual read failures degrade the
// snapshot (the bucket counts as zero) instead of failing it.
func (r *Reader) Rate(ctx context.Context, bank string, lookback time.Duration) (Snapshot, error) {
	if bank == "" {
		return Snapshot{}, fmt.Errorf("bank is required")
	}
	if lookback <= 0 {
		return Snapshot{}, fmt.Errorf("lookback must be positive")
	}

	windowEnd := r.now().UTC()
	windowStart := windowEnd.Add(-lookback)
	starts := bucket.Covering(windowStart, windowEnd, r.bucketSize)

	results := make([]counter.Counts, len(starts))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.fanout)
	for i, start := range starts {
		i, start := i, start
		group.Go(func() error {
			counts, err := r.store.Read(gctx, bank, start)
			if err != nil {
				r.logger.Warn().Err(err).
					Str("bank", bank).
					Time("bucket", start).
					Msg("bucket read failed, counting as zero")
				return nil
			}
			results[i] = counts
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Bank:        bank,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
	for _, counts := range results {
		snapshot.Success += counts.Success
		snapshot.Total += counts.Total
	}
	return snapshot, nil
}
