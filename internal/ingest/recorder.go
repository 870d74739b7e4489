// Package ingest consumes transaction outcomes and feeds both tiers: the
// real-time counter store and the durable raw store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/counter"
	"bank-success-rates/internal/metrics"
	"bank-success-rates/internal/storage"
)

// Class is the classification of one outcome.
type Class string

const (
	// ClassSuccess marks outcomes whose status code equals the configured
	// success code.
	ClassSuccess Class = "success"
	// ClassFailure marks outcomes with any other positive status code.
	ClassFailure Class = "failure"
	// ClassIndeterminate marks network-level outcomes without a status code
	// (StatusCode <= 0). They are kept in the raw store but excluded from
	// success/total counters.
	ClassIndeterminate Class = "indeterminate"
)

// Options tune the recorder.
type Options struct {
	SuccessStatusCode int
	BucketSize        time.Duration
	CounterTTL        time.Duration
	RetryAttempts     int
	RetryBackoff      time.Duration
}

// Recorder classifies outcomes and performs the dual write into the counter
// store and the raw store. The two writes are independent, not a transaction:
// both are attempted even when one fails, and the raw store remains the
// source of truth that rollup reconciles from.
//
// Recorder holds no mutable state of its own and is safe for concurrent use;
// correctness under concurrent callers rests on the counter store's per-key
// atomicity.
type Recorder struct {
	counters counter.Store
	raw      storage.RawOutcomeStore

	successCode int
	bucketSize  time.Duration
	ttl         time.Duration
	attempts    int
	backoff     time.Duration

	logger zerolog.Logger
}

// NewRecorder constructs a recorder. raw may be nil when raw persistence is
// not configured; the real-time tier still works alone.
func NewRecorder(counters counter.Store, raw storage.RawOutcomeStore, opts Options, logger zerolog.Logger) *Recorder {
	bucketSize := opts.BucketSize
	if bucketSize <= 0 {
		bucketSize = time.Minute
	}
	ttl := opts.CounterTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Recorder{
		counters:    counters,
		raw:         raw,
		successCode: opts.SuccessStatusCode,
		bucketSize:  bucketSize,
		ttl:         ttl,
		attempts:    attempts,
		backoff:     opts.RetryBackoff,
		logger:      logger.With().Str("component", "recorder").Logger(),
	}
}

// Classify derives the outcome class from the status code.
func (r *Recorder) Classify(outcome storage.Outcome) Class {
	switch {
	case outcome.StatusCode <= 0:
		return ClassIndeterminate
	case outcome.StatusCode == r.successCode:
		return ClassSuccess
	default:
		return ClassFailure
	}
}

// Record writes one outcome into both tiers. Transient store failures are
// retried with backoff; an outcome is never silently dropped, so a write
// still failing after all retries is returned to the caller. Delivery is
// assumed at most once: redelivered outcomes double-count by design.
func (r *Recorder) Record(ctx context.Context, outcome storage.Outcome) error {
	if outcome.DestinationBank == "" {
		return fmt.Errorf("destination bank is required")
	}
	if outcome.OccurredAt.IsZero() {
		return fmt.Errorf("occurred at is required")
	}

	class := r.Classify(outcome)
	bucketStart := bucket.Start(outcome.OccurredAt, r.bucketSize)

	var counterErr error
	if class != ClassIndeterminate {
		counterErr = r.withRetry(ctx, func(ctx context.Context) error {
			return r.counters.Increment(ctx, outcome.DestinationBank, bucketStart, class == ClassSuccess, r.ttl)
		})
		if counterErr != nil {
			if metrics.CounterWriteFailures != nil {
				metrics.CounterWriteFailures.Inc()
			}
			r.logger.Error().Err(counterErr).
				Str("bank", outcome.DestinationBank).
				Time("bucket", bucketStart).
				Msg("counter increment failed after retries")
			counterErr = fmt.Errorf("counter increment: %w", counterErr)
		}
	}

	// Raw append is attempted regardless of the counter write's fate; the
	// tiers may diverge transiently and reconcile at rollup time.
	var rawErr error
	if r.raw != nil {
		rawErr = r.withRetry(ctx, func(ctx context.Context) error {
			return r.raw.InsertOutcome(ctx, outcome)
		})
		if rawErr != nil {
			if metrics.RawWriteFailures != nil {
				metrics.RawWriteFailures.Inc()
			}
			r.logger.Error().Err(rawErr).
				Str("bank", outcome.DestinationBank).
				Msg("raw outcome append failed after retries")
			rawErr = fmt.Errorf("raw append: %w", rawErr)
		}
	}

	if counterErr == nil && rawErr == nil {
		if metrics.OutcomesRecorded != nil {
			metrics.OutcomesRecorded.WithLabelValues(outcome.DestinationBank, string(class)).Inc()
		}
		return nil
	}
	return errors.Join(counterErr, rawErr)
}

func (r *Recorder) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 && r.backoff > 0 {
			timer := time.NewTimer(r.backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
