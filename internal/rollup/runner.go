// Package rollup folds recent raw activity into durable per-bank aggregates,
// one state machine per interval unit (idle, selecting, aggregating,
// committing). Progress is a persisted checkpoint per unit, so restarts
// resume without gaps or double-counting.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/metrics"
	"bank-success-rates/internal/storage"
)

// ErrIntervalOpen signals that the next interval's end is still within the
// safety margin: late-arriving rows may yet land in it, so finalizing now
// would undercount. Not a failure; the next cycle retries.
var ErrIntervalOpen = errors.New("rollup: next interval still open to writers")

// IncompleteError reports a cycle in which one or more banks failed to
// commit. The checkpoint does not advance and the whole interval is retried
// on the next cycle; committing is idempotent, so the banks that did land are
// simply overwritten with the same values on retry.
type IncompleteError struct {
	Unit          bucket.Unit
	IntervalStart time.Time
	FailedBanks   []string
	Err           error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("rollup %s interval %s: %d bank(s) failed to commit (%s): %v",
		e.Unit, e.IntervalStart.Format(time.RFC3339), len(e.FailedBanks),
		strings.Join(e.FailedBanks, ","), e.Err)
}

func (e *IncompleteError) Unwrap() error { return e.Err }

// Options tune a rollup runner.
type Options struct {
	SuccessStatusCode int
	SafetyMargin      time.Duration
	OpTimeout         time.Duration
	AdvisoryLockKey   int64
}

// Runner executes rollup cycles for a single interval unit. The finest unit
// aggregates from the raw store; coarser units fold the already-committed
// aggregates of the next finer unit, so they keep working after raw rows are
// archived.
type Runner struct {
	unit        bucket.Unit
	raw         storage.RawOutcomeStore
	aggregates  storage.AggregateStore
	checkpoints storage.CheckpointStore
	locker      storage.AdvisoryLocker

	successCode  int
	safetyMargin time.Duration
	opTimeout    time.Duration
	lockKey      int64

	logger zerolog.Logger
	now    func() time.Time
}

// NewRunner constructs a runner for the unit. locker may be nil; without it,
// concurrent duplicate runs are wasteful but still converge (committing is an
// idempotent overwrite).
func NewRunner(unit bucket.Unit, raw storage.RawOutcomeStore, aggregates storage.AggregateStore, checkpoints storage.CheckpointStore, locker storage.AdvisoryLocker, opts Options, logger zerolog.Logger) *Runner {
	safetyMargin := opts.SafetyMargin
	if safetyMargin < 0 {
		safetyMargin = 0
	}
	opTimeout := opts.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}

	return &Runner{
		unit:         unit,
		raw:          raw,
		aggregates:   aggregates,
		checkpoints:  checkpoints,
		locker:       locker,
		successCode:  opts.SuccessStatusCode,
		safetyMargin: safetyMargin,
		opTimeout:    opTimeout,
		lockKey:      opts.AdvisoryLockKey,
		logger: logger.With().
			Str("component", "rollup").
			Str("unit", unit.String()).
			Logger(),
		now: time.Now,
	}
}

// Unit returns the runner's granularity.
func (r *Runner) Unit() bucket.Unit { return r.unit }

// WithClock overrides the internal clock, used in tests.
func (r *Runner) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Tick is the scheduler entry point: acquire the unit's advisory lock if one
// is configured, then catch up on every closable interval.
func (r *Runner) Tick(ctx context.Context, _ time.Time) error {
	if r.locker != nil && r.lockKey != 0 {
		unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.lockKey)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			r.logger.Debug().Msg("skip cycle, advisory lock held elsewhere")
			return nil
		}
		defer unlock()
	}

	_, err := r.CatchUp(ctx)
	return err
}

// CatchUp runs cycles until the next interval is still open, returning how
// many intervals were committed. Used both on the scheduled cadence and for
// the startup catch-up pass.
func (r *Runner) CatchUp(ctx context.Context) (int, error) {
	committed := 0
	for {
		if err := ctx.Err(); err != nil {
			return committed, err
		}
		err := r.RunCycle(ctx)
		if errors.Is(err, ErrIntervalOpen) {
			return committed, nil
		}
		if err != nil {
			return committed, err
		}
		committed++
	}
}

// RunCycle processes the single next interval for this unit.
//
// Selecting and Aggregating abort without side effects on any error: nothing
// has been written, the checkpoint is untouched and the next cycle retries
// the same interval. Committing upserts one aggregate per bank and only then
// advances the checkpoint; a crash between the two leaves committed rows that
// the retry simply overwrites with identical values.
func (r *Runner) RunCycle(ctx context.Context) error {
	intervalStart, err := r.selectInterval(ctx)
	if err != nil {
		return err
	}
	intervalEnd := intervalStart.Add(r.unit.Duration())

	tallies, err := r.aggregate(ctx, intervalStart, intervalEnd)
	if err != nil {
		r.countCycle("aggregate_error")
		return fmt.Errorf("aggregate %s interval %s: %w", r.unit, intervalStart.Format(time.RFC3339), err)
	}

	if err := r.commit(ctx, intervalStart, tallies); err != nil {
		r.countCycle("commit_error")
		return err
	}

	if err := r.checkpoints.SetCheckpoint(ctx, r.unit, intervalEnd); err != nil {
		r.countCycle("checkpoint_error")
		return fmt.Errorf("advance checkpoint: %w", err)
	}

	r.countCycle("ok")
	if metrics.RollupCheckpoint != nil {
		metrics.RollupCheckpoint.WithLabelValues(r.unit.String()).Set(float64(intervalEnd.Unix()))
	}
	r.logger.Info().
		Time("interval_start", intervalStart).
		Time("interval_end", intervalEnd).
		Int("banks", len(tallies)).
		Msg("interval committed")
	return nil
}

// selectInterval loads the checkpoint and refuses any interval whose end is
// newer than now minus the safety margin.
func (r *Runner) selectInterval(ctx context.Context) (time.Time, error) {
	cp, found, err := r.checkpoints.GetCheckpoint(ctx, r.unit)
	if err != nil {
		return time.Time{}, fmt.Errorf("load checkpoint: %w", err)
	}

	now := r.now().UTC()
	intervalStart := cp.LastProcessedIntervalEnd
	if !found {
		// First run for this unit: start from the interval containing now.
		// Anything older belongs to historical backfill, which this engine
		// does not attempt.
		intervalStart = bucket.Start(now, r.unit.Duration())
		if err := r.checkpoints.SetCheckpoint(ctx, r.unit, intervalStart); err != nil {
			return time.Time{}, fmt.Errorf("bootstrap checkpoint: %w", err)
		}
		r.logger.Info().Time("interval_start", intervalStart).Msg("checkpoint bootstrapped")
	}

	intervalEnd := intervalStart.Add(r.unit.Duration())
	if intervalEnd.After(now.Add(-r.safetyMargin)) {
		return time.Time{}, ErrIntervalOpen
	}

	// A folding unit reads the finer unit's committed aggregates, so its
	// interval is not settled until the finer checkpoint has passed the
	// interval's end. The safety margin only covers raw-row settlement; a
	// lagging finer unit would otherwise be folded undercounted and the gap
	// never repaired.
	if finer, ok := r.unit.Finer(); ok {
		finerCp, found, err := r.checkpoints.GetCheckpoint(ctx, finer)
		if err != nil {
			return time.Time{}, fmt.Errorf("load %s checkpoint: %w", finer, err)
		}
		if !found || finerCp.LastProcessedIntervalEnd.Before(intervalEnd) {
			return time.Time{}, ErrIntervalOpen
		}
	}

	return intervalStart, nil
}

func (r *Runner) aggregate(ctx context.Context, from, to time.Time) ([]storage.BankTally, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if finer, ok := r.unit.Finer(); ok {
		return r.aggregates.TallyAggregates(ctx, finer, from, to)
	}
	return r.raw.TallyOutcomes(ctx, from, to, r.successCode)
}

// commit upserts one record per bank. Once committing has begun the upserts
// run detached from the caller's cancellation so an aborted cycle does not
// strand a half-written interval longer than necessary; a partial commit is
// safe either way because the checkpoint has not advanced.
func (r *Runner) commit(ctx context.Context, intervalStart time.Time, tallies []storage.BankTally) error {
	commitCtx := context.WithoutCancel(ctx)
	updatedAt := r.now().UTC()

	var failed []string
	var firstErr error
	for _, tally := range tallies {
		record := storage.AggregateRecord{
			DestinationBank: tally.DestinationBank,
			IntervalUnit:    r.unit,
			IntervalStart:   intervalStart,
			SuccessCount:    tally.SuccessCount,
			TotalCount:      tally.TotalCount,
			UpdatedAt:       updatedAt,
		}
		if err := r.upsert(commitCtx, record); err != nil {
			failed = append(failed, tally.DestinationBank)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(failed) > 0 {
		return &IncompleteError{
			Unit:          r.unit,
			IntervalStart: intervalStart,
			FailedBanks:   failed,
			Err:           firstErr,
		}
	}
	return nil
}

func (r *Runner) upsert(ctx context.Context, record storage.AggregateRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.aggregates.UpsertAggregate(ctx, record)
}

func (r *Runner) countCycle(status string) {
	if metrics.RollupCycles != nil {
		metrics.RollupCycles.WithLabelValues(r.unit.String(), status).Inc()
	}
}
