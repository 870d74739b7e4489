// Package retention reclaims raw outcome rows that every rollup unit has
// already folded into aggregates.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/metrics"
	"bank-success-rates/internal/storage"
)

// Archiver receives raw rows' cutoff before deletion, for cold storage
// handoff. Implementations must be idempotent: the same cutoff may be
// archived more than once if a pass fails between archive and delete.
type Archiver interface {
	Archive(ctx context.Context, olderThan time.Time) error
}

// NopArchiver skips archiving, the default when no cold store is configured.
type NopArchiver struct{}

func (NopArchiver) Archive(ctx context.Context, olderThan time.Time) error { return nil }

// Manager deletes raw rows older than the slowest rollup checkpoint. Rows are
// reclaimable only once every configured unit has processed past them: the
// finest unit needs them for tallies, and a lagging coarse unit folds from
// aggregates, never raw rows, so the minimum across checkpoints is the safe
// cutoff.
type Manager struct {
	raw         storage.RawOutcomeStore
	checkpoints storage.CheckpointStore
	archiver    Archiver
	units       []bucket.Unit
	logger      zerolog.Logger
}

// NewManager constructs a Manager. archiver may be nil.
func NewManager(raw storage.RawOutcomeStore, checkpoints storage.CheckpointStore, archiver Archiver, units []bucket.Unit, logger zerolog.Logger) *Manager {
	if archiver == nil {
		archiver = NopArchiver{}
	}
	return &Manager{
		raw:         raw,
		checkpoints: checkpoints,
		archiver:    archiver,
		units:       units,
		logger:      logger.With().Str("component", "retention").Logger(),
	}
}

// Tick is the scheduler entry point.
func (m *Manager) Tick(ctx context.Context, _ time.Time) error {
	_, err := m.Reclaim(ctx)
	return err
}

// Reclaim runs one retention pass and returns the number of rows deleted.
// If any unit has no checkpoint yet the pass is skipped entirely; a missing
// checkpoint means that unit has never run and nothing can be proven folded.
func (m *Manager) Reclaim(ctx context.Context) (int64, error) {
	cutoff, ok, err := m.cutoff(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		m.logger.Debug().Msg("skip pass, not every unit has a checkpoint yet")
		return 0, nil
	}

	if err := m.archiver.Archive(ctx, cutoff); err != nil {
		return 0, fmt.Errorf("archive rows before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	deleted, err := m.raw.DeleteOutcomesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete rows before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if metrics.RowsReclaimed != nil {
		metrics.RowsReclaimed.Add(float64(deleted))
	}
	if deleted > 0 {
		m.logger.Info().Int64("rows", deleted).Time("cutoff", cutoff).Msg("raw rows reclaimed")
	}
	return deleted, nil
}

func (m *Manager) cutoff(ctx context.Context) (time.Time, bool, error) {
	var cutoff time.Time
	for i, unit := range m.units {
		cp, found, err := m.checkpoints.GetCheckpoint(ctx, unit)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("load %s checkpoint: %w", unit, err)
		}
		if !found {
			return time.Time{}, false, nil
		}
		if i == 0 || cp.LastProcessedIntervalEnd.Before(cutoff) {
			cutoff = cp.LastProcessedIntervalEnd
		}
	}
	if cutoff.IsZero() {
		return time.Time{}, false, nil
	}
	return cutoff, true, nil
}
