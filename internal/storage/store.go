// Package storage persists the durable tier: raw transaction outcomes,
// finalized per-bank aggregates and rollup checkpoints, all in PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bank-success-rates/internal/bucket"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertOutcomeSQL = `INSERT INTO raw_outcomes (
        destination_bank,
        occurred_at,
        status_code
    ) VALUES ($1,$2,$3);`

	tallyOutcomesSQL = `SELECT
        destination_bank,
        COUNT(*) FILTER (WHERE status_code = $3) AS success_count,
        COUNT(*)                                 AS total_count
    FROM raw_outcomes
    WHERE occurred_at >= $1
      AND occurred_at < $2
      AND status_code > 0
    GROUP BY destination_bank
    ORDER BY destination_bank;`

	deleteOutcomesBeforeSQL = `DELETE FROM raw_outcomes WHERE occurred_at < $1;`

	upsertAggregateSQL = `INSERT INTO success_aggregates (
        destination_bank,
        interval_unit,
        interval_start,
        success_count,
        total_count,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (destination_bank, interval_unit, interval_start) DO UPDATE
    SET
        success_count = EXCLUDED.success_count,
        total_count   = EXCLUDED.total_count,
        updated_at    = EXCLUDED.updated_at;`

	tallyAggregatesSQL = `SELECT
        destination_bank,
        COALESCE(SUM(success_count), 0)::BIGINT AS success_count,
        COALESCE(SUM(total_count), 0)::BIGINT   AS total_count
    FROM success_aggregates
    WHERE interval_unit = $1
      AND interval_start >= $2
      AND interval_start < $3
    GROUP BY destination_bank
    ORDER BY destination_bank;`

	getCheckpointSQL = `SELECT
        interval_unit,
        last_processed_interval_end,
        updated_at
    FROM rollup_checkpoints
    WHERE interval_unit = $1;`

	setCheckpointSQL = `INSERT INTO rollup_checkpoints (
        interval_unit,
        last_processed_interval_end,
        updated_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (interval_unit) DO UPDATE
    SET
        last_processed_interval_end = EXCLUDED.last_processed_interval_end,
        updated_at                  = EXCLUDED.updated_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RawOutcomeStore defines persistence for raw transaction outcomes, the
// source of truth for long-term numbers.
type RawOutcomeStore interface {
	InsertOutcome(ctx context.Context, outcome Outcome) error
	TallyOutcomes(ctx context.Context, from, to time.Time, successCode int) ([]BankTally, error)
	DeleteOutcomesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AggregateStore defines the durable aggregate tier. Upsert is an idempotent
// overwrite keyed by (bank, unit, interval start).
type AggregateStore interface {
	UpsertAggregate(ctx context.Context, record AggregateRecord) error
	QueryAggregates(ctx context.Context, filter AggregateFilter) ([]AggregateRecord, error)
	TallyAggregates(ctx context.Context, unit bucket.Unit, from, to time.Time) ([]BankTally, error)
}

// CheckpointStore persists rollup progress per interval unit.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, unit bucket.Unit) (Checkpoint, bool, error)
	SetCheckpoint(ctx context.Context, unit bucket.Unit, intervalEnd time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to raw outcomes, aggregates and checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertOutcome appends one raw outcome.
func (s *Store) InsertOutcome(ctx context.Context, outcome Outcome) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertOutcomeSQL,
		outcome.DestinationBank,
		outcome.OccurredAt.UTC(),
		outcome.StatusCode,
	)
	if execErr != nil {
		return fmt.Errorf("insert outcome: %w", execErr)
	}
	return nil
}

// TallyOutcomes computes per-bank success/total pairs over [from, to) from
// raw rows. Rows without a status code (status_code <= 0) are excluded.
func (s *Store) TallyOutcomes(ctx context.Context, from, to time.Time, successCode int) ([]BankTally, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, tallyOutcomesSQL, from.UTC(), to.UTC(), successCode)
	if queryErr != nil {
		return nil, fmt.Errorf("tally outcomes: %w", queryErr)
	}
	defer rows.Close()

	return scanTallies(rows)
}

// DeleteOutcomesBefore removes raw rows older than the cutoff and reports how
// many were deleted.
func (s *Store) DeleteOutcomesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	cmdTag, execErr := pool.Exec(ctx, deleteOutcomesBeforeSQL, olderThan.UTC())
	if execErr != nil {
		return 0, fmt.Errorf("delete outcomes before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// UpsertAggregate inserts or overwrites the aggregate for the record's
// primary key. Re-running a rollup for the same interval converges on the
// same stored value.
func (s *Store) UpsertAggregate(ctx context.Context, record AggregateRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, execErr := pool.Exec(ctx, upsertAggregateSQL,
		record.DestinationBank,
		record.IntervalUnit.String(),
		record.IntervalStart.UTC(),
		int64(record.SuccessCount),
		int64(record.TotalCount),
		updatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert aggregate: %w", execErr)
	}
	return nil
}

// QueryAggregates lists aggregates matching the filter, ordered by the
// composite key so range scans stay efficient as data grows.
func (s *Store) QueryAggregates(ctx context.Context, filter AggregateFilter) ([]AggregateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT destination_bank, interval_unit, interval_start, success_count, total_count, updated_at
    FROM success_aggregates`)

	var conditions []string
	var args []any
	appendCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Bank != "" {
		appendCondition("destination_bank = $%d", filter.Bank)
	}
	if filter.Unit != "" {
		appendCondition("interval_unit = $%d", filter.Unit.String())
	}
	if !filter.From.IsZero() {
		appendCondition("interval_start >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		appendCondition("interval_start < $%d", filter.To.UTC())
	}

	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY destination_bank, interval_unit, interval_start;")

	rows, queryErr := pool.Query(ctx, sb.String(), args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query aggregates: %w", queryErr)
	}
	defer rows.Close()

	records := make([]AggregateRecord, 0)
	for rows.Next() {
		record, scanErr := scanAggregate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// TallyAggregates sums finer-granularity aggregates per bank over [from, to),
// used when a coarser unit folds already-committed records instead of
// re-reading raw data.
func (s *Store) TallyAggregates(ctx context.Context, unit bucket.Unit, from, to time.Time) ([]BankTally, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, tallyAggregatesSQL, unit.String(), from.UTC(), to.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("tally aggregates: %w", queryErr)
	}
	defer rows.Close()

	return scanTallies(rows)
}

// GetCheckpoint loads the rollup checkpoint for the unit; found is false when
// the unit has never committed.
func (s *Store) GetCheckpoint(ctx context.Context, unit bucket.Unit) (Checkpoint, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Checkpoint{}, false, err
	}

	var (
		unitName    string
		intervalEnd time.Time
		updatedAt   time.Time
	)
	scanErr := pool.QueryRow(ctx, getCheckpointSQL, unit.String()).Scan(&unitName, &intervalEnd, &updatedAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if scanErr != nil {
		return Checkpoint{}, false, fmt.Errorf("get checkpoint: %w", scanErr)
	}

	parsed, parseErr := bucket.ParseUnit(unitName)
	if parseErr != nil {
		return Checkpoint{}, false, fmt.Errorf("get checkpoint: %w", parseErr)
	}

	return Checkpoint{
		IntervalUnit:             parsed,
		LastProcessedIntervalEnd: intervalEnd.UTC(),
		UpdatedAt:                updatedAt.UTC(),
	}, true, nil
}

// SetCheckpoint advances the unit's checkpoint to the given interval end.
func (s *Store) SetCheckpoint(ctx context.Context, unit bucket.Unit, intervalEnd time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, setCheckpointSQL, unit.String(), intervalEnd.UTC(), time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("set checkpoint: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: releasing the connection drops the session lock anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func scanTallies(rows pgx.Rows) ([]BankTally, error) {
	tallies := make([]BankTally, 0)
	for rows.Next() {
		var (
			bank    string
			success int64
			total   int64
		)
		if err := rows.Scan(&bank, &success, &total); err != nil {
			return nil, err
		}
		tallies = append(tallies, BankTally{
			DestinationBank: bank,
			SuccessCount:    uint64(success),
			TotalCount:      uint64(total),
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tallies, nil
}

func scanAggregate(rows pgx.Rows) (AggregateRecord, error) {
	var (
		bank      string
		unitName  string
		start     time.Time
		success   int64
		total     int64
		updatedAt time.Time
	)
	if err := rows.Scan(&bank, &unitName, &start, &success, &total, &updatedAt); err != nil {
		return AggregateRecord{}, err
	}

	unit, err := bucket.ParseUnit(unitName)
	if err != nil {
		return AggregateRecord{}, fmt.Errorf("scan aggregate: %w", err)
	}

	return AggregateRecord{
		DestinationBank: bank,
		IntervalUnit:    unit,
		IntervalStart:   start.UTC(),
		SuccessCount:    uint64(success),
		TotalCount:      uint64(total),
		UpdatedAt:       updatedAt.UTC(),
	}, nil
}

var (
	_ RawOutcomeStore = (*Store)(nil)
	_ AggregateStore  = (*Store)(nil)
	_ CheckpointStore = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
