package storage

import (
	"context"
	"fmt"
)

// Raw outcomes are append-only and reclaimed by the retention manager once
// every granularity's rollup has passed them. Aggregates carry the composite
// primary key that makes upserts idempotent; the same ordering serves range
// scans.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS raw_outcomes (
        id               BIGSERIAL PRIMARY KEY,
        destination_bank TEXT        NOT NULL,
        occurred_at      TIMESTAMPTZ NOT NULL,
        status_code      INTEGER     NOT NULL,
        recorded_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_raw_outcomes_occurred
        ON raw_outcomes (occurred_at, destination_bank);`,
	`CREATE TABLE IF NOT EXISTS success_aggregates (
        destination_bank TEXT        NOT NULL,
        interval_unit    TEXT        NOT NULL,
        interval_start   TIMESTAMPTZ NOT NULL,
        success_count    BIGINT      NOT NULL,
        total_count      BIGINT      NOT NULL,
        updated_at       TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (destination_bank, interval_unit, interval_start)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_success_aggregates_unit_start
        ON success_aggregates (interval_unit, interval_start);`,
	`CREATE TABLE IF NOT EXISTS rollup_checkpoints (
        interval_unit               TEXT        PRIMARY KEY,
        last_processed_interval_end TIMESTAMPTZ NOT NULL,
        updated_at                  TIMESTAMPTZ NOT NULL
    );`,
}

// EnsureSchema creates the core tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
