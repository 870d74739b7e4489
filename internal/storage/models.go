package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"bank-success-rates/internal/bucket"
)

// Outcome is a single transaction result as delivered by the inbound
// transport and persisted to the raw store. A StatusCode <= 0 marks a
// network-level outcome with no HTTP status; such rows are kept in the raw
// store but excluded from success/total tallies.
type Outcome struct {
	DestinationBank string
	OccurredAt      time.Time
	StatusCode      int
}

// AggregateRecord is one finalized per-bank aggregate at a given granularity.
// At most one record exists per (DestinationBank, IntervalUnit, IntervalStart);
// replays overwrite it with freshly computed counts, never increment it.
type AggregateRecord struct {
	DestinationBank string
	IntervalUnit    bucket.Unit
	IntervalStart   time.Time
	SuccessCount    uint64
	TotalCount      uint64
	UpdatedAt       time.Time
}

// Rate returns success/total, or ok=false for an interval with no traffic.
func (r AggregateRecord) Rate() (decimal.Decimal, bool) {
	if r.TotalCount == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromUint64(r.SuccessCount).Div(decimal.NewFromUint64(r.TotalCount)), true
}

// BankTally is a per-bank success/total pair computed over one interval,
// before it is committed as an AggregateRecord.
type BankTally struct {
	DestinationBank string
	SuccessCount    uint64
	TotalCount      uint64
}

// Checkpoint records how far rollup has advanced for one interval unit, so
// restarts resume without gaps or duplication.
type Checkpoint struct {
	IntervalUnit             bucket.Unit
	LastProcessedIntervalEnd time.Time
	UpdatedAt                time.Time
}

// AggregateFilter narrows an aggregate query. Zero-valued fields are not
// applied, so callers can filter by bank only, bank+unit, or bank+unit+range.
type AggregateFilter struct {
	Bank string
	Unit bucket.Unit
	From time.Time
	To   time.Time
}
