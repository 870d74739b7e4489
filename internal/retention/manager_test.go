package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/storage"
)

type fakeRawStore struct {
	mu        sync.Mutex
	deletedAt []time.Time
	rows      int64
	failing   bool
}

func (f *fakeRawStore) InsertOutcome(ctx context.Context, outcome storage.Outcome) error {
	return errors.New("not implemented")
}

func (f *fakeRawStore) TallyOutcomes(ctx context.Context, from, to time.Time, successCode int) ([]storage.BankTally, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRawStore) DeleteOutcomesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errors.New("delete failed")
	}
	f.deletedAt = append(f.deletedAt, olderThan)
	return f.rows, nil
}

type fakeCheckpointStore struct {
	checkpoints map[bucket.Unit]time.Time
}

func (f *fakeCheckpointStore) GetCheckpoint(ctx context.Context, unit bucket.Unit) (storage.Checkpoint, bool, error) {
	end, ok := f.checkpoints[unit]
	if !ok {
		return storage.Checkpoint{}, false, nil
	}
	return storage.Checkpoint{IntervalUnit: unit, LastProcessedIntervalEnd: end}, true, nil
}

func (f *fakeCheckpointStore) SetCheckpoint(ctx context.Context, unit bucket.Unit, intervalEnd time.Time) error {
	return errors.New("not implemented")
}

type recordingArchiver struct {
	cutoffs []time.Time
	err     error
}

func (a *recordingArchiver) Archive(ctx context.Context, olderThan time.Time) error {
	if a.err != nil {
		return a.err
	}
	a.cutoffs = append(a.cutoffs, olderThan)
	return nil
}

func TestReclaimUsesSlowestCheckpoint(t *testing.T) {
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	raw := &fakeRawStore{rows: 42}
	cps := &fakeCheckpointStore{checkpoints: map[bucket.Unit]time.Time{
		bucket.Unit15Min: base.Add(10 * time.Hour),
		bucket.UnitHour:  base.Add(9 * time.Hour),
		bucket.UnitDay:   base.Add(24 * time.Hour),
	}}

	manager := NewManager(raw, cps, nil, bucket.AllUnits, zerolog.Nop())
	deleted, err := manager.Reclaim(context.Background())
	if err != nil {
		t.Fatalf("Reclaim returned error: %v", err)
	}
	if deleted != 42 {
		t.Fatalf("expected 42 deleted rows, got %d", deleted)
	}
	if len(raw.deletedAt) != 1 || !raw.deletedAt[0].Equal(base.Add(9*time.Hour)) {
		t.Fatalf("expected cutoff at the slowest checkpoint, got %v", raw.deletedAt)
	}
}

func TestReclaimSkipsWhenCheckpointMissing(t *testing.T) {
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	raw := &fakeRawStore{rows: 42}
	cps := &fakeCheckpointStore{checkpoints: map[bucket.Unit]time.Time{
		bucket.Unit15Min: base.Add(10 * time.Hour),
		// hour and day have never run
	}}

	manager := NewManager(raw, cps, nil, bucket.AllUnits, zerolog.Nop())
	deleted, err := manager.Reclaim(context.Background())
	if err != nil {
		t.Fatalf("Reclaim returned error: %v", err)
	}
	if deleted != 0 || len(raw.deletedAt) != 0 {
		t.Fatalf("pass must be skipped when any checkpoint is missing, deleted=%d calls=%d", deleted, len(raw.deletedAt))
	}
}

func TestReclaimArchivesBeforeDeleting(t *testing.T) {
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	raw := &fakeRawStore{rows: 7}
	cps := &fakeCheckpointStore{checkpoints: map[bucket.Unit]time.Time{
		bucket.Unit15Min: base.Add(time.Hour),
	}}
	archiver := &recordingArchiver{}

	manager := NewManager(raw, cps, archiver, []bucket.Unit{bucket.Unit15Min}, zerolog.Nop())
	if _, err := manager.Reclaim(context.Background()); err != nil {
		t.Fatalf("Reclaim returned error: %v", err)
	}
	if len(archiver.cutoffs) != 1 || !archiver.cutoffs[0].Equal(base.Add(time.Hour)) {
		t.Fatalf("expected archive at cutoff, got %v", archiver.cutoffs)
	}
}

func TestReclaimStopsOnArchiveFailure(t *testing.T) {
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	raw := &fakeRawStore{rows: 7}
	cps := &fakeCheckpointStore{checkpoints: map[bucket.Unit]time.Time{
		bucket.Unit15Min: base.Add(time.Hour),
	}}
	archiver := &recordingArchiver{err: errors.New("cold store unavailable")}

	manager := NewManager(raw, cps, archiver, []bucket.Unit{bucket.Unit15Min}, zerolog.Nop())
	if _, err := manager.Reclaim(context.Background()); err == nil {
		t.Fatal("expected error when archiving fails")
	}
	if len(raw.deletedAt) != 0 {
		t.Fatal("rows must not be deleted when archiving fails")
	}
}
