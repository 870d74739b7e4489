package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"bank-success-rates/internal/storage"
	"bank-success-rates/internal/window"
)

// Simulate pushes synthetic outcomes through the real Recorder against the
// configured counter store, then prints the resulting window snapshots. With
// --persist the outcomes also land in the raw store.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if len(opts.Banks) == 0 {
		return errors.New("at least one --bank is required")
	}
	if opts.Count <= 0 {
		opts.Count = 100
	}
	if opts.FailureRate < 0 || opts.FailureRate > 1 {
		return errors.New("--failure-rate must be within [0, 1]")
	}

	counters, closeCounters := a.newCounterStore()
	defer closeCounters()

	var raw storage.RawOutcomeStore
	if opts.Persist {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("--persist requires database.dsn")
		}
		defer closeStore()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		raw = store
	}

	recorder := a.newRecorder(counters, raw)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	now := time.Now().UTC()
	for i := 0; i < opts.Count; i++ {
		bank := opts.Banks[i%len(opts.Banks)]
		status := a.Config.Ingest.SuccessStatusCode
		if rng.Float64() < opts.FailureRate {
			status = 500
		}
		outcome := storage.Outcome{
			DestinationBank: bank,
			OccurredAt:      now,
			StatusCode:      status,
		}
		if err := recorder.Record(ctx, outcome); err != nil {
			return fmt.Errorf("record simulated outcome: %w", err)
		}
	}

	reader := window.NewReader(counters, a.Config.Ingest.BucketSize, a.Logger)
	for _, bank := range opts.Banks {
		snapshot, err := reader.Rate(ctx, bank, a.Config.Window.DefaultLookback)
		if err != nil {
			return err
		}
		rate, ok := snapshot.Rate()
		if !ok {
			fmt.Fprintf(os.Stdout, "%s: no traffic recorded\n", bank)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: %s (%d/%d)\n", bank, rate.StringFixed(4), snapshot.Success, snapshot.Total)
	}
	return nil
}
