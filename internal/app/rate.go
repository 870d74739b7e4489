package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bank-success-rates/internal/window"
)

// Rate prints the sliding-window success rate for one bank.
func (a *App) Rate(ctx context.Context, opts RateOptions) error {
	if opts.Bank == "" {
		return errors.New("--bank is required")
	}

	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = a.Config.Window.DefaultLookback
	}

	counters, closeCounters := a.newCounterStore()
	defer closeCounters()

	reader := window.NewReader(counters, a.Config.Ingest.BucketSize, a.Logger)
	snapshot, err := reader.Rate(ctx, opts.Bank, lookback)
	if err != nil {
		return err
	}

	rate, ok := snapshot.Rate()
	if !ok {
		fmt.Fprintf(os.Stdout, "%s: no traffic in the last %s\n", opts.Bank, lookback)
		return nil
	}

	fmt.Fprintf(os.Stdout, "%s: %s (%d/%d over the last %s)\n",
		opts.Bank, rate.StringFixed(4), snapshot.Success, snapshot.Total, lookback)
	return nil
}
