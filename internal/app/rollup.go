package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/rollup"
)

// Rollup runs catch-up cycles once, outside the scheduler, for one unit or
// all configured units.
func (a *App) Rollup(ctx context.Context, opts RollupOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot run rollups")
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	runners := a.buildRunners(store)
	if opts.Unit != "" {
		unit, err := bucket.ParseUnit(opts.Unit)
		if err != nil {
			return err
		}
		runners = filterRunners(runners, unit)
		if len(runners) == 0 {
			return fmt.Errorf("unit %s is not configured in rollup.units", unit)
		}
	}

	for _, runner := range runners {
		committed, err := runner.CatchUp(ctx)
		if err != nil {
			return fmt.Errorf("catch up %s: %w", runner.Unit(), err)
		}
		fmt.Fprintf(os.Stdout, "%s: committed %d interval(s)\n", runner.Unit(), committed)
	}
	return nil
}

func filterRunners(runners []*rollup.Runner, unit bucket.Unit) []*rollup.Runner {
	filtered := runners[:0]
	for _, runner := range runners {
		if runner.Unit() == unit {
			filtered = append(filtered, runner)
		}
	}
	return filtered
}
