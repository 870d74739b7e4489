package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bank-success-rates/internal/retention"
)

// Reclaim runs one retention pass and reports how many raw rows were deleted.
func (a *App) Reclaim(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot reclaim raw rows")
	}
	defer closeStore()

	manager := retention.NewManager(store, store, nil, a.Config.Rollup.ParsedUnits(), a.Logger)
	deleted, err := manager.Reclaim(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "reclaimed %d raw row(s)\n", deleted)
	return nil
}
