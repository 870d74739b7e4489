package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/storage"
)

// Series prints committed aggregates matching the options.
func (a *App) Series(ctx context.Context, opts SeriesOptions) error {
	filter, err := buildFilter(opts.Bank, opts.Unit, opts.From, opts.To)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot query aggregates")
	}
	defer closeStore()

	records, err := store.QueryAggregates(ctx, filter)
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[len(records)-opts.Limit:]
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no aggregates found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Interval Start (UTC)\tUnit\tBank\tSuccess\tTotal\tRate")

	for _, record := range records {
		rate := "n/a"
		if r, ok := record.Rate(); ok {
			rate = r.StringFixed(4)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%s\n",
			record.IntervalStart.UTC().Format(time.RFC3339),
			record.IntervalUnit,
			record.DestinationBank,
			record.SuccessCount,
			record.TotalCount,
			rate,
		)
	}

	writer.Flush()
	return nil
}

func buildFilter(bank, unitName string, from, to *time.Time) (storage.AggregateFilter, error) {
	filter := storage.AggregateFilter{Bank: bank}
	if unitName != "" {
		unit, err := bucket.ParseUnit(unitName)
		if err != nil {
			return storage.AggregateFilter{}, err
		}
		filter.Unit = unit
	}
	if from != nil {
		filter.From = from.UTC()
	}
	if to != nil {
		filter.To = to.UTC()
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return storage.AggregateFilter{}, errors.New("from must be before to")
	}
	return filter, nil
}
