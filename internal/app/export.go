package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"bank-success-rates/internal/bucket"
	"bank-success-rates/internal/storage"
)

// Export renders a bank's historical success-rate series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Bank == "" {
		return errors.New("--bank is required")
	}
	if opts.Unit == "" {
		opts.Unit = bucket.Unit15Min.String()
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	filter, err := buildFilter(opts.Bank, opts.Unit, opts.From, opts.To)
	if err != nil {
		return err
	}
	if filter.To.IsZero() {
		filter.To = time.Now().UTC()
	}
	if filter.From.IsZero() {
		filter.From = filter.To.Add(-time.Duration(opts.MaxPoints) * filter.Unit.Duration())
	}
	if !filter.From.Before(filter.To) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	records, err := store.QueryAggregates(ctx, filter)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no aggregates found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting aggregates")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, opts.Bank, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.AggregateRecord, max int) []storage.AggregateRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.AggregateRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeSeriesCSV(path string, records []storage.AggregateRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"interval_start", "interval_unit", "destination_bank", "success_count", "total_count", "success_rate"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		rate := ""
		if r, ok := record.Rate(); ok {
			rate = r.StringFixed(6)
		}
		row := []string{
			record.IntervalStart.Format(time.RFC3339),
			record.IntervalUnit.String(),
			record.DestinationBank,
			formatUint(record.SuccessCount),
			formatUint(record.TotalCount),
			rate,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSeriesPNG(path, bank string, records []storage.AggregateRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(records))
	rates := make([]float64, 0, len(records))
	totals := make([]float64, 0, len(records))

	for _, record := range records {
		rate, ok := record.Rate()
		if !ok {
			continue
		}
		x = append(x, record.IntervalStart)
		rates = append(rates, rate.InexactFloat64())
		totals = append(totals, float64(record.TotalCount))
	}
	if len(x) < 2 {
		return errors.New("not enough data points with traffic to render a chart")
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Title:  bank + " success rate",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Success rate",
			ValueFormatter: rateFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Transactions",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Success rate",
				XValues: x,
				YValues: rates,
			},
			chart.TimeSeries{
				Name:    "Total transactions",
				XValues: x,
				YValues: totals,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
