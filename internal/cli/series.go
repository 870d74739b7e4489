package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bank-success-rates/internal/app"
)

var (
	seriesBank  string
	seriesUnit  string
	seriesFrom  string
	seriesTo    string
	seriesLimit int
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "List committed aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SeriesOptions{
			Bank:  seriesBank,
			Unit:  seriesUnit,
			Limit: seriesLimit,
		}

		if seriesFrom != "" {
			from, err := time.Parse(time.RFC3339, seriesFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if seriesTo != "" {
			to, err := time.Parse(time.RFC3339, seriesTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Series(cmd.Context(), opts)
	},
}

func init() {
	seriesCmd.Flags().StringVar(&seriesBank, "bank", "", "Filter by destination bank")
	seriesCmd.Flags().StringVar(&seriesUnit, "unit", "", "Filter by interval unit (15min, hour, day)")
	seriesCmd.Flags().StringVar(&seriesFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	seriesCmd.Flags().StringVar(&seriesTo, "to", "", "End timestamp (RFC3339, exclusive)")
	seriesCmd.Flags().IntVar(&seriesLimit, "limit", 50, "Maximum rows to print (most recent)")
}
