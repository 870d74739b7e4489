package cli

import (
	"time"

	"github.com/spf13/cobra"

	"bank-success-rates/internal/app"
)

var (
	rateBank     string
	rateLookback time.Duration
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Print a bank's sliding-window success rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rate(cmd.Context(), app.RateOptions{
			Bank:     rateBank,
			Lookback: rateLookback,
		})
	},
}

func init() {
	rateCmd.Flags().StringVar(&rateBank, "bank", "", "Destination bank identifier")
	rateCmd.Flags().DurationVar(&rateLookback, "lookback", 0, "Window length (defaults to config)")
}
