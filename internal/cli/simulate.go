package cli

import (
	"github.com/spf13/cobra"

	"bank-success-rates/internal/app"
)

var (
	simulateBanks       []string
	simulateCount       int
	simulateFailureRate float64
	simulatePersist     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Push synthetic outcomes through the recorder and print the window rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Banks:       simulateBanks,
			Count:       simulateCount,
			FailureRate: simulateFailureRate,
			Persist:     simulatePersist,
		})
	},
}

func init() {
	simulateCmd.Flags().StringSliceVar(&simulateBanks, "bank", nil, "Destination bank(s) to simulate traffic for")
	simulateCmd.Flags().IntVar(&simulateCount, "count", 100, "Number of synthetic outcomes")
	simulateCmd.Flags().Float64Var(&simulateFailureRate, "failure-rate", 0.1, "Fraction of outcomes that fail")
	simulateCmd.Flags().BoolVar(&simulatePersist, "persist", false, "Also append outcomes to the raw store")
}
