package cli

import (
	"github.com/spf13/cobra"

	"bank-success-rates/internal/app"
)

var rollupUnit string

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Run rollup catch-up cycles once, outside the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rollup(cmd.Context(), app.RollupOptions{Unit: rollupUnit})
	},
}

func init() {
	rollupCmd.Flags().StringVar(&rollupUnit, "unit", "", "Restrict to one interval unit (15min, hour, day)")
}
