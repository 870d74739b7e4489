package cli

import (
	"github.com/spf13/cobra"
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Run one retention pass over fully rolled-up raw rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reclaim(cmd.Context())
	},
}
