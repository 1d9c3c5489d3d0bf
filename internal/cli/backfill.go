package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ctoken-rate-history/internal/app"
)

var backfillAssets []string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Warm the trailing rate window for one or more assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(backfillAssets) == 0 {
			return fmt.Errorf("--asset must be provided at least once")
		}

		opts := app.BackfillOptions{
			Assets: backfillAssets,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringArrayVar(&backfillAssets, "asset", nil, "cToken contract address (repeatable)")
}
