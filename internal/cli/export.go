package cli

import (
	"github.com/spf13/cobra"

	"ctoken-rate-history/internal/app"
)

var (
	exportAsset string
	exportCSV   string
	exportPNG   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an asset's rate window as CSV and/or an APY chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Asset:   exportAsset,
			CSVPath: exportCSV,
			PNGPath: exportPNG,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportAsset, "asset", "", "cToken contract address")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "Write the window to this CSV file")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "Render the APY chart to this PNG file")
}
