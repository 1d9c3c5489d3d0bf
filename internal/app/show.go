package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// Show prints the most recently observed samples across all assets.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	samples, err := store.ListRecentRates(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day (UTC)\tAsset\tRate (per block, 1e18)")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			sample.Timestamp.UTC().Format("2006-01-02"),
			sample.AssetAddress,
			sample.Rate,
		)
	}

	writer.Flush()
	return nil
}
