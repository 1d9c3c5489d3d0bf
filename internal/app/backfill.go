package app

import (
	"context"
	"errors"
)

// Backfill warms the trailing window for the given assets from the CLI.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if len(opts.Assets) == 0 {
		return errors.New("at least one asset address is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reconciler := a.newReconciler(store)

	processed := 0
	failed := 0
	for _, asset := range opts.Assets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		samples := reconciler.RatesForWindow(ctx, asset)
		if len(samples) != a.Config.Window.Days {
			failed++
			a.Logger.Error().Str("asset", asset).Int("samples", len(samples)).Msg("backfill incomplete")
			continue
		}
		processed++
		a.Logger.Info().Str("asset", asset).Int("samples", len(samples)).Msg("window backfilled")
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill finished")
	if failed > 0 {
		return errors.New("backfill failed for one or more assets; check the logs")
	}
	return nil
}
