package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"ctoken-rate-history/internal/blocks"
	"ctoken-rate-history/internal/fetcher"
	"ctoken-rate-history/internal/storage"
	"ctoken-rate-history/internal/window"
)

// Options tune reconciler behaviour.
type Options struct {
	// WindowDays is the trailing window length; defaults to window.DefaultDays.
	WindowDays int
	// Now supplies the reference clock; defaults to time.Now. Injected so the
	// canonical day list is deterministic under test.
	Now func() time.Time
}

// Reconciler serves the trailing rate window for an asset: cached days come
// straight from the store, missing days are resolved to historical blocks,
// fetched on-chain, persisted, and merged into the response.
type Reconciler struct {
	store      storage.RateStore
	resolver   blocks.AnchorResolver
	fetcher    fetcher.HistoricalRateFetcher
	logger     zerolog.Logger
	windowDays int
	now        func() time.Time

	// flight collapses concurrent backfills for the same asset so two
	// simultaneous cache misses do not both hit the chain.
	flight singleflight.Group
}

// NewReconciler constructs the backfill reconciler.
func NewReconciler(store storage.RateStore, resolver blocks.AnchorResolver, rateFetcher fetcher.HistoricalRateFetcher, opts Options, logger zerolog.Logger) *Reconciler {
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = window.DefaultDays
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		store:      store,
		resolver:   resolver,
		fetcher:    rateFetcher,
		logger:     logger.With().Str("component", "reconciler").Logger(),
		windowDays: windowDays,
		now:        now,
	}
}

// RatesForWindow returns the complete trailing window for the asset, oldest
// day first. On any backfill failure it logs and returns an empty series;
// callers must treat an empty result as "temporarily unavailable", not as
// proof that no rate history exists.
func (r *Reconciler) RatesForWindow(ctx context.Context, assetAddress string) []storage.RateSample {
	asset := storage.NormalizeAddress(assetAddress)

	result, err, shared := r.flight.Do(asset, func() (any, error) {
		return r.backfill(ctx, asset)
	})
	if err != nil {
		r.logger.Error().Err(err).Str("asset", asset).Msg("window backfill failed")
		return []storage.RateSample{}
	}
	if shared {
		r.logger.Debug().Str("asset", asset).Msg("joined in-flight backfill")
	}

	return result.([]storage.RateSample)
}

func (r *Reconciler) backfill(ctx context.Context, asset string) ([]storage.RateSample, error) {
	days := window.DayTimestamps(r.now(), r.windowDays)

	cached, err := r.store.ListRatesInWindow(ctx, asset, days[0], days[len(days)-1], r.windowDays)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	cachedByDay := make(map[string]storage.RateSample, len(cached))
	for _, sample := range cached {
		cachedByDay[sample.EncodedTimestamp()] = sample
	}

	// Gap check is per distinct day, not row count: a store answering with
	// the right number of wrong rows must still trigger a backfill.
	var missing []int
	for i, day := range days {
		if _, ok := cachedByDay[day.Format(storage.TimestampLayout)]; !ok {
			missing = append(missing, i)
		}
	}

	if len(missing) == 0 {
		return assembleWindow(days, cachedByDay, nil), nil
	}

	anchorTS := days[0]
	anchorBlock, err := r.resolver.AnchorBlock(ctx, anchorTS)
	if err != nil {
		return nil, fmt.Errorf("resolve anchor block: %w", err)
	}

	estimates := blocks.EstimateBlocks(anchorBlock, anchorTS, days)
	reads := make([]fetcher.BlockRead, 0, len(missing))
	for _, i := range missing {
		reads = append(reads, fetcher.BlockRead{Index: i, BlockNumber: estimates[i]})
	}

	rates, err := r.fetcher.RatesAt(ctx, asset, reads)
	if err != nil {
		return nil, fmt.Errorf("fetch missing rates: %w", err)
	}

	fetched := make(map[string]storage.RateSample, len(missing))
	newRows := make([]storage.RateSample, 0, len(missing))
	for _, i := range missing {
		rate, ok := rates[i]
		if !ok {
			return nil, fmt.Errorf("fetch missing rates: no result for day %s", days[i].Format(storage.TimestampLayout))
		}
		sample := storage.RateSample{
			Timestamp:    days[i],
			AssetAddress: asset,
			Rate:         rate,
		}
		fetched[sample.EncodedTimestamp()] = sample
		newRows = append(newRows, sample)
	}

	if err := r.store.InsertRates(ctx, newRows); err != nil {
		return nil, fmt.Errorf("persist fetched rates: %w", err)
	}

	r.logger.Info().
		Str("asset", asset).
		Int("cached", len(cachedByDay)).
		Int("backfilled", len(newRows)).
		Int64("anchor_block", anchorBlock).
		Msg("window backfilled")

	return assembleWindow(days, cachedByDay, fetched), nil
}

// assembleWindow walks the canonical day list in order, taking each day's
// sample from the cache or the freshly fetched set. The output is ascending
// by construction and carries at most one sample per day.
func assembleWindow(days []time.Time, cachedByDay, fetched map[string]storage.RateSample) []storage.RateSample {
	out := make([]storage.RateSample, 0, len(days))
	for _, day := range days {
		key := day.Format(storage.TimestampLayout)
		if sample, ok := cachedByDay[key]; ok {
			out = append(out, sample)
			continue
		}
		if sample, ok := fetched[key]; ok {
			out = append(out, sample)
		}
	}
	return out
}
