package fetcher

import "context"

// BlockRead pairs a window position with the historical block to read at.
type BlockRead struct {
	Index       int
	BlockNumber int64
}

// HistoricalRateFetcher reads the per-block supply rate of an asset at a set
// of historical blocks and associates each result back to its window index.
type HistoricalRateFetcher interface {
	RatesAt(ctx context.Context, assetAddress string, reads []BlockRead) (map[int]string, error)
}
