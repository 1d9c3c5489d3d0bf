package storage

import (
	"strings"
	"time"
)

// TimestampLayout is the canonical day-start encoding persisted in the
// timestamp column. Lexicographic order of encoded values matches
// chronological order, so text-range predicates stay correct.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// RateSample is one persisted (day, asset, rate) observation. Rate is the
// per-block supply rate scaled by 1e18, kept as an opaque decimal string;
// the cache never interprets it.
type RateSample struct {
	Timestamp    time.Time
	AssetAddress string
	Rate         string
}

// EncodedTimestamp returns the sample day in the persisted text form.
func (s RateSample) EncodedTimestamp() string {
	return s.Timestamp.UTC().Format(TimestampLayout)
}

// NormalizeAddress canonicalises an on-chain address for use as a cache key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
