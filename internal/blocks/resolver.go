package blocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// averageBlockSeconds is the assumed mainnet block time used to interpolate
// block numbers between the anchor and the rest of the window. The estimate
// drifts for days far from the anchor; the historical reads only need state
// near the day boundary, not the exact boundary block.
const averageBlockSeconds = 13.5

// ErrResolution indicates the timestamp-to-block lookup failed or returned a
// payload without a numeric block number. The whole window backfill aborts,
// no partial block set is produced.
var ErrResolution = errors.New("blocks: block number resolution failed")

// AnchorResolver resolves a wall-clock timestamp to the closest block mined
// at or before it.
type AnchorResolver interface {
	AnchorBlock(ctx context.Context, ts time.Time) (int64, error)
}

// Options parameterise the explorer-backed resolver.
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Resolver converts wall-clock timestamps into approximate block numbers:
// one explorer lookup anchors the oldest day, every other day is estimated
// from the anchor with a constant block-time assumption.
type Resolver struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewResolver constructs an explorer-backed resolver.
func NewResolver(opts Options, logger zerolog.Logger) *Resolver {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.etherscan.io/api"
	}

	return &Resolver{
		opts:    opts,
		logger:  logger.With().Str("component", "block_resolver").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type blockNoResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// AnchorBlock resolves ts to the closest block mined at or before it
// (getblocknobytime with closest=before semantics).
func (r *Resolver) AnchorBlock(ctx context.Context, ts time.Time) (int64, error) {
	query := url.Values{}
	query.Set("module", "block")
	query.Set("action", "getblocknobytime")
	query.Set("timestamp", strconv.FormatInt(ts.UTC().Unix(), 10))
	query.Set("closest", "before")
	if r.opts.APIKey != "" {
		query.Set("apikey", r.opts.APIKey)
	}

	endpoint := r.baseURL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %w", ErrResolution, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: explorer lookup: %w", ErrResolution, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: read explorer response: %w", ErrResolution, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: explorer returned status %d: %s", ErrResolution, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded blockNoResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return 0, fmt.Errorf("%w: decode explorer response: %w", ErrResolution, err)
	}

	block, err := parseBlockNumber(decoded.Result)
	if err != nil {
		if decoded.Message != "" {
			return 0, fmt.Errorf("%w: explorer said %q: %w", ErrResolution, decoded.Message, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	r.logger.Debug().Time("timestamp", ts).Int64("block", block).Msg("anchor block resolved")
	return block, nil
}

// parseBlockNumber accepts the result field as either a JSON string or a
// bare number; explorer clones differ on the encoding.
func parseBlockNumber(raw json.RawMessage) (int64, error) {
	trimmed := strings.TrimSpace(string(raw))
	trimmed = strings.Trim(trimmed, `"`)
	if trimmed == "" || trimmed == "null" {
		return 0, errors.New("empty block number result")
	}

	block, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric block number result %q", trimmed)
	}
	if block < 0 {
		return 0, fmt.Errorf("negative block number result %d", block)
	}
	return block, nil
}

// EstimateBlocks interpolates a block number for each day from the anchor,
// assuming averageBlockSeconds per block. Days must not precede anchorTS.
// The returned slice is index-aligned with days and non-decreasing.
func EstimateBlocks(anchorBlock int64, anchorTS time.Time, days []time.Time) []int64 {
	estimates := make([]int64, len(days))
	for i, day := range days {
		delta := day.UTC().Sub(anchorTS.UTC()).Seconds()
		estimates[i] = anchorBlock + int64(delta/averageBlockSeconds)
	}
	return estimates
}

var _ AnchorResolver = (*Resolver)(nil)
