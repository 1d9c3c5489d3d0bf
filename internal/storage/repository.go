package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")

	// ErrPersistence wraps every failure of the underlying store, read or
	// write, so callers can classify without inspecting pg error codes.
	ErrPersistence = errors.New("storage: persistence failure")
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS interest_rates (
        id BIGSERIAL PRIMARY KEY,
        timestamp TEXT NOT NULL,
        asset_address TEXT NOT NULL,
        rate TEXT NOT NULL
    );`

	// The unique index is the backstop against duplicate concurrent
	// backfills inserting the same day twice; insertRatesSQL ignores the
	// conflicting rows instead of failing the batch.
	createUniqueIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS interest_rates_asset_day_idx
        ON interest_rates (asset_address, timestamp);`

	listRatesInWindowSQL = `SELECT timestamp, asset_address, rate
    FROM interest_rates
    WHERE asset_address = $1
      AND timestamp BETWEEN $2 AND $3
    ORDER BY timestamp ASC
    LIMIT $4;`

	listRecentRatesSQL = `SELECT timestamp, asset_address, rate
    FROM interest_rates
    ORDER BY timestamp DESC, asset_address
    LIMIT $1;`

	countRatesSQL = `SELECT COUNT(*) FROM interest_rates;`
)

// RateStore defines the cache operations the reconciler depends on.
//
// InsertRates is append-only: samples are immutable once recorded, and the
// caller is expected not to re-submit days it already observed in a query.
// The store itself only guards against racing duplicate inserts via the
// unique (asset_address, timestamp) index.
type RateStore interface {
	ListRatesInWindow(ctx context.Context, assetAddress string, from, to time.Time, limit int) ([]RateSample, error)
	InsertRates(ctx context.Context, samples []RateSample) error
}

// Store provides pgx-backed access to the interest_rates table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the interest_rates table and its uniqueness index if
// they do not exist yet. Safe to run on every process start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("%w: create interest_rates table: %w", ErrPersistence, err)
	}
	if _, err := pool.Exec(ctx, createUniqueIndexSQL); err != nil {
		return fmt.Errorf("%w: create asset/day index: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListRatesInWindow returns cached samples for one asset inside the inclusive
// text-encoded timestamp range, ascending, capped at limit rows.
func (s *Store) ListRatesInWindow(ctx context.Context, assetAddress string, from, to time.Time, limit int) ([]RateSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRatesInWindowSQL,
		NormalizeAddress(assetAddress),
		from.UTC().Format(TimestampLayout),
		to.UTC().Format(TimestampLayout),
		limit,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: list rates in window: %w", ErrPersistence, queryErr)
	}
	defer rows.Close()

	samples := make([]RateSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanRateSample(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: list rates in window: %w", ErrPersistence, rows.Err())
	}
	return samples, nil
}

// InsertRates appends samples in a single multi-row statement. Rows whose
// (asset_address, timestamp) already exist are silently skipped.
func (s *Store) InsertRates(ctx context.Context, samples []RateSample) error {
	if len(samples) == 0 {
		return nil
	}

	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO interest_rates (timestamp, asset_address, rate) VALUES ")
	args := make([]any, 0, len(samples)*3)
	for i, sample := range samples {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "($%d,$%d,$%d)", i*3+1, i*3+2, i*3+3)
		args = append(args,
			sample.EncodedTimestamp(),
			NormalizeAddress(sample.AssetAddress),
			sample.Rate,
		)
	}
	sb.WriteString(" ON CONFLICT (asset_address, timestamp) DO NOTHING;")

	if _, execErr := pool.Exec(ctx, sb.String(), args...); execErr != nil {
		return fmt.Errorf("%w: insert rates: %w", ErrPersistence, execErr)
	}
	return nil
}

// ListRecentRates lists the most recently observed samples across all assets.
func (s *Store) ListRecentRates(ctx context.Context, limit int) ([]RateSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRatesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("%w: list recent rates: %w", ErrPersistence, queryErr)
	}
	defer rows.Close()

	samples := make([]RateSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanRateSample(rows.Scan)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: list recent rates: %w", ErrPersistence, rows.Err())
	}
	return samples, nil
}

// CountRates counts stored samples.
func (s *Store) CountRates(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRatesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("%w: count rates: %w", ErrPersistence, scanErr)
	}
	return count, nil
}

func scanRateSample(scan func(dest ...any) error) (RateSample, error) {
	var encodedTS, asset, rate string
	if err := scan(&encodedTS, &asset, &rate); err != nil {
		return RateSample{}, fmt.Errorf("%w: scan rate row: %w", ErrPersistence, err)
	}

	ts, err := time.Parse(TimestampLayout, encodedTS)
	if err != nil {
		return RateSample{}, fmt.Errorf("%w: parse timestamp %q: %w", ErrPersistence, encodedTS, err)
	}

	return RateSample{Timestamp: ts, AssetAddress: asset, Rate: rate}, nil
}

var _ RateStore = (*Store)(nil)
