package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"ctoken-rate-history/internal/storage"
)

const daysPerYear = 365

var mantissa = decimal.New(1, 18)

// Export writes one asset's trailing window as CSV and/or a PNG chart of the
// compounded supply APY. The window is served through the reconciler, so
// missing days are backfilled before export.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Asset == "" {
		return errors.New("--asset must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reconciler := a.newReconciler(store)
	samples := reconciler.RatesForWindow(ctx, opts.Asset)
	if len(samples) == 0 {
		return errors.New("window unavailable; check the logs")
	}

	a.Logger.Info().Str("asset", opts.Asset).Int("samples", len(samples)).Msg("exporting window")

	if opts.CSVPath != "" {
		if err := a.writeSamplesCSV(opts.CSVPath, samples); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := a.writeSamplesPNG(opts.PNGPath, samples); err != nil {
			return err
		}
	}

	return nil
}

// supplyAPY compounds the per-block rate into a yearly percentage:
// ((rate/1e18 × blocksPerDay + 1)^365 − 1) × 100.
func supplyAPY(rate string, blocksPerDay int) (float64, error) {
	perBlock, err := decimal.NewFromString(rate)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", rate, err)
	}

	perDay := perBlock.Div(mantissa).Mul(decimal.NewFromInt(int64(blocksPerDay)))
	return (math.Pow(perDay.InexactFloat64()+1, daysPerYear) - 1) * 100, nil
}

func (a *App) writeSamplesCSV(path string, samples []storage.RateSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "asset_address", "rate", "supply_apy_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		apy, err := supplyAPY(sample.Rate, a.Config.Export.BlocksPerDay)
		if err != nil {
			return err
		}
		record := []string{
			sample.EncodedTimestamp(),
			sample.AssetAddress,
			sample.Rate,
			fmt.Sprintf("%.2f", apy),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func (a *App) writeSamplesPNG(path string, samples []storage.RateSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	apys := make([]float64, len(samples))
	for i, sample := range samples {
		apy, err := supplyAPY(sample.Rate, a.Config.Export.BlocksPerDay)
		if err != nil {
			return err
		}
		x[i] = sample.Timestamp
		apys[i] = apy
	}

	apyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Supply APY (%)",
			ValueFormatter: apyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Supply APY",
				XValues: x,
				YValues: apys,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
