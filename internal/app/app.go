package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ctoken-rate-history/internal/alerting"
	"ctoken-rate-history/internal/blocks"
	"ctoken-rate-history/internal/config"
	"ctoken-rate-history/internal/fetcher"
	"ctoken-rate-history/internal/scheduler"
	"ctoken-rate-history/internal/server"
	"ctoken-rate-history/internal/service"
	"ctoken-rate-history/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newReconciler(store storage.RateStore) *service.Reconciler {
	resolver := blocks.NewResolver(blocks.Options{
		BaseURL:   a.Config.Etherscan.BaseURL,
		APIKey:    a.Config.Etherscan.APIKey,
		Timeout:   a.Config.Etherscan.RequestTimeout,
		UserAgent: a.Config.Etherscan.UserAgent,
	}, a.Logger)

	historical := fetcher.NewHistorical(fetcher.HistoricalOptions{
		RPCURL:  a.Config.Ethereum.RPCURL,
		Timeout: a.Config.Ethereum.RequestTimeout,
	}, a.Logger)

	return service.NewReconciler(store, resolver, historical, service.Options{
		WindowDays: a.Config.Window.Days,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// Run starts the HTTP service and, when enabled, the scheduled cache refresh.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reconciler := a.newReconciler(store)
	srv := server.New(a.Config.Server, reconciler, a.Logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(srv.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.Config.Refresh.Enabled {
		sched := scheduler.New(scheduler.Options{
			Interval:     a.Config.Refresh.Interval,
			AlignToStart: true,
			StartupDelay: a.Config.Refresh.StartupDelay,
		}, a.Logger)
		notifier := a.newNotifier()

		group.Go(func() error {
			return sched.Run(groupCtx, a.refreshTick(reconciler, notifier))
		})
	}

	a.Logger.Info().Msg("starting rate history service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rate history service stopped")
	return nil
}

// refreshTick warms the window for each configured asset so the first
// request after midnight is a cache hit.
func (a *App) refreshTick(reconciler *service.Reconciler, notifier alerting.Notifier) scheduler.TickFunc {
	return func(ctx context.Context, bucket time.Time) error {
		failed := 0
		for _, asset := range a.Config.Refresh.Assets {
			samples := reconciler.RatesForWindow(ctx, asset)
			if len(samples) == a.Config.Window.Days {
				continue
			}

			failed++
			a.Logger.Warn().Str("asset", asset).Int("samples", len(samples)).Msg("scheduled refresh left window incomplete")
			if notifier != nil {
				note := alerting.Notification{
					Occurred:     bucket,
					AssetAddress: storage.NormalizeAddress(asset),
					WindowDays:   a.Config.Window.Days,
					Reason:       "window incomplete after refresh; see service logs",
				}
				if err := notifier.Notify(ctx, note); err != nil {
					a.Logger.Error().Err(err).Str("asset", asset).Msg("failed to dispatch refresh alert")
				}
			}
		}

		if failed > 0 {
			return errors.New("refresh incomplete for one or more assets")
		}
		return nil
	}
}

// BackfillOptions configure the backfill command.
type BackfillOptions struct {
	Assets []string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting a window.
type ExportOptions struct {
	Asset   string
	CSVPath string
	PNGPath string
}
