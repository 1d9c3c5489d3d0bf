package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"ctoken-rate-history/internal/config"
	"ctoken-rate-history/internal/storage"
)

// WindowProvider serves the trailing rate window for an asset. An empty
// series means the window is temporarily unavailable.
type WindowProvider interface {
	RatesForWindow(ctx context.Context, assetAddress string) []storage.RateSample
}

// Server exposes the rate history over HTTP and serves the static frontend.
type Server struct {
	cfg      config.ServerConfig
	provider WindowProvider
	logger   zerolog.Logger
	echo     *echo.Echo
}

// New constructs the HTTP server around a window provider.
func New(cfg config.ServerConfig, provider WindowProvider, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With().Str("component", "http_server").Logger(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if cfg.ReadTimeout > 0 {
		e.Server.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		e.Server.WriteTimeout = cfg.WriteTimeout
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/rates/thirty/:asset", s.handleRatesWindow)
	if cfg.StaticDir != "" {
		e.Static("/", cfg.StaticDir)
	}

	s.echo = e
	return s
}

// rateSampleDTO is the wire form of one persisted observation. Field names
// match the original public payload consumed by the frontend.
type rateSampleDTO struct {
	Timestamp    string `json:"timestamp"`
	AssetAddress string `json:"asset_address"`
	Rate         string `json:"rate"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRatesWindow(c echo.Context) error {
	asset := storage.NormalizeAddress(c.Param("asset"))
	if asset == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "asset address required"})
	}

	samples := s.provider.RatesForWindow(c.Request().Context(), asset)

	payload := make([]rateSampleDTO, 0, len(samples))
	for _, sample := range samples {
		payload = append(payload, rateSampleDTO{
			Timestamp:    sample.EncodedTimestamp(),
			AssetAddress: sample.AssetAddress,
			Rate:         sample.Rate,
		})
	}
	return c.JSON(http.StatusOK, payload)
}

// Start begins serving and blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	if err := s.echo.Start(s.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
