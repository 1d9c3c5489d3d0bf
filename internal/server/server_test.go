package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ctoken-rate-history/internal/config"
	"ctoken-rate-history/internal/storage"
)

type fakeProvider struct {
	samples   []storage.RateSample
	lastAsset string
}

func (f *fakeProvider) RatesForWindow(_ context.Context, asset string) []storage.RateSample {
	f.lastAsset = asset
	return f.samples
}

func newTestServer(provider WindowProvider) *Server {
	return New(config.ServerConfig{ListenAddr: ":0"}, provider, zerolog.Nop())
}

func TestRatesWindowResponse(t *testing.T) {
	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{samples: []storage.RateSample{
		{Timestamp: day, AssetAddress: "0xabc", Rate: "11000000000"},
		{Timestamp: day.AddDate(0, 0, 1), AssetAddress: "0xabc", Rate: "12000000000"},
	}}
	srv := newTestServer(provider)

	req := httptest.NewRequest(http.MethodGet, "/rates/thirty/0xABC", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if provider.lastAsset != "0xabc" {
		t.Fatalf("asset must be lowercase-normalised before lookup, got %q", provider.lastAsset)
	}

	var payload []map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(payload))
	}
	if payload[0]["timestamp"] != "2026-08-26T00:00:00.000Z" {
		t.Fatalf("timestamp must be day-start ISO-8601, got %q", payload[0]["timestamp"])
	}
	if payload[0]["rate"] != "11000000000" || payload[0]["asset_address"] != "0xabc" {
		t.Fatalf("unexpected sample payload: %#v", payload[0])
	}
}

func TestRatesWindowEmptySeries(t *testing.T) {
	srv := newTestServer(&fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/rates/thirty/0xabc", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("an unavailable window is still a 200 with an empty list, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty JSON array, got %s", body)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
