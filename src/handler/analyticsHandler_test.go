package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"
)

type fakeCandleReader struct {
	rows     []model.OHLCVCrypto1m
	err      error
	interval time.Duration
}

func (f *fakeCandleReader) FetchRecent1m(_ context.Context, _ string, _ time.Time, _ int) ([]model.OHLCVCrypto1m, error) {
	return f.rows, f.err
}

func (f *fakeCandleReader) FetchRecentAgg(_ context.Context, _ string, _ time.Time, interval time.Duration, _ int) ([]model.OHLCVCrypto1m, error) {
	f.interval = interval
	return f.rows, f.err
}

func TestSpotHistoryHandler(t *testing.T) {
	rows := []model.OHLCVCrypto1m{{
		Symbol:   "BTC_USDT",
		Datetime: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Open:     decimal.NewFromInt(64000),
		High:     decimal.NewFromInt(64100),
		Low:      decimal.NewFromInt(63900),
		Close:    decimal.NewFromInt(64050),
		Volume:   decimal.NewFromInt(12),
	}}
	reader := &fakeCandleReader{rows: rows}
	h := SpotHistoryHandler(reader)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/spot?symbol=BTC_USDT", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Symbol   string                 `json:"symbol"`
		Interval string                 `json:"interval"`
		Candles  []model.OHLCVCrypto1m  `json:"candles"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Symbol != "BTC_USDT" || body.Interval != "1m" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if len(body.Candles) != 1 || body.Candles[0].Symbol != "BTC_USDT" {
		t.Fatalf("unexpected candles: %+v", body.Candles)
	}
}

func TestSpotHistoryHandlerAggregated(t *testing.T) {
	reader := &fakeCandleReader{}
	h := SpotHistoryHandler(reader)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/spot?symbol=BTC_USDT&interval=15m&limit=10", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if reader.interval != 15*time.Minute {
		t.Fatalf("expected the 15m roll-up path, got %v", reader.interval)
	}
}

func TestSpotHistoryHandlerValidation(t *testing.T) {
	h := SpotHistoryHandler(&fakeCandleReader{})

	cases := map[string]string{
		"missing symbol": "/api/analytics/spot",
		"bad limit":      "/api/analytics/spot?symbol=BTC_USDT&limit=zero",
		"bad interval":   "/api/analytics/spot?symbol=BTC_USDT&interval=banana",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestSpotHistoryHandlerInvalidInterval(t *testing.T) {
	h := SpotHistoryHandler(&fakeCandleReader{err: repository.ErrInvalidInterval})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/analytics/spot?symbol=BTC_USDT&interval=7m", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported interval, got %d", rr.Code)
	}
}
