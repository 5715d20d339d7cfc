package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"

	logger "github.com/sirupsen/logrus"
)

type pnlAggregator interface {
	SumPnl(ctx context.Context) (repository.PnlTotals, error)
}

type candleReader interface {
	FetchRecent1m(ctx context.Context, symbol string, to time.Time, limit int) ([]model.OHLCVCrypto1m, error)
	FetchRecentAgg(ctx context.Context, symbol string, to time.Time, interval time.Duration, limitAgg int) ([]model.OHLCVCrypto1m, error)
}

// KpisHandler aggregates realized/unrealized P&L over the whole position
// ledger and attaches the latest session's headline numbers.
func KpisHandler(positions pnlAggregator, sessions sessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		totals, err := positions.SumPnl(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to aggregate ledger P&L")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		var latestSummary any
		latest, err := sessions.FindLatest(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to load latest session for KPIs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if latest != nil {
			latestSummary = map[string]any{
				"id":          latest.ID,
				"strategy_id": latest.StrategyID,
				"status":      latest.Status,
				"pnl_summary": latest.PnlSummary,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"realized_pnl":   totals.Realized,
			"unrealized_pnl": totals.Unrealized,
			"net_pnl":        totals.Realized + totals.Unrealized,
			"latest_session": latestSummary,
		}); err != nil {
			logger.WithError(err).Error("failed to encode KPI response")
		}
	}
}

// DefaultKpisHandler wires the handler to the production repositories.
func DefaultKpisHandler() http.HandlerFunc {
	return KpisHandler(repository.NewPositionRepository(), repository.NewSessionRepository())
}

// SpotHistoryHandler serves recent underlying spot candles from the store
// the ohlcv_crypto command fills, optionally rolled up from 1m buckets.
// Query: symbol (required), interval (1m|5m|15m|30m|1h, default 1m),
// limit (default 200).
func SpotHistoryHandler(candles candleReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "symbol is required", http.StatusBadRequest)
			return
		}

		limit := 200
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		interval := r.URL.Query().Get("interval")
		now := time.Now().UTC()

		var rows []model.OHLCVCrypto1m
		var err error
		switch interval {
		case "", "1m":
			interval = "1m"
			rows, err = candles.FetchRecent1m(r.Context(), symbol, now, limit)
		default:
			var d time.Duration
			d, err = time.ParseDuration(interval)
			if err != nil {
				http.Error(w, "unparseable interval", http.StatusBadRequest)
				return
			}
			rows, err = candles.FetchRecentAgg(r.Context(), symbol, now, d, limit)
		}
		if errors.Is(err, repository.ErrInvalidInterval) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.WithError(err).WithField("symbol", symbol).
				Error("failed to load spot candles")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"symbol":   symbol,
			"interval": interval,
			"candles":  rows,
		}); err != nil {
			logger.WithError(err).Error("failed to encode spot history response")
		}
	}
}

// DefaultSpotHistoryHandler wires the handler to the production repository.
func DefaultSpotHistoryHandler() http.HandlerFunc {
	return SpotHistoryHandler(repository.NewOHLCVRepository())
}
