package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/controller"
	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
	"strangleexecutor/src/risk"
	"strangleexecutor/src/tp_sl"
)

// monitorPositions runs one monitoring cycle: refresh marks, recompute P&L,
// advance the trailing state, persist the snapshot and evaluate the exit
// rules. It returns true when an exit fired and the run should end.
func (e *StrategyEngine) monitorPositions(ctx context.Context, state *runtimeState) bool {
	positions, totals := e.refreshAnalytics(ctx, state)
	e.refreshSpot(state, false, false)

	now := e.now().UTC()
	e.mu.Lock()
	state.pnlHistory = append(state.pnlHistory, PnlPoint{
		T:          now,
		Total:      totals.Total,
		Realized:   totals.Realized,
		Unrealized: totals.Unrealized,
		Pct:        totals.TotalPct,
	})
	if limit := e.config.PnlHistoryLimit; limit > 0 && len(state.pnlHistory) > limit {
		state.pnlHistory = state.pnlHistory[len(state.pnlHistory)-limit:]
	}
	state.notional = totals.Notional

	state.trailing = tp_sl.Update(state.trailing, totals.Total, totals.TotalPct,
		state.config.TrailingSLEnable, state.config.ParsedTrailingRules())
	trailingSnap := state.trailing.Snapshot(state.config.TrailingSLEnable)
	for i := range state.session.Positions {
		if state.session.Positions[i].IsOpen() {
			state.session.Positions[i].TrailingSLState = copyMap(trailingSnap)
		}
	}

	limits := limitsPayload(state.config, state.trailing)
	spotSnap := state.spot.snapshot()

	e.updateEntrySummary(state, map[string]any{
		"latest_total_pnl": totals.Total,
		"last_monitor_at":  isoTime(now),
		"trailing_level":   state.trailing.LevelPct,
	})
	state.session.PnlSummary = pnlSummaryPayload(state, totals, now)

	status := StatusIdle
	if state.active {
		status = StatusLive
	}
	monitor := map[string]any{
		"generated_at":         isoTime(now),
		"positions":            positions,
		"totals":               totalsPayload(totals),
		"limits":               limits,
		"planned_exit_at":      isoTime(state.plannedExitAt),
		"time_to_exit_seconds": state.plannedExitAt.Sub(now).Seconds(),
		"trailing":             trailingSnap,
		"spot":                 spotSnap,
		"status":               status,
		"exit_reason":          stringOrNil(state.exitReason),
	}
	state.lastMonitor = monitor
	e.mergeRuntime(state, map[string]any{
		"monitor":  monitor,
		"trailing": trailingSnap,
		"spot":     spotSnap,
	})
	e.persistState(ctx, state, "monitor_positions")

	e.log.WithFields(logger.Fields{
		"strategy_id":    state.strategyID,
		"total_pnl":      totals.Total,
		"total_pnl_pct":  totals.TotalPct,
		"notional":       totals.Notional,
		"trailing_level": state.trailing.LevelPct,
	}).Info("Monitoring cycle complete")

	reason := checkExitConditions(state, now)
	e.mu.Unlock()

	if reason == "" {
		return false
	}

	e.log.WithFields(logger.Fields{
		"strategy_id":   state.strategyID,
		"reason":        reason,
		"total_pnl":     totals.Total,
		"total_pnl_pct": totals.TotalPct,
	}).Warn("Exit condition met")

	e.mu.Lock()
	state.exitReason = reason
	e.mu.Unlock()

	e.forceExit(ctx, state, reason)

	e.mu.Lock()
	state.active = false
	e.updateEntrySummary(state, map[string]any{
		"status":      StatusCooldown,
		"exit_reason": reason,
	})
	e.mu.Unlock()
	return true
}

// legView carries just enough of a ledger row to drive the quote fetch
// phase without holding the engine lock.
type legView struct {
	index     int
	symbol    string
	open      bool
	markKnown bool
}

// refreshAnalytics refreshes every leg's mark and P&L. Stream quotes are
// preferred; REST tickers cover open legs that have never seen a mark. The
// returned payloads are the per-position blobs of the runtime snapshot.
func (e *StrategyEngine) refreshAnalytics(ctx context.Context, state *runtimeState) ([]map[string]any, risk.PortfolioTotals) {
	e.mu.Lock()
	size := contractSizeOf(state.config)
	live := state.mode == ModeLive
	spotSymbol := state.spot.symbol
	views := make([]legView, 0, len(state.session.Positions))
	for i := range state.session.Positions {
		p := &state.session.Positions[i]
		views = append(views, legView{
			index:     i,
			symbol:    p.Symbol,
			open:      p.IsOpen(),
			markKnown: optFloat(p.Analytics["mark_price"]) != nil,
		})
	}
	e.mu.Unlock()

	var openSymbols []string
	for _, v := range views {
		if v.open {
			openSymbols = append(openSymbols, v.symbol)
		}
	}

	if e.quotes != nil {
		if len(openSymbols) > 0 {
			subscriptions := openSymbols
			if spotSymbol != "" {
				subscriptions = append(append([]string{}, openSymbols...), spotSymbol)
			}
			e.quotes.Start()
			e.quotes.SetSymbols(subscriptions)
		} else {
			e.quotes.Stop()
		}
	}

	quotes := map[string]model.Quote{}
	if e.quotes != nil {
		for _, symbol := range openSymbols {
			if q, err := e.quotes.Quote(symbol); err == nil {
				quotes[symbol] = q
			}
		}
	}

	restTickers := map[string]*externalmodel.DeltaTicker{}
	if live && e.client != nil {
		for _, v := range views {
			if !v.open || v.markKnown {
				continue
			}
			if q, ok := quotes[v.symbol]; ok && q.MarkPrice > 0 {
				continue
			}
			ticker, err := e.client.GetTicker(v.symbol)
			if err != nil {
				e.log.WithError(err).WithField("symbol", v.symbol).
					Debug("REST ticker fallback failed")
				continue
			}
			e.log.WithField("symbol", v.symbol).Warn("REST fallback used for option quote")
			restTickers[v.symbol] = ticker
		}
	}

	now := e.now().UTC()
	staleAfter := float64(e.config.QuoteStaleSeconds)

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		payloads     = make([]map[string]any, 0, len(views))
		streamQuotes int
		restQuotes   int
		staleSymbols []string
	)
	for _, v := range views {
		p := &state.session.Positions[v.index]
		analytics := copyMap(p.Analytics)
		legSize := toFloat(analytics["contract_size"], size)

		mark := optFloat(analytics["mark_price"])
		last := optFloat(analytics["last_price"])
		bid := optFloat(analytics["best_bid"])
		ask := optFloat(analytics["best_ask"])
		bidSize := optFloat(analytics["best_bid_size"])
		askSize := optFloat(analytics["best_ask_size"])
		tickerTS, _ := analytics["ticker_timestamp"].(string)

		var (
			sources  []string
			quoteAge *float64
		)
		if v.open {
			if q, ok := quotes[v.symbol]; ok {
				if q.MarkPrice > 0 {
					mark = floatPtr(q.MarkPrice)
				}
				if q.LastPrice > 0 {
					last = floatPtr(q.LastPrice)
				}
				if q.BestBid > 0 {
					bid = floatPtr(q.BestBid)
				}
				if q.BestAsk > 0 {
					ask = floatPtr(q.BestAsk)
				}
				if q.BidSize > 0 {
					bidSize = floatPtr(q.BidSize)
				}
				if q.AskSize > 0 {
					askSize = floatPtr(q.AskSize)
				}
				if !q.Timestamp.IsZero() {
					tickerTS = isoTime(q.Timestamp)
				}
				if !q.ReceivedAt.IsZero() {
					quoteAge = floatPtr(now.Sub(q.ReceivedAt).Seconds())
				}
				sources = append(sources, "stream")
				streamQuotes++
			}
			if t := restTickers[v.symbol]; t != nil {
				if price := t.MarkPrice.Float64(); price > 0 {
					mark = floatPtr(price)
				}
				if price := t.LastPrice.Float64(); price > 0 {
					last = floatPtr(price)
				}
				restBid := t.BestBidPrice.Float64()
				restAsk := t.BestAskPrice.Float64()
				restBidSize := t.BestBidSize.Float64()
				restAskSize := t.BestAskSize.Float64()
				if t.Quotes != nil {
					if x := t.Quotes.BestBid.Float64(); x > 0 {
						restBid = x
					}
					if x := t.Quotes.BestAsk.Float64(); x > 0 {
						restAsk = x
					}
					if x := t.Quotes.BidSize.Float64(); x > 0 {
						restBidSize = x
					}
					if x := t.Quotes.AskSize.Float64(); x > 0 {
						restAskSize = x
					}
				}
				if restBid > 0 {
					bid = floatPtr(restBid)
				}
				if restAsk > 0 {
					ask = floatPtr(restAsk)
				}
				if restBidSize > 0 {
					bidSize = floatPtr(restBidSize)
				}
				if restAskSize > 0 {
					askSize = floatPtr(restAskSize)
				}
				if ts := t.Timestamp.Float64(); ts > 0 {
					tickerTS = isoTime(epochTime(ts, now))
				}
				sources = append(sources, "rest")
				restQuotes++
			}
		}

		if mark != nil && *mark > 0 {
			state.markPrices[v.symbol] = *mark
		}

		markValue := p.EntryPrice
		if !v.open && p.ExitPrice != nil && *p.ExitPrice > 0 {
			markValue = *p.ExitPrice
		}
		if mark != nil && *mark > 0 {
			markValue = *mark
		}

		var pnlAbs float64
		if v.open {
			pnlAbs = risk.LegPnL(p.Side, p.EntryPrice, markValue, p.Quantity, legSize)
			p.UnrealizedPnl = pnlAbs
		} else {
			pnlAbs = p.RealizedPnl
		}
		legNotional := risk.LegNotional(p.EntryPrice, p.Quantity, legSize)
		pnlPct := risk.PnLPercent(pnlAbs, legNotional)

		if v.open && quoteAge != nil && staleAfter > 0 && *quoteAge > staleAfter {
			staleSymbols = append(staleSymbols, v.symbol)
		}

		analytics["mark_price"] = markValue
		analytics["pnl_abs"] = pnlAbs
		analytics["pnl_pct"] = pnlPct
		analytics["contract_size"] = legSize
		analytics["notional"] = legNotional
		analytics["updated_at"] = isoTime(now)
		if last != nil {
			analytics["last_price"] = *last
		}
		if bid != nil {
			analytics["best_bid"] = *bid
		}
		if ask != nil {
			analytics["best_ask"] = *ask
		}
		if bidSize != nil {
			analytics["best_bid_size"] = *bidSize
		}
		if askSize != nil {
			analytics["best_ask_size"] = *askSize
		}
		if tickerTS != "" {
			analytics["ticker_timestamp"] = tickerTS
		}
		p.Analytics = analytics

		status := "closed"
		direction := model.OrderSideBuy
		if v.open {
			status = "open"
		}
		if p.Side == model.PositionSideShort {
			direction = model.OrderSideSell
		}
		payloads = append(payloads, map[string]any{
			"symbol":            p.Symbol,
			"market_symbol":     p.Symbol,
			"exchange":          "Delta",
			"side":              p.Side,
			"direction":         direction,
			"entry_price":       p.EntryPrice,
			"exit_price":        numOrNil(p.ExitPrice),
			"quantity":          p.Quantity,
			"size":              p.Quantity,
			"contract_size":     legSize,
			"status":            status,
			"mark_price":        markValue,
			"current_price":     markValue,
			"last_price":        numOrNil(last),
			"best_bid":          numOrNil(bid),
			"best_ask":          numOrNil(ask),
			"best_bid_size":     numOrNil(bidSize),
			"best_ask_size":     numOrNil(askSize),
			"pnl_abs":           pnlAbs,
			"pnl_pct":           pnlPct,
			"notional":          legNotional,
			"entry_time":        isoTime(p.EntryTime),
			"exit_time":         isoTimePtr(p.ExitTime),
			"trailing":          p.TrailingSLState,
			"ticker_timestamp":  stringOrNil(tickerTS),
			"mark_timestamp":    stringOrNil(tickerTS),
			"quote_sources":     sources,
			"quote_age_seconds": numOrNil(quoteAge),
		})
	}

	totals := risk.Aggregate(state.session.Positions, size)

	if len(staleSymbols) > 0 {
		e.log.WithFields(logger.Fields{
			"symbols":           staleSymbols,
			"threshold_seconds": e.config.QuoteStaleSeconds,
		}).Warn("Stale quotes on open legs")
	}
	e.log.WithFields(logger.Fields{
		"stream_quotes": streamQuotes,
		"rest_quotes":   restQuotes,
		"open_legs":     len(openSymbols),
	}).Debug("Quote refresh cycle")

	return payloads, totals
}

// checkExitConditions evaluates the exit rules against the latest P&L
// sample, in fixed precedence: max loss, max profit, trailing stop,
// scheduled exit. Thresholds at or below zero are disabled; without a
// positive notional the percentage thresholds compare against absolute
// P&L. Caller holds e.mu.
func checkExitConditions(state *runtimeState, now time.Time) string {
	var total, pct float64
	if n := len(state.pnlHistory); n > 0 {
		total = state.pnlHistory[n-1].Total
		pct = state.pnlHistory[n-1].Pct
	}
	notional := resolveNotional(state)

	maxLoss := tp_sl.NormalizePercent(state.config.MaxLossPct)
	maxProfit := tp_sl.NormalizePercent(state.config.MaxProfitPct)

	if maxLoss > 0 {
		if notional > 0 {
			if pct <= -maxLoss {
				return ExitReasonMaxLoss
			}
		} else if total <= -maxLoss {
			return ExitReasonMaxLoss
		}
	}
	if maxProfit > 0 {
		if notional > 0 {
			if pct >= maxProfit {
				return ExitReasonMaxProfit
			}
		} else if total >= maxProfit {
			return ExitReasonMaxProfit
		}
	}
	if state.trailing.Active(state.config.TrailingSLEnable) && pct <= state.trailing.LevelPct {
		return ExitReasonTrailing
	}
	if !state.plannedExitAt.IsZero() && !now.Before(state.plannedExitAt) {
		return ExitReasonScheduled
	}
	return ""
}

// exitTarget is one open leg the forced exit must flatten.
type exitTarget struct {
	symbol   string
	quantity float64
}

// forceExit flattens every open leg and finalizes the session. Live legs
// are closed with reduce-only buys; legs the exchange would not close (and
// every leg of a simulated run) are marked closed at the last known mark.
// Idempotent: the second caller finds the session finalized and returns.
func (e *StrategyEngine) forceExit(ctx context.Context, state *runtimeState, reason string) {
	e.mu.Lock()
	if state.finalized {
		e.mu.Unlock()
		return
	}
	live := state.mode == ModeLive
	var targets []exitTarget
	for i := range state.session.Positions {
		p := &state.session.Positions[i]
		if p.IsOpen() && p.Quantity > 0 {
			targets = append(targets, exitTarget{symbol: p.Symbol, quantity: p.Quantity})
		}
	}
	e.mu.Unlock()

	e.log.WithFields(logger.Fields{
		"strategy_id": state.strategyID,
		"reason":      reason,
		"open_legs":   len(targets),
	}).Warn("Force exit initiated")

	if live && len(targets) > 0 && e.orders != nil {
		closed := e.closeLivePositions(ctx, state, targets)
		if len(closed) > 0 {
			e.mu.Lock()
			e.recordLiveOrders(ctx, state, closed)
			e.mu.Unlock()
		}
		if len(closed) < len(targets) {
			e.log.WithFields(logger.Fields{
				"requested": len(targets),
				"closed":    len(closed),
			}).Warn("Live close incomplete; will mark remaining positions using simulated exit")
		}
	}

	e.refreshSpot(state, false, true)

	e.mu.Lock()
	summary := e.finalizeSession(state, reason)
	e.persistState(ctx, state, "force_exit")
	e.mu.Unlock()

	fields := logger.Fields{
		"strategy_id": state.strategyID,
		"reason":      reason,
	}
	if totals, ok := summary["totals"].(map[string]any); ok {
		fields["total_pnl"] = totals["total_pnl"]
		fields["total_pnl_pct"] = totals["total_pnl_pct"]
	}
	e.log.WithFields(fields).Warn("Force exit complete")
}

// closeLivePositions sends a reduce-only buy for each target. Failures are
// logged and skipped; the finalizer settles whatever stays open.
func (e *StrategyEngine) closeLivePositions(ctx context.Context, state *runtimeState, targets []exitTarget) []liveLeg {
	var closed []liveLeg
	for _, target := range targets {
		contract := e.hydrateContract(target.symbol)
		if contract == nil {
			e.log.WithField("symbol", target.symbol).
				Warn("Unable to hydrate contract for live close")
			continue
		}
		outcome, err := e.orders.Execute(ctx, state.strategyID, contract, model.OrderSideBuy, target.quantity, true)
		if err != nil {
			e.log.WithError(err).WithField("symbol", target.symbol).
				Error("Live close order errored")
			controller.Capture(ctx, e.exceptionRep,
				"StrategyEngine", "executors", "orders.Execute", "error", err,
				map[string]interface{}{
					"strategy_id": state.strategyID,
					"symbol":      target.symbol,
					"reduce_only": true,
				})
			continue
		}
		if outcome == nil || !outcome.Success {
			e.log.WithField("symbol", target.symbol).
				Error("Live close order did not fill")
			continue
		}
		closed = append(closed, liveLeg{contract: contract, outcome: outcome, side: model.OrderSideBuy})
	}
	return closed
}

// finalizeSession closes out the ledger, computes the final totals and
// writes the run summary into the session metadata. Open legs settle at
// the best known price: recorded exit, then cached mark, then the
// analytics mark, then entry. Caller holds e.mu.
func (e *StrategyEngine) finalizeSession(state *runtimeState, reason string) map[string]any {
	now := e.now().UTC()
	session := state.session
	size := contractSizeOf(state.config)

	legs := make([]map[string]any, 0, len(session.Positions))
	for i := range session.Positions {
		p := &session.Positions[i]
		analytics := copyMap(p.Analytics)

		exitPrice := p.EntryPrice
		if m := optFloat(analytics["mark_price"]); m != nil && *m > 0 {
			exitPrice = *m
		}
		if cached := state.markPrices[p.Symbol]; cached > 0 {
			exitPrice = cached
		}
		if p.ExitPrice != nil && *p.ExitPrice > 0 {
			exitPrice = *p.ExitPrice
		}

		if p.IsOpen() {
			p.ExitPrice = floatPtr(exitPrice)
			t := now
			p.ExitTime = &t
			p.RealizedPnl = risk.LegPnL(p.Side, p.EntryPrice, exitPrice, p.Quantity, size)
			p.UnrealizedPnl = 0
		}

		legNotional := risk.LegNotional(p.EntryPrice, p.Quantity, size)
		pnlPct := risk.PnLPercent(p.RealizedPnl, legNotional)

		if _, ok := analytics["entry_time"]; !ok {
			analytics["entry_time"] = isoTime(p.EntryTime)
		}
		analytics["mark_price"] = exitPrice
		analytics["final_mark_price"] = exitPrice
		analytics["pnl_abs"] = p.RealizedPnl
		analytics["pnl_pct"] = pnlPct
		analytics["close_reason"] = reason
		analytics["updated_at"] = isoTime(now)
		analytics["exit_time"] = isoTimePtr(p.ExitTime)
		p.Analytics = analytics

		legs = append(legs, map[string]any{
			"symbol":        p.Symbol,
			"side":          p.Side,
			"entry_price":   p.EntryPrice,
			"exit_price":    numOrNil(p.ExitPrice),
			"quantity":      p.Quantity,
			"contract_size": size,
			"realized_pnl":  p.RealizedPnl,
			"pnl_pct":       pnlPct,
			"entry_time":    isoTime(p.EntryTime),
			"exit_time":     isoTimePtr(p.ExitTime),
		})
	}

	totals := risk.Aggregate(session.Positions, size)
	trailingSnap := state.trailing.Snapshot(state.config.TrailingSLEnable)
	spotSnap := state.spot.snapshot()

	history := make([]PnlPoint, len(state.pnlHistory))
	copy(history, state.pnlHistory)

	summary := map[string]any{
		"generated_at": isoTime(now),
		"exit_reason":  reason,
		"legs":         legs,
		"totals":       totalsPayload(totals),
		"pnl_history":  history,
		"trailing":     trailingSnap,
		"spot":         spotSnap,
	}

	pnlSummary := pnlSummaryPayload(state, totals, now)
	pnlSummary["exit_reason"] = reason
	session.PnlSummary = pnlSummary

	monitor := copyMap(state.lastMonitor)
	monitor["generated_at"] = isoTime(now)
	monitor["positions"] = fallbackPositionPayloads(session, size)
	monitor["totals"] = totalsPayload(totals)
	monitor["trailing"] = trailingSnap
	monitor["spot"] = spotSnap
	monitor["exit_reason"] = reason
	state.lastMonitor = monitor

	e.mergeRuntime(state, map[string]any{
		"monitor":     monitor,
		"trailing":    trailingSnap,
		"spot":        spotSnap,
		"exit_reason": reason,
	})
	metadata := session.SessionMetadata
	metadata["summary"] = summary
	metadata["legs_summary"] = legs
	session.SessionMetadata = metadata

	session.Status = model.SessionStatusStopped
	t := now
	session.DeactivatedAt = &t
	state.exitReason = reason
	state.finalized = true

	e.log.WithFields(logger.Fields{
		"strategy_id":   state.strategyID,
		"exit_reason":   reason,
		"total_pnl":     totals.Total,
		"total_pnl_pct": totals.TotalPct,
		"legs":          len(legs),
	}).Info("Session finalized")
	return summary
}

// pnlSummaryPayload renders the per-cycle P&L rollup stored on the session
// row. Caller holds e.mu.
func pnlSummaryPayload(state *runtimeState, totals risk.PortfolioTotals, now time.Time) map[string]any {
	return map[string]any{
		"realized":              totals.Realized,
		"unrealized":            totals.Unrealized,
		"total":                 totals.Total,
		"total_pnl":             totals.Total,
		"total_pnl_pct":         totals.TotalPct,
		"notional":              totals.Notional,
		"updated_at":            isoTime(now),
		"max_profit_seen":       state.trailing.MaxProfitSeen,
		"max_profit_seen_pct":   state.trailing.MaxProfitSeenPct,
		"max_drawdown_seen":     state.trailing.MaxDrawdownSeen,
		"max_drawdown_seen_pct": state.trailing.MaxDrawdownSeenPct,
		"trailing_level_pct":    state.trailing.LevelPct,
		"trailing_enabled":      state.config.TrailingSLEnable,
		"spot":                  state.spot.snapshot(),
	}
}
