package executors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/connectors"
	"strangleexecutor/src/controller"
	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/mapper"
	"strangleexecutor/src/model"
	"strangleexecutor/src/risk"
	"strangleexecutor/src/utils"
)

// liveLeg pairs a contract with what the order ladder did for it.
type liveLeg struct {
	contract *model.OptionContract
	outcome  *model.OrderStrategyOutcome
	side     string
}

// executeEntry opens the strangle: adopt existing exchange positions when
// there are any, otherwise select contracts and sell both legs. Selection
// failures abort the whole run; live execution failures downgrade the run
// to simulated fills instead.
func (e *StrategyEngine) executeEntry(ctx context.Context, state *runtimeState) error {
	e.log.WithField("strategy_id", state.strategyID).Info("Executing strategy entry")

	e.mu.Lock()
	e.updateEntrySummary(state, map[string]any{
		"status":           StatusEntering,
		"entry_started_at": isoTime(e.now().UTC()),
	})
	e.mergeRuntime(state, map[string]any{"status": StatusEntering})
	live := state.mode == ModeLive
	config := state.config
	e.mu.Unlock()

	skip, existing := e.shouldSkipEntry(state, live)
	if skip {
		e.adoptPositions(ctx, state, existing)
		return nil
	}

	underlying := strings.ToUpper(strings.TrimSpace(config.Underlying))
	expiryDisplay, expiryParam := e.entryExpiryFilter(config)
	e.mu.Lock()
	e.updateEntrySummary(state, map[string]any{
		"target_expiry": stringOrNil(expiryDisplay),
		"ticker_params": map[string]any{
			"underlying":  underlying,
			"expiry_date": stringOrNil(expiryParam),
		},
	})
	e.mu.Unlock()

	var tickers []externalmodel.DeltaTicker
	if e.client != nil {
		var err error
		e.log.WithFields(logger.Fields{
			"strategy_id":   state.strategyID,
			"underlying":    underlying,
			"target_expiry": expiryDisplay,
		}).Info("Fetching Delta option tickers")
		tickers, err = e.client.ListOptionTickers(underlying, expiryParam)
		if err != nil {
			e.log.WithError(err).WithField("strategy_id", state.strategyID).
				Error("Filtered ticker request failed; retrying without filters")
			tickers, err = e.client.ListTickers(nil)
			if err != nil {
				controller.Capture(ctx, e.exceptionRep,
					"StrategyEngine", "executors", "client.ListTickers", "error", err,
					map[string]interface{}{"strategy_id": state.strategyID})
				return fmt.Errorf("fetch tickers: %w", err)
			}
		} else if len(tickers) == 0 {
			e.log.WithFields(logger.Fields{
				"strategy_id":   state.strategyID,
				"underlying":    underlying,
				"target_expiry": expiryDisplay,
			}).Warn("Filtered ticker response empty; retrying without filters")
			if tickers, err = e.client.ListTickers(nil); err != nil {
				return fmt.Errorf("fetch tickers: %w", err)
			}
		}
	}

	selection, err := e.selector.SelectContracts(tickers, config, e.config.ExpiryBufferHours)
	if err != nil {
		return fmt.Errorf("contract selection: %w", err)
	}
	contracts := []*model.OptionContract{selection.Call, selection.Put}
	for _, contract := range contracts {
		e.log.WithFields(logger.Fields{
			"symbol":     contract.Symbol,
			"kind":       controller.OptionKindCode(contract.ContractType),
			"strike":     contract.Strike,
			"expiry":     contract.Expiry,
			"delta":      contract.Delta,
			"mid_price":  contract.MidPrice(),
			"tick_size":  contract.TickSize,
			"product_id": contract.ProductID,
		}).Info("Selected contract")
	}
	if selection.ExpiryMismatch {
		e.log.WithFields(logger.Fields{
			"call_expiry": selection.Call.Expiry,
			"put_expiry":  selection.Put.Expiry,
		}).Warn("Selected legs sit on different expiries")
	}

	selected := make([]map[string]any, 0, len(contracts))
	for _, contract := range contracts {
		selected = append(selected, serializeContract(contract))
	}
	e.mu.Lock()
	e.updateEntrySummary(state, map[string]any{
		"selected_contracts":     selected,
		"selected_expiry":        stringOrNil(selection.SelectedExpiry),
		"expiry_mismatch":        selection.ExpiryMismatch,
		"selection_generated_at": isoTime(e.now().UTC()),
	})
	e.mu.Unlock()

	quantity := float64(config.Quantity)
	liveEnabled := live
	if liveEnabled && (e.client == nil || !e.client.HasCredentials() || e.orders == nil) {
		e.log.WithField("strategy_id", state.strategyID).
			Warn("Live trading requested but Delta credentials are missing; falling back to simulated execution")
		liveEnabled = false
		e.downgradeToSimulation(state, "missing_credentials", "")
	}

	var legs []liveLeg
	if liveEnabled {
		for _, contract := range contracts {
			outcome, err := e.orders.Execute(ctx, state.strategyID, contract, model.OrderSideSell, quantity, false)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil && outcome == nil {
				reason := "order_error"
				if errors.Is(err, connectors.ErrAuthenticationFailed) {
					reason = "auth_failed"
				}
				e.log.WithError(err).WithFields(logger.Fields{
					"strategy_id": state.strategyID,
					"symbol":      contract.Symbol,
				}).Error("Live order placement errored; switching to simulated execution")
				controller.Capture(ctx, e.exceptionRep,
					"StrategyEngine", "executors", "orders.Execute", "error", err,
					map[string]interface{}{"strategy_id": state.strategyID, "symbol": contract.Symbol})
				liveEnabled = false
				e.downgradeToSimulation(state, reason, "")
				break
			}
			if err != nil || outcome == nil || !outcome.Success {
				mode := ""
				if outcome != nil {
					mode = outcome.Mode
				}
				e.log.WithFields(logger.Fields{
					"strategy_id": state.strategyID,
					"symbol":      contract.Symbol,
					"order_mode":  mode,
				}).Error("Live order strategy failed; switching to simulated execution")
				liveEnabled = false
				e.downgradeToSimulation(state, "live_order_failed", contract.Symbol)
				break
			}
			legs = append(legs, liveLeg{contract: contract, outcome: outcome, side: model.OrderSideSell})
		}
	}

	now := e.now().UTC()
	e.mu.Lock()
	var legSummaries []map[string]any
	if liveEnabled && len(legs) > 0 {
		e.recordLiveOrders(ctx, state, legs)
		legSummaries = liveLegSummaries(legs)
	} else {
		e.recordSimulatedOrders(ctx, state, contracts, quantity)
		legSummaries = simulatedLegSummaries(contracts, quantity)
	}
	e.mu.Unlock()

	e.refreshSpot(state, true, false)

	e.mu.Lock()
	state.active = true
	state.session.Status = model.SessionStatusActive
	if state.session.ActivatedAt == nil {
		t := now
		state.session.ActivatedAt = &t
	}
	e.updateEntrySummary(state, map[string]any{
		"status":             StatusLive,
		"entry_completed_at": isoTime(now),
		"legs":               legSummaries,
	})
	e.mergeRuntime(state, map[string]any{"status": StatusLive, "mode": state.mode})
	e.persistState(ctx, state, "execute_entry")
	e.mu.Unlock()
	return nil
}

// entryExpiryFilter resolves the expiry the ticker request should filter
// on: a valid explicit configuration date, else the buffered auto date. An
// invalid or past explicit date yields no filter; selection then rejects
// the run with a precise error instead of trading the wrong expiry.
func (e *StrategyEngine) entryExpiryFilter(config *model.TradingConfiguration) (display, param string) {
	loc := utils.ExchangeLocation()
	today := dayOf(e.now().In(loc))
	if config.ExpiryDate != nil && *config.ExpiryDate != "" {
		day, err := utils.ParseExpiryDate(strings.TrimSpace(*config.ExpiryDate), loc)
		if err != nil || dayOf(day).Before(today) {
			return "", ""
		}
		return day.Format("2006-01-02"), day.Format("02-01-2006")
	}
	day := dayOf(e.now().In(loc).Add(time.Duration(e.config.ExpiryBufferHours) * time.Hour))
	return day.Format("2006-01-02"), day.Format("02-01-2006")
}

// dayOf truncates to midnight in t's location.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// downgradeToSimulation flips the run mode and records why.
func (e *StrategyEngine) downgradeToSimulation(state *runtimeState, reason, failedSymbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state.mode = ModeSimulation
	updates := map[string]any{
		"mode":        ModeSimulation,
		"mode_reason": reason,
	}
	if failedSymbol != "" {
		updates["last_failed_symbol"] = failedSymbol
	}
	e.updateEntrySummary(state, updates)
	e.mergeRuntime(state, map[string]any{"mode": ModeSimulation})
}

// shouldSkipEntry checks the exchange for already-open positions before a
// live entry. A lookup failure aborts the live trade the safe way: skip
// with nothing to adopt, so no new orders go out.
func (e *StrategyEngine) shouldSkipEntry(state *runtimeState, live bool) (bool, []externalmodel.DeltaPosition) {
	if !live || e.client == nil || !e.client.HasCredentials() {
		return false, nil
	}
	positions, err := e.client.GetMarginedPositions()
	if err != nil {
		e.log.WithError(err).WithField("strategy_id", state.strategyID).
			Error("Unable to fetch Delta positions before entry; aborting live trade")
		controller.Capture(context.Background(), e.exceptionRep,
			"StrategyEngine", "executors", "client.GetMarginedPositions", "error", err,
			map[string]interface{}{"strategy_id": state.strategyID})
		return true, nil
	}

	var open []externalmodel.DeltaPosition
	for i := range positions {
		if math.Abs(positions[i].Size.Float64()) < 1e-9 {
			continue
		}
		open = append(open, positions[i])
	}
	if len(open) > 0 {
		e.log.WithFields(logger.Fields{
			"strategy_id":    state.strategyID,
			"position_count": len(open),
		}).Info("Skipping entry because existing Delta positions detected")
		return true, open
	}
	return false, nil
}

// adoptPositions folds already-open exchange positions into the session
// instead of selling new legs. Rows are matched by symbol: open ledger rows
// are updated in place, unknown symbols become fresh rows with the entry
// price hydrated from the ticker when the payload carries none.
func (e *StrategyEngine) adoptPositions(ctx context.Context, state *runtimeState, raws []externalmodel.DeltaPosition) {
	now := e.now().UTC()

	// Hydration needs the REST client; do it before taking the lock.
	fallbackMids := map[string]float64{}
	for i := range raws {
		raw := &raws[i]
		symbol := strings.ToUpper(strings.TrimSpace(raw.PositionSymbol()))
		if symbol == "" || raw.EffectiveEntryPrice() > 0 {
			continue
		}
		if _, seen := fallbackMids[symbol]; seen {
			continue
		}
		if contract := e.hydrateContract(symbol); contract != nil {
			fallbackMids[symbol] = contract.MidPrice()
		}
	}

	e.mu.Lock()
	session := state.session
	openIdx := map[string]int{}
	for i := range session.Positions {
		if session.Positions[i].IsOpen() {
			openIdx[session.Positions[i].Symbol] = i
		}
	}

	var (
		added         []model.PositionLedger
		addedSeen     = map[string]bool{}
		syncedSymbols []string
		legDetails    []map[string]any
	)
	for i := range raws {
		raw := &raws[i]
		symbol := strings.ToUpper(strings.TrimSpace(raw.PositionSymbol()))
		if symbol == "" {
			continue
		}
		size := raw.Size.Float64()
		if math.Abs(size) <= 1e-9 {
			continue
		}
		syncedSymbols = append(syncedSymbols, symbol)
		legDetails = append(legDetails, map[string]any{
			"symbol": symbol,
			"size":   size,
			"side":   raw.Side,
		})

		if idx, ok := openIdx[symbol]; ok {
			p := &session.Positions[idx]
			p.Quantity = math.Abs(size)
			if entry := raw.EffectiveEntryPrice(); entry > 0 {
				p.EntryPrice = entry
			}
			if raw.IsShort() {
				p.Side = model.PositionSideShort
			} else {
				p.Side = model.PositionSideLong
			}
			continue
		}
		if addedSeen[symbol] {
			continue
		}
		row := mapper.MapPositionToLedger(raw, session.ID, fallbackMids[symbol])
		if row == nil {
			continue
		}
		row.EntryTime = now
		added = append(added, *row)
		addedSeen[symbol] = true
	}
	session.Positions = append(session.Positions, added...)

	anyOpen := false
	for i := range session.Positions {
		if session.Positions[i].IsOpen() {
			anyOpen = true
			break
		}
	}
	if anyOpen {
		session.Status = model.SessionStatusActive
		if session.ActivatedAt == nil {
			t := now
			session.ActivatedAt = &t
		}
	}
	state.active = true
	e.updateEntrySummary(state, map[string]any{
		"status":                StatusLive,
		"entry_completed_at":    isoTime(now),
		"reason":                "existing_positions",
		"synced_position_count": len(raws),
		"synced_symbols":        syncedSymbols,
		"legs":                  legDetails,
	})
	e.mergeRuntime(state, map[string]any{"status": StatusLive})
	e.persistState(ctx, state, "sync_existing_positions")
	e.mu.Unlock()

	e.log.WithFields(logger.Fields{
		"strategy_id": state.strategyID,
		"adopted":     len(added),
		"symbols":     syncedSymbols,
	}).Info("Adopted existing Delta positions into session")
}

// hydrateContract rebuilds a contract view for a bare symbol from the
// single-ticker endpoint, with a product lookup covering a missing tick
// size.
func (e *StrategyEngine) hydrateContract(symbol string) *model.OptionContract {
	if e.client == nil {
		return nil
	}
	ticker, err := e.client.GetTicker(symbol)
	if err != nil {
		e.log.WithError(err).WithField("symbol", symbol).
			Warn("Unable to fetch ticker details for contract hydration")
		return nil
	}
	contract := mapper.MapTickerToContract(ticker)
	if contract == nil {
		return nil
	}
	if ticker.TickSize.Float64() <= 0 && contract.ProductID > 0 {
		if product, err := e.client.GetProduct(contract.ProductID); err == nil && product != nil {
			if tick := product.TickSize.Float64(); tick > 0 {
				contract.TickSize = tick
			}
		}
	}
	return contract
}

// recordSimulatedOrders writes one filled-at-mid order and one short
// position per contract. Caller holds e.mu.
func (e *StrategyEngine) recordSimulatedOrders(ctx context.Context, state *runtimeState, contracts []*model.OptionContract, quantity float64) {
	session := state.session
	now := e.now().UTC()
	size := contractSizeOf(state.config)

	for _, contract := range contracts {
		mid := contract.MidPrice()
		state.markPrices[contract.Symbol] = mid

		price := mid
		fill := mid
		session.Orders = append(session.Orders, model.OrderLedger{
			SessionID:   session.ID,
			OrderID:     fmt.Sprintf("%s-%s-%d", state.strategyID, contract.ContractType, contract.ProductID),
			Symbol:      contract.Symbol,
			Side:        model.OrderSideSell,
			OrderType:   model.OrderTypeLimit,
			Quantity:    quantity,
			Price:       &price,
			FillPrice:   &fill,
			Status:      model.OrderStateSimulated,
			RawResponse: map[string]any{"simulated": true},
		})
		session.Positions = append(session.Positions, model.PositionLedger{
			SessionID:       session.ID,
			Symbol:          contract.Symbol,
			Side:            model.PositionSideShort,
			EntryPrice:      mid,
			Quantity:        quantity,
			EntryTime:       now,
			TrailingSLState: map[string]any{"level": 0.0},
			Analytics: map[string]any{
				"mark_price":    mid,
				"pnl_abs":       0.0,
				"pnl_pct":       0.0,
				"contract_size": size,
				"updated_at":    isoTime(now),
			},
		})

		e.log.WithFields(logger.Fields{
			"symbol":       contract.Symbol,
			"side":         model.OrderSideSell,
			"filled_price": mid,
			"quantity":     quantity,
		}).Info("Recorded simulated order")
	}

	e.persistState(ctx, state, "record_simulated_orders")
}

// recordLiveOrders writes ledger rows for executed legs. Sells open a new
// short position; buys close the matching open row and realize its P&L.
// Caller holds e.mu.
func (e *StrategyEngine) recordLiveOrders(ctx context.Context, state *runtimeState, legs []liveLeg) {
	if len(legs) == 0 {
		return
	}
	session := state.session
	now := e.now().UTC()
	size := contractSizeOf(state.config)

	for _, leg := range legs {
		outcome := leg.outcome
		attempt := outcome.LastAttempt()

		orderID := ""
		orderType := model.OrderTypeLimit
		if attempt != nil {
			orderID = attempt.OrderID
			if attempt.OrderType != "" {
				orderType = attempt.OrderType
			}
		}
		if orderID == "" {
			orderID = fmt.Sprintf("%s-%d", state.strategyID, leg.contract.ProductID)
		}

		status := strings.ToLower(outcome.FinalStatus)
		if status == "" {
			if outcome.Success {
				status = model.OrderStateClosed
			} else {
				status = model.OrderStateError
			}
		}

		price := outcome.FillPrice
		if price <= 0 {
			price = leg.contract.MidPrice()
		}
		quantity := outcome.FilledSize
		if quantity <= 0 {
			quantity = float64(state.config.Quantity)
		}
		if quantity <= 0 {
			e.log.WithFields(logger.Fields{
				"symbol":      leg.contract.Symbol,
				"filled_size": outcome.FilledSize,
			}).Warn("Skipping ledger entry due to non-positive fill")
			continue
		}

		orderPrice := price
		fillPrice := price
		session.Orders = append(session.Orders, model.OrderLedger{
			SessionID: session.ID,
			OrderID:   orderID,
			Symbol:    leg.contract.Symbol,
			Side:      leg.side,
			OrderType: orderType,
			Quantity:  quantity,
			Price:     &orderPrice,
			FillPrice: &fillPrice,
			Status:    status,
			RawResponse: map[string]any{
				"mode":         outcome.Mode,
				"final_status": outcome.FinalStatus,
				"attempts":     outcome.Attempts,
			},
		})

		if leg.side == model.OrderSideSell {
			session.Positions = append(session.Positions, model.PositionLedger{
				SessionID:       session.ID,
				Symbol:          leg.contract.Symbol,
				Side:            model.PositionSideShort,
				EntryPrice:      price,
				Quantity:        quantity,
				EntryTime:       now,
				TrailingSLState: map[string]any{"level": 0.0},
				Analytics: map[string]any{
					"mark_price":    price,
					"pnl_abs":       0.0,
					"pnl_pct":       0.0,
					"contract_size": size,
					"updated_at":    isoTime(now),
				},
			})
			state.markPrices[leg.contract.Symbol] = price
		} else {
			closed := false
			for i := range session.Positions {
				p := &session.Positions[i]
				if p.Symbol != leg.contract.Symbol || !p.IsOpen() {
					continue
				}
				exit := price
				t := now
				p.ExitPrice = &exit
				p.ExitTime = &t
				p.RealizedPnl = risk.LegPnL(p.Side, p.EntryPrice, exit, p.Quantity, size)
				p.UnrealizedPnl = 0
				closed = true
				break
			}
			if !closed {
				e.log.WithField("symbol", leg.contract.Symbol).
					Warn("No matching open position found when recording exit order")
			}
		}

		e.log.WithFields(logger.Fields{
			"symbol":      leg.contract.Symbol,
			"side":        leg.side,
			"order_id":    orderID,
			"filled_size": outcome.FilledSize,
			"status":      status,
			"order_mode":  outcome.Mode,
			"attempts":    len(outcome.Attempts),
		}).Info("Recorded live order")
	}

	e.persistState(ctx, state, "record_live_orders")
}

func liveLegSummaries(legs []liveLeg) []map[string]any {
	out := make([]map[string]any, 0, len(legs))
	for _, leg := range legs {
		summary := serializeContract(leg.contract)
		summary["side"] = leg.side
		summary["filled_size"] = leg.outcome.FilledSize
		summary["order_mode"] = leg.outcome.Mode
		summary["success"] = leg.outcome.Success
		summary["attempts"] = len(leg.outcome.Attempts)
		summary["filled_price"] = leg.outcome.FillPrice
		summary["filled_limit_price"] = filledLimitPrice(leg.outcome)
		out = append(out, summary)
	}
	return out
}

func simulatedLegSummaries(contracts []*model.OptionContract, quantity float64) []map[string]any {
	out := make([]map[string]any, 0, len(contracts))
	for _, contract := range contracts {
		summary := serializeContract(contract)
		summary["side"] = model.OrderSideSell
		summary["filled_size"] = quantity
		summary["order_mode"] = ModeSimulation
		summary["success"] = true
		summary["attempts"] = 0
		summary["filled_price"] = contract.MidPrice()
		summary["filled_limit_price"] = contract.MidPrice()
		out = append(out, summary)
	}
	return out
}

// filledLimitPrice is the price of the last limit attempt that filled
// anything; nil when the fill came from the market fallback only.
func filledLimitPrice(outcome *model.OrderStrategyOutcome) any {
	for i := len(outcome.Attempts) - 1; i >= 0; i-- {
		a := outcome.Attempts[i]
		if a.OrderType == model.OrderTypeLimit && a.Filled > 0 && a.Price > 0 {
			return a.Price
		}
	}
	return nil
}
