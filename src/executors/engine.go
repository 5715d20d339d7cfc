package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/connectors"
	"strangleexecutor/src/controller"
	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"
	"strangleexecutor/src/risk"
	"strangleexecutor/src/strategy"
	"strangleexecutor/src/tp_sl"
	"strangleexecutor/src/utils"
)

var (
	ErrAlreadyRunning       = errors.New("strategy already running")
	ErrNotRunning           = errors.New("no active strategy")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Execution modes the engine reports.
const (
	ModeLive       = "live"
	ModeSimulation = "simulation"
)

// Exit reasons recorded on the session and surfaced by the runtime snapshot.
const (
	ExitReasonMaxLoss   = "max_loss"
	ExitReasonMaxProfit = "max_profit"
	ExitReasonTrailing  = "trailing_sl"
	ExitReasonScheduled = "scheduled_exit"
	ExitReasonPanic     = "panic_close"
	ExitReasonStop      = "external_stop"
	ExitReasonForced    = "forced_exit"
)

// Entry/runtime statuses, in lifecycle order.
const (
	StatusIdle     = "idle"
	StatusWaiting  = "waiting"
	StatusEntering = "entering"
	StatusLive     = "live"
	StatusCooldown = "cooldown"
)

// -----------------------------
// A) DEPENDENCY SURFACES
// -----------------------------

// exchangeAPI is the slice of the Delta REST client the engine drives
// directly. Order placement goes through orderExecutor instead.
type exchangeAPI interface {
	HasCredentials() bool
	ListOptionTickers(underlying, expiry string) ([]externalmodel.DeltaTicker, error)
	ListTickers(symbols []string) ([]externalmodel.DeltaTicker, error)
	GetTicker(symbol string) (*externalmodel.DeltaTicker, error)
	GetProduct(productID int64) (*externalmodel.DeltaProduct, error)
	GetMarginedPositions() ([]externalmodel.DeltaPosition, error)
}

// orderExecutor runs the limit-ladder/market-fallback strategy for one leg.
type orderExecutor interface {
	Execute(ctx context.Context, strategyID string, contract *model.OptionContract, side string, quantity float64, reduceOnly bool) (*model.OrderStrategyOutcome, error)
}

// quoteFeed is the streaming quote cache the monitor reads marks from.
type quoteFeed interface {
	Start()
	Stop()
	SetSymbols(symbols []string)
	Quote(symbol string) (model.Quote, error)
}

type sessionStore interface {
	Create(ctx context.Context, session *model.StrategySession) error
	Update(ctx context.Context, session *model.StrategySession) error
}

type positionStore interface {
	Create(ctx context.Context, position *model.PositionLedger) error
	Update(ctx context.Context, position *model.PositionLedger) error
}

type orderStore interface {
	Create(ctx context.Context, order *model.OrderLedger) error
}

// -----------------------------
// B) RUNTIME STATE
// -----------------------------

// PnlPoint is one monitoring-cycle P&L sample.
type PnlPoint struct {
	T          time.Time `json:"t"`
	Total      float64   `json:"total"`
	Realized   float64   `json:"realized"`
	Unrealized float64   `json:"unrealized"`
	Pct        float64   `json:"pct"`
}

// runtimeState is everything one strategy run carries between cycles. It is
// owned by the run goroutine; every access from outside goes through e.mu.
type runtimeState struct {
	strategyID string
	config     *model.TradingConfiguration
	session    *model.StrategySession

	mode   string
	active bool

	scheduledEntryAt time.Time
	plannedExitAt    time.Time

	entrySummary map[string]any
	exitReason   string
	finalized    bool

	pnlHistory []PnlPoint
	markPrices map[string]float64
	trailing   tp_sl.TrailingState
	notional   float64

	lastMonitor map[string]any
	spot        spotState

	startedAt time.Time
}

// StrategyEngine owns the trading loop: one goroutine that waits for the
// entry window, opens (or adopts) the strangle, monitors it and flattens it.
// Start/Stop/Panic and the snapshot readers are safe for concurrent use.
type StrategyEngine struct {
	config Config
	log    *logger.Entry

	client   exchangeAPI
	quotes   quoteFeed
	orders   orderExecutor
	selector *strategy.Selector

	sessionRep   sessionStore
	positionRep  positionStore
	orderRep     orderStore
	exceptionRep *repository.ExceptionRepository

	now func() time.Time

	mu     sync.Mutex
	state  *runtimeState
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStrategyEngine(
	client *connectors.DeltaClient,
	quotes *connectors.OptionQuoteStream,
	orders *controller.DeltaOrderController,
	log *logger.Entry,
) *StrategyEngine {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	e := &StrategyEngine{
		config:       GetConfig(),
		log:          log,
		selector:     strategy.NewSelector(log),
		sessionRep:   repository.NewSessionRepository(),
		positionRep:  repository.NewPositionRepository(),
		orderRep:     repository.NewOrderRepository(),
		exceptionRep: repository.NewExceptionRepository(),
		now:          time.Now,
	}
	// Assign through the guards so nil concrete values stay nil interfaces
	// and the credential/simulation checks keep working.
	if client != nil {
		e.client = client
	}
	if quotes != nil {
		e.quotes = quotes
	}
	if orders != nil {
		e.orders = orders
	}
	return e
}

// -----------------------------
// C) LIFECYCLE
// -----------------------------

// Start validates the configuration, creates the session row and launches
// the trading loop. The strategy id of the new run is returned.
func (e *StrategyEngine) Start(ctx context.Context, config *model.TradingConfiguration) (string, error) {
	if config == nil {
		return "", fmt.Errorf("%w: configuration is nil", ErrInvalidConfiguration)
	}
	if err := config.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		return "", ErrAlreadyRunning
	}

	now := e.now().UTC()
	strategyID := "delta-strangle-" + now.Format("20060102150405")

	loc := utils.ExchangeLocation()
	tradeAt, _ := model.ParseTimeOfDay(config.TradeTimeIST)
	exitAt, _ := model.ParseTimeOfDay(config.ExitTimeIST)
	scheduledEntry := utils.NextOccurrence(now, tradeAt.Hour, tradeAt.Minute, loc)
	plannedExit := utils.SameDayOrNext(scheduledEntry, exitAt.Hour, exitAt.Minute, loc)

	mode := ModeSimulation
	if e.config.LiveTrading {
		mode = ModeLive
	}

	state := &runtimeState{
		strategyID:       strategyID,
		config:           config,
		mode:             mode,
		scheduledEntryAt: scheduledEntry,
		plannedExitAt:    plannedExit,
		entrySummary: map[string]any{
			"status":             StatusWaiting,
			"scheduled_entry_at": isoTime(scheduledEntry),
			"mode":               mode,
		},
		markPrices: map[string]float64{},
		startedAt:  now,
	}

	session := &model.StrategySession{
		StrategyID:     strategyID,
		Status:         model.SessionStatusCreated,
		ConfigSnapshot: config.Snapshot(),
		SessionMetadata: map[string]any{
			"config_id": config.ID,
		},
	}
	state.session = session
	e.mergeRuntime(state, map[string]any{
		"status":             StatusWaiting,
		"mode":               mode,
		"scheduled_entry_at": isoTime(scheduledEntry),
		"planned_exit_at":    isoTime(plannedExit),
		"entry":              copyMap(state.entrySummary),
	})

	if err := e.sessionRep.Create(ctx, session); err != nil {
		return "", fmt.Errorf("create strategy session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.state = state
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(runCtx, state, e.done)

	e.log.WithFields(logger.Fields{
		"strategy_id":        strategyID,
		"session_id":         session.ID,
		"mode":               mode,
		"scheduled_entry_at": scheduledEntry,
		"planned_exit_at":    plannedExit,
	}).Info("Strategy started")
	return strategyID, nil
}

// Stop signals the loop and waits for it to flatten and finalize. Open
// positions are force-exited on the way out.
func (e *StrategyEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return ErrNotRunning
	}
	if e.state.exitReason == "" {
		e.state.exitReason = ExitReasonStop
	}
	cancel := e.cancel
	done := e.done
	strategyID := e.state.strategyID
	e.mu.Unlock()

	e.log.WithField("strategy_id", strategyID).Info("Stopping strategy")
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Panic flattens immediately: it pins the exit reason to panic_close and
// runs the same forced-exit teardown as Stop, but is reported distinctly.
func (e *StrategyEngine) Panic(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		e.log.Info("Panic close requested but no strategy is running")
		return "", ErrNotRunning
	}
	state := e.state
	strategyID := state.strategyID
	state.exitReason = ExitReasonPanic
	state.entrySummary["panic_triggered_at"] = isoTime(e.now().UTC())
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	e.log.WithField("strategy_id", strategyID).Warn("Panic close invoked")
	cancel()
	select {
	case <-done:
		return strategyID, nil
	case <-ctx.Done():
		return strategyID, ctx.Err()
	}
}

// Running reports whether a strategy loop is active.
func (e *StrategyEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != nil
}

// -----------------------------
// D) CONTROL LOOP
// -----------------------------

func (e *StrategyEngine) run(ctx context.Context, state *runtimeState, done chan struct{}) {
	defer close(done)
	defer e.finish(state)

	e.log.WithFields(logger.Fields{
		"strategy_id":      state.strategyID,
		"monitor_interval": e.config.MonitorInterval,
	}).Info("Trading loop started")

	for ctx.Err() == nil {
		now := e.now().UTC()

		e.mu.Lock()
		active := state.active
		entryDue := !now.Before(state.scheduledEntryAt)
		e.mu.Unlock()

		if !active {
			if !entryDue {
				if !sleepCtx(ctx, e.config.EntryPollInterval) {
					return
				}
				continue
			}
			if err := e.executeEntry(ctx, state); err != nil {
				e.log.WithError(err).WithField("strategy_id", state.strategyID).
					Error("Strategy entry failed; ending run")
				controller.Capture(ctx, e.exceptionRep,
					"StrategyEngine", "executors", "executeEntry", "error", err,
					map[string]interface{}{"strategy_id": state.strategyID})
				return
			}
		}

		if exited := e.monitorPositions(ctx, state); exited {
			return
		}
		if !sleepCtx(ctx, e.config.MonitorInterval) {
			return
		}
	}
}

// finish runs once per strategy, whatever ended the loop. It performs the
// cooldown work with a fresh context because the loop context is usually
// already cancelled and open positions must still be closed.
func (e *StrategyEngine) finish(state *runtimeState) {
	ctx := context.Background()

	e.mu.Lock()
	reason := state.exitReason
	if reason == "" {
		reason = ExitReasonForced
	}
	needsExit := !state.finalized
	e.mu.Unlock()

	if needsExit {
		e.forceExit(ctx, state, reason)
	}

	e.mu.Lock()
	state.active = false
	e.updateEntrySummary(state, map[string]any{
		"status":            StatusCooldown,
		"exit_reason":       state.exitReason,
		"exit_triggered_at": isoTime(e.now().UTC()),
	})
	monitor := copyMap(state.lastMonitor)
	monitor["status"] = StatusCooldown
	monitor["exit_reason"] = state.exitReason
	monitor["generated_at"] = isoTime(e.now().UTC())
	state.lastMonitor = monitor
	e.mergeRuntime(state, map[string]any{
		"status":  StatusCooldown,
		"monitor": monitor,
	})
	e.persistState(ctx, state, "finish")
	e.mu.Unlock()

	if e.quotes != nil {
		e.quotes.Stop()
	}

	e.mu.Lock()
	e.state = nil
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	e.log.WithFields(logger.Fields{
		"strategy_id": state.strategyID,
		"exit_reason": state.exitReason,
	}).Info("Trading loop finished")
}

// -----------------------------
// E) SNAPSHOTS
// -----------------------------

// Status is the compact heartbeat payload.
func (e *StrategyEngine) Status() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return map[string]any{"status": StatusIdle}
	}
	history := e.state.pnlHistory
	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	tail := make([]PnlPoint, len(history))
	copy(tail, history)
	return map[string]any{
		"status":      "running",
		"strategy_id": e.state.strategyID,
		"mode":        e.state.mode,
		"session_id":  e.state.session.ID,
		"started_at":  isoTime(e.state.startedAt),
		"pnl_history": tail,
	}
}

// RuntimeSnapshot assembles the full dashboard view of the current run.
// When nothing is running it returns the idle shape with zero totals; the
// service layer overlays persisted session metadata in that case.
func (e *StrategyEngine) RuntimeSnapshot() map[string]any {
	now := e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.state
	if state == nil {
		return idleRuntimeSnapshot(now)
	}

	summary := copyMap(state.lastMonitor)

	positions, havePositions := summary["positions"].([]map[string]any)
	totals, haveTotals := summary["totals"].(map[string]any)
	limits, haveLimits := summary["limits"].(map[string]any)

	exitReason := state.exitReason
	if r, ok := summary["exit_reason"].(string); ok && r != "" {
		exitReason = r
	}

	size := contractSizeOf(state.config)
	if !havePositions {
		positions = fallbackPositionPayloads(state.session, size)
	}
	if !haveTotals {
		t := risk.Aggregate(state.session.Positions, size)
		totals = totalsPayload(t)
	}
	state.notional = toFloat(totals["notional"], 0)
	if !haveLimits {
		limits = limitsPayload(state.config, state.trailing)
	}

	timeToEntry := state.scheduledEntryAt.Sub(now).Seconds()
	timeToExit := state.plannedExitAt.Sub(now).Seconds()

	trailing, ok := summary["trailing"].(map[string]any)
	if !ok {
		trailing = state.trailing.Snapshot(state.config.TrailingSLEnable)
	}
	spot, ok := summary["spot"].(map[string]any)
	if !ok {
		spot = state.spot.snapshot()
	}

	generatedAt := isoTime(now)
	if g, ok := summary["generated_at"].(string); ok && g != "" {
		generatedAt = g
	}

	entryStatus := StatusWaiting
	if s, ok := state.entrySummary["status"].(string); ok {
		switch s {
		case StatusWaiting, StatusEntering, StatusLive, StatusCooldown:
			entryStatus = s
		}
	}
	status := entryStatus
	if state.active {
		status = StatusLive
	}

	return map[string]any{
		"status":       status,
		"mode":         state.mode,
		"active":       state.active,
		"strategy_id":  state.strategyID,
		"session_id":   state.session.ID,
		"generated_at": generatedAt,
		"schedule": map[string]any{
			"scheduled_entry_at":    isoTime(state.scheduledEntryAt),
			"time_to_entry_seconds": timeToEntry,
			"planned_exit_at":       isoTime(state.plannedExitAt),
			"time_to_exit_seconds":  timeToExit,
		},
		"entry":       copyMap(state.entrySummary),
		"positions":   positions,
		"totals":      totals,
		"limits":      limits,
		"trailing":    trailing,
		"spot":        spot,
		"exit_reason": stringOrNil(exitReason),
		"config":      configSummary(state.config),
	}
}

func idleRuntimeSnapshot(now time.Time) map[string]any {
	return map[string]any{
		"status":       StatusIdle,
		"mode":         nil,
		"active":       false,
		"strategy_id":  nil,
		"session_id":   nil,
		"generated_at": isoTime(now),
		"schedule": map[string]any{
			"scheduled_entry_at":    nil,
			"time_to_entry_seconds": nil,
			"planned_exit_at":       nil,
			"time_to_exit_seconds":  nil,
		},
		"entry":     nil,
		"positions": []map[string]any{},
		"totals": map[string]any{
			"realized": 0.0, "unrealized": 0.0, "total_pnl": 0.0,
			"notional": 0.0, "total_pnl_pct": 0.0,
		},
		"limits": map[string]any{
			"max_profit_pct": 0.0, "max_loss_pct": 0.0, "effective_loss_pct": 0.0,
			"trailing_enabled": false, "trailing_level_pct": 0.0,
		},
		"trailing": tp_sl.TrailingState{}.Snapshot(false),
		"spot": map[string]any{
			"entry": nil, "exit": nil, "last": nil,
			"high": nil, "low": nil, "updated_at": nil,
		},
		"exit_reason": nil,
		"config":      nil,
	}
}

// fallbackPositionPayloads renders positions straight from the ledger rows,
// for snapshots taken before the first monitoring cycle.
func fallbackPositionPayloads(session *model.StrategySession, defaultSize float64) []map[string]any {
	out := make([]map[string]any, 0, len(session.Positions))
	for i := range session.Positions {
		p := &session.Positions[i]
		analytics := p.Analytics
		size := toFloat(analytics["contract_size"], defaultSize)
		status := "closed"
		if p.IsOpen() {
			status = "open"
		}
		out = append(out, map[string]any{
			"symbol":        p.Symbol,
			"exchange":      "Delta",
			"side":          p.Side,
			"entry_price":   p.EntryPrice,
			"exit_price":    numOrNil(p.ExitPrice),
			"quantity":      p.Quantity,
			"status":        status,
			"mark_price":    analytics["mark_price"],
			"last_price":    analytics["last_price"],
			"best_bid":      analytics["best_bid"],
			"best_ask":      analytics["best_ask"],
			"pnl_abs":       analytics["pnl_abs"],
			"pnl_pct":       analytics["pnl_pct"],
			"entry_time":    isoTime(p.EntryTime),
			"exit_time":     isoTimePtr(p.ExitTime),
			"trailing":      p.TrailingSLState,
			"contract_size": size,
			"notional":      analytics["notional"],
		})
	}
	return out
}

// -----------------------------
// F) STATE BOOKKEEPING (caller holds e.mu)
// -----------------------------

// mergeRuntime folds updates into session_metadata.runtime so the control
// plane can replay the run after the engine goes idle.
func (e *StrategyEngine) mergeRuntime(state *runtimeState, updates map[string]any) {
	metadata := state.session.SessionMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	runtime, _ := metadata["runtime"].(map[string]any)
	if runtime == nil {
		runtime = map[string]any{}
	}
	for k, v := range updates {
		runtime[k] = v
	}
	metadata["runtime"] = runtime
	state.session.SessionMetadata = metadata
}

func (e *StrategyEngine) updateEntrySummary(state *runtimeState, updates map[string]any) {
	for k, v := range updates {
		state.entrySummary[k] = v
	}
	e.mergeRuntime(state, map[string]any{"entry": copyMap(state.entrySummary)})
}

// persistState flushes the session row and every dirty ledger row. Failures
// are logged and absorbed; the next cycle retries.
func (e *StrategyEngine) persistState(ctx context.Context, state *runtimeState, op string) {
	session := state.session
	if err := e.sessionRep.Update(ctx, session); err != nil {
		e.log.WithError(err).WithFields(logger.Fields{
			"op":          op,
			"strategy_id": state.strategyID,
		}).Error("Failed to persist strategy session")
		return
	}
	for i := range session.Positions {
		p := &session.Positions[i]
		if p.SessionID == 0 {
			p.SessionID = session.ID
		}
		var err error
		if p.ID == 0 {
			err = e.positionRep.Create(ctx, p)
		} else {
			err = e.positionRep.Update(ctx, p)
		}
		if err != nil {
			e.log.WithError(err).WithFields(logger.Fields{
				"op":     op,
				"symbol": p.Symbol,
			}).Error("Failed to persist position ledger row")
		}
	}
	for i := range session.Orders {
		o := &session.Orders[i]
		if o.ID != 0 {
			continue
		}
		if o.SessionID == 0 {
			o.SessionID = session.ID
		}
		if err := e.orderRep.Create(ctx, o); err != nil {
			e.log.WithError(err).WithFields(logger.Fields{
				"op":       op,
				"order_id": o.OrderID,
				"symbol":   o.Symbol,
			}).Error("Failed to persist order ledger row")
		}
	}
}

// resolveNotional prefers the last cycle's portfolio notional and falls
// back to recomputing it from the ledger rows.
func resolveNotional(state *runtimeState) float64 {
	if state.notional > 0 {
		return state.notional
	}
	size := contractSizeOf(state.config)
	fallback := 0.0
	for i := range state.session.Positions {
		p := &state.session.Positions[i]
		legSize := toFloat(p.Analytics["contract_size"], size)
		fallback += risk.LegNotional(p.EntryPrice, p.Quantity, legSize)
	}
	return fallback
}

func limitsPayload(config *model.TradingConfiguration, trailing tp_sl.TrailingState) map[string]any {
	maxProfit := tp_sl.NormalizePercent(config.MaxProfitPct)
	maxLoss := tp_sl.NormalizePercent(config.MaxLossPct)
	level := tp_sl.NormalizePercent(trailing.LevelPct)
	effective := maxLoss
	if config.TrailingSLEnable && level > 0 {
		effective = level
	}
	return map[string]any{
		"max_profit_pct":     maxProfit,
		"max_loss_pct":       maxLoss,
		"effective_loss_pct": effective,
		"trailing_enabled":   config.TrailingSLEnable,
		"trailing_level_pct": level,
	}
}

func totalsPayload(t risk.PortfolioTotals) map[string]any {
	return map[string]any{
		"realized":      t.Realized,
		"unrealized":    t.Unrealized,
		"total_pnl":     t.Total,
		"notional":      t.Notional,
		"total_pnl_pct": t.TotalPct,
	}
}

func configSummary(config *model.TradingConfiguration) map[string]any {
	return map[string]any{
		"id":                  config.ID,
		"name":                config.Name,
		"underlying":          config.Underlying,
		"delta_range":         []float64{config.DeltaLow, config.DeltaHigh},
		"trade_time_ist":      config.TradeTimeIST,
		"exit_time_ist":       config.ExitTimeIST,
		"expiry_date":         config.ExpiryDate,
		"quantity":            config.Quantity,
		"contract_size":       config.ContractSize,
		"max_loss_pct":        config.MaxLossPct,
		"max_profit_pct":      config.MaxProfitPct,
		"trailing_sl_enabled": config.TrailingSLEnable,
		"trailing_rules":      config.TrailingRules,
	}
}

func serializeContract(c *model.OptionContract) map[string]any {
	return map[string]any{
		"symbol":        c.Symbol,
		"product_id":    c.ProductID,
		"delta":         c.Delta,
		"strike_price":  c.Strike,
		"expiry":        c.Expiry,
		"contract_type": c.ContractType,
		"mid_price":     c.MidPrice(),
	}
}

func contractSizeOf(config *model.TradingConfiguration) float64 {
	if config != nil && config.ContractSize > 0 {
		return config.ContractSize
	}
	return 0.001
}

// -----------------------------
// G) SMALL HELPERS
// -----------------------------

// sleepCtx waits d and reports false when the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func isoTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return isoTime(*t)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	}
	return def
}

// optFloat reads an optional numeric out of an analytics blob; nil means
// the value was never observed.
func optFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	}
	return nil
}

func numOrNil(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
