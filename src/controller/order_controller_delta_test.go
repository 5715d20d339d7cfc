package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"strangleexecutor/src/connectors"
	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
)

type mockDeltaAPI struct {
	product    *externalmodel.DeltaProduct
	productErr error
	ticker     *externalmodel.DeltaTicker
	tickerErr  error
	placeErrs  []error
	statuses   map[string][]*externalmodel.DeltaOrder
	getErr     error
	cancelErr  error

	placed    []connectors.OrderRequest
	cancelled []string
	nextID    int64
}

var _ deltaOrderAPI = (*mockDeltaAPI)(nil)

func (m *mockDeltaAPI) GetProduct(productID int64) (*externalmodel.DeltaProduct, error) {
	if m.productErr != nil {
		return nil, m.productErr
	}
	return m.product, nil
}

func (m *mockDeltaAPI) GetTicker(symbol string) (*externalmodel.DeltaTicker, error) {
	if m.tickerErr != nil {
		return nil, m.tickerErr
	}
	return m.ticker, nil
}

func (m *mockDeltaAPI) PlaceOrder(order *connectors.OrderRequest) (*externalmodel.DeltaOrder, error) {
	idx := len(m.placed)
	m.placed = append(m.placed, *order)
	if idx < len(m.placeErrs) && m.placeErrs[idx] != nil {
		return nil, m.placeErrs[idx]
	}
	m.nextID++
	return &externalmodel.DeltaOrder{ID: m.nextID, ClientOrderID: order.ClientOrderID, State: model.OrderStateOpen}, nil
}

// GetOrder walks the scripted status sequence for the order, holding the
// final entry so repeated polls keep observing the terminal state.
func (m *mockDeltaAPI) GetOrder(orderID string) (*externalmodel.DeltaOrder, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	seq := m.statuses[orderID]
	if len(seq) == 0 {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}
	next := seq[0]
	if len(seq) > 1 {
		m.statuses[orderID] = seq[1:]
	}
	return next, nil
}

func (m *mockDeltaAPI) CancelOrder(orderID string, productID int64) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

type mockQuoteCache struct {
	bid, ask float64
	err      error
	added    [][]string
}

var _ quoteCache = (*mockQuoteCache)(nil)

func (m *mockQuoteCache) AddSymbols(symbols []string) {
	m.added = append(m.added, symbols)
}

func (m *mockQuoteCache) BestBidAsk(symbol string) (float64, float64, error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	return m.bid, m.ask, nil
}

func strangleCallContract() *model.OptionContract {
	return &model.OptionContract{
		Symbol:       "C-BTC-64000-260926",
		ProductID:    41203,
		Delta:        0.15,
		Strike:       64000,
		Expiry:       "2026-09-26",
		BestBid:      9.8,
		BestAsk:      10.6,
		MarkPrice:    10.2,
		TickSize:     0.1,
		ContractType: model.ContractTypeCall,
	}
}

// newTestOrderController wires the controller with millisecond timings so
// ladder timeouts stay fast under test.
func newTestOrderController(api *mockDeltaAPI, quotes *mockQuoteCache) *DeltaOrderController {
	nullLogger, _ := logrustest.NewNullLogger()
	c := &DeltaOrderController{
		config: Config{
			OrderRetryAttempts:   3,
			OrderRetryDelay:      time.Millisecond,
			OrderTimeout:         40 * time.Millisecond,
			PartialFillThreshold: 0.10,
			OrderPollInterval:    5 * time.Millisecond,
		},
		logger: logrus.NewEntry(nullLogger),
	}
	if api != nil {
		c.client = api
	}
	if quotes != nil {
		c.quotes = quotes
	}
	return c
}

func TestDeltaExecuteFillsOnFirstLimitAttempt(t *testing.T) {
	api := &mockDeltaAPI{
		product: &externalmodel.DeltaProduct{ID: 41203, TickSize: externalmodel.Number(0.05)},
		statuses: map[string][]*externalmodel.DeltaOrder{
			"1": {{
				ID:               1,
				State:            model.OrderStateClosed,
				Size:             externalmodel.Number(2),
				UnfilledSize:     externalmodel.Number(0),
				AverageFillPrice: externalmodel.Number(9.95),
			}},
		},
	}
	quotes := &mockQuoteCache{bid: 10, ask: 10.4}
	c := newTestOrderController(api, quotes)

	outcome, err := c.Execute(context.Background(), "strangle-btc", strangleCallContract(), model.OrderSideSell, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Mode != model.ExecutionModeLimitOrders {
		t.Fatalf("expected limit ladder success, got success=%v mode=%s", outcome.Success, outcome.Mode)
	}
	if outcome.FilledSize != 2 {
		t.Fatalf("expected filled size 2, got %v", outcome.FilledSize)
	}
	if outcome.FillPrice != 9.95 {
		t.Fatalf("expected exchange average fill price, got %v", outcome.FillPrice)
	}
	if len(outcome.Attempts) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(outcome.Attempts))
	}
	if got := outcome.Attempts[0]; got.FillRatio != 1 || got.Filled != 2 || got.State != model.OrderStateClosed {
		t.Fatalf("unexpected attempt record: %+v", got)
	}
	if len(api.cancelled) != 0 {
		t.Fatalf("did not expect cancels, got %v", api.cancelled)
	}
	if len(quotes.added) == 0 || quotes.added[0][0] != "C-BTC-64000-260926" {
		t.Fatalf("expected leg to be subscribed on the quote stream, got %v", quotes.added)
	}

	req := api.placed[0]
	if req.OrderType != model.OrderTypeLimit || req.TimeInForce != "gtc" || req.PostOnly != "false" || req.ReduceOnly != "false" {
		t.Fatalf("unexpected limit request: %+v", req)
	}
	// Sells rest at the streamed best bid, rounded to the product tick.
	if req.LimitPrice != "10" {
		t.Fatalf("expected sell priced at best bid, got %s", req.LimitPrice)
	}
	if req.ProductID != 41203 || req.Size != 2 {
		t.Fatalf("unexpected product/size on request: %+v", req)
	}
	id := req.ClientOrderID
	if !strings.HasPrefix(id, "strangle-btc-CE-") || !strings.HasSuffix(id, "-L1") || len(id) > 32 {
		t.Fatalf("unexpected client order id %q", id)
	}
}

func TestDeltaExecutePartialFillEndsLadder(t *testing.T) {
	api := &mockDeltaAPI{
		statuses: map[string][]*externalmodel.DeltaOrder{
			// Attempt 1 never fills and times out; attempt 2 fills 25%,
			// above the 10% acceptance threshold.
			"1": {{ID: 1, State: model.OrderStateOpen, Size: externalmodel.Number(2), UnfilledSize: externalmodel.Number(2)}},
			"2": {{ID: 2, State: model.OrderStateOpen, Size: externalmodel.Number(2), UnfilledSize: externalmodel.Number(1.5)}},
		},
	}
	c := newTestOrderController(api, &mockQuoteCache{bid: 10, ask: 10.4})

	outcome, err := c.Execute(context.Background(), "strangle-btc", strangleCallContract(), model.OrderSideSell, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Mode != model.ExecutionModeLimitOrders {
		t.Fatalf("expected limit ladder success, got success=%v mode=%s", outcome.Success, outcome.Mode)
	}
	if outcome.FilledSize != 0.5 {
		t.Fatalf("expected the accepted partial 0.5, got %v", outcome.FilledSize)
	}
	// The accepted partial ends the run: two limit orders total, no
	// market fallback.
	if len(api.placed) != 2 {
		t.Fatalf("expected exactly 2 orders placed, got %d", len(api.placed))
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", len(outcome.Attempts))
	}
	if got := outcome.Attempts[1]; got.FillRatio != 0.25 || got.Filled != 0.5 {
		t.Fatalf("unexpected accepted attempt: %+v", got)
	}
	if got := outcome.Attempts[0]; got.State != model.OrderStateCancelled {
		t.Fatalf("expected timed-out attempt to be cancelled, got %+v", got)
	}
	if len(api.cancelled) != 1 || api.cancelled[0] != "1" {
		t.Fatalf("expected only the first attempt cancelled, got %v", api.cancelled)
	}
	// No exchange average on an open order, so the fill price falls back
	// to the filled attempt's limit price.
	if outcome.FillPrice != 10 {
		t.Fatalf("expected fill price 10 from the filled attempt, got %v", outcome.FillPrice)
	}
}

func TestDeltaExecuteMarketFallbackCompletesOrder(t *testing.T) {
	open := func(id int64) *externalmodel.DeltaOrder {
		return &externalmodel.DeltaOrder{ID: id, State: model.OrderStateOpen, Size: externalmodel.Number(2), UnfilledSize: externalmodel.Number(2)}
	}
	api := &mockDeltaAPI{
		statuses: map[string][]*externalmodel.DeltaOrder{
			"1": {open(1)},
			"2": {open(2)},
			"3": {open(3)},
			"4": {{
				ID:               4,
				State:            model.OrderStateClosed,
				Size:             externalmodel.Number(2),
				UnfilledSize:     externalmodel.Number(0),
				AverageFillPrice: externalmodel.Number(10.3),
			}},
		},
	}
	c := newTestOrderController(api, &mockQuoteCache{bid: 10, ask: 10.4})

	outcome, err := c.Execute(context.Background(), "strangle-btc", strangleCallContract(), model.OrderSideSell, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Mode != model.ExecutionModeMarketFallback {
		t.Fatalf("expected market fallback success, got success=%v mode=%s", outcome.Success, outcome.Mode)
	}
	if outcome.FilledSize != 2 {
		t.Fatalf("expected the full size filled, got %v", outcome.FilledSize)
	}
	if outcome.FillPrice != 10.3 {
		t.Fatalf("expected market average fill price, got %v", outcome.FillPrice)
	}
	if len(api.placed) != 4 {
		t.Fatalf("expected 3 limits and 1 market, got %d orders", len(api.placed))
	}
	if len(api.cancelled) != 3 {
		t.Fatalf("expected every limit attempt cancelled, got %v", api.cancelled)
	}

	market := api.placed[3]
	if market.OrderType != model.OrderTypeMarket || market.TimeInForce != "ioc" || market.LimitPrice != "" {
		t.Fatalf("unexpected market request: %+v", market)
	}
	if !strings.HasSuffix(market.ClientOrderID, "-MKT") {
		t.Fatalf("expected market client order id suffix, got %q", market.ClientOrderID)
	}
	last := outcome.LastAttempt()
	if last == nil || last.Attempt != 4 || last.OrderType != "market" || last.FillRatio != 1 {
		t.Fatalf("unexpected market attempt record: %+v", last)
	}
}

func TestDeltaExecuteReportsFailureWhenNothingFills(t *testing.T) {
	boom := errors.New("insufficient margin")
	api := &mockDeltaAPI{
		placeErrs: []error{boom, boom, boom, boom},
	}
	c := newTestOrderController(api, &mockQuoteCache{bid: 10, ask: 10.4})

	outcome, err := c.Execute(context.Background(), "strangle-btc", strangleCallContract(), model.OrderSideSell, 2, false)
	if !errors.Is(err, ErrOrderPlacementFailed) {
		t.Fatalf("expected ErrOrderPlacementFailed, got %v", err)
	}
	if outcome == nil || outcome.Success || outcome.Mode != model.ExecutionModeFailed {
		t.Fatalf("expected failed outcome, got %+v", outcome)
	}
	if outcome.FilledSize != 0 || len(outcome.Attempts) != 0 {
		t.Fatalf("expected nothing filled and no attempts recorded, got %+v", outcome)
	}
	// Three limit submissions plus the market fallback, all refused.
	if len(api.placed) != 4 {
		t.Fatalf("expected 4 submissions, got %d", len(api.placed))
	}
}

func TestDeltaExecuteRejectedAttemptMovesToNextPrice(t *testing.T) {
	api := &mockDeltaAPI{
		statuses: map[string][]*externalmodel.DeltaOrder{
			"1": {{ID: 1, State: model.OrderStateRejected, Size: externalmodel.Number(2), UnfilledSize: externalmodel.Number(2)}},
			"2": {{ID: 2, State: model.OrderStateClosed, Size: externalmodel.Number(2), UnfilledSize: externalmodel.Number(0)}},
		},
	}
	c := newTestOrderController(api, &mockQuoteCache{bid: 10, ask: 10.4})

	outcome, err := c.Execute(context.Background(), "strangle-btc", strangleCallContract(), model.OrderSideSell, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.Mode != model.ExecutionModeLimitOrders {
		t.Fatalf("expected limit ladder success, got success=%v mode=%s", outcome.Success, outcome.Mode)
	}
	if len(outcome.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(outcome.Attempts))
	}
	// The rejection is kept verbatim, not rewritten by the cancel.
	if outcome.Attempts[0].State != model.OrderStateRejected {
		t.Fatalf("expected rejected state preserved, got %+v", outcome.Attempts[0])
	}
}

func TestDeltaExecuteSkipsAttemptRecordOnSubmitError(t *testing.T) {
	api := &mockDeltaAPI{
		placeErrs: []error{errors.New("gateway timeout")},
		statuses: map[string][]*externalmodel.DeltaOrder{
			"1": {{ID: 1, State: model.OrderStateClosed, Size: externalmodel.Number(2), UnfilledSize: externalmodel.Number(0)}},
		},
	}
	c := newTestOrderController(api, &mockQuoteCache{bid: 10, ask: 10.4})

	outcome, err := c.Execute(context.Background(), "strangle-btc", strangleCallContract(), model.OrderSideSell, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || len(outcome.Attempts) != 1 {
		t.Fatalf("expected one recorded attempt after a submit error, got %+v", outcome)
	}
	// Attempt numbering follows the ladder position, not the record count.
	if outcome.Attempts[0].Attempt != 2 {
		t.Fatalf("expected the fill on ladder attempt 2, got %+v", outcome.Attempts[0])
	}
}

func TestDeltaExecuteValidatesInput(t *testing.T) {
	c := newTestOrderController(&mockDeltaAPI{}, nil)

	if _, err := c.Execute(context.Background(), "s", nil, model.OrderSideSell, 1, false); err == nil {
		t.Fatalf("expected error for nil contract")
	}
	if _, err := c.Execute(context.Background(), "s", strangleCallContract(), model.OrderSideSell, 0, false); err == nil {
		t.Fatalf("expected error for non-positive quantity")
	}

	c.client = nil
	if _, err := c.Execute(context.Background(), "s", strangleCallContract(), model.OrderSideSell, 1, false); err == nil {
		t.Fatalf("expected error without a client")
	}
}

func TestDeltaBestPricesFallbackChain(t *testing.T) {
	contract := strangleCallContract()

	// Stream errors fall back to the selection-time snapshot.
	c := newTestOrderController(&mockDeltaAPI{}, &mockQuoteCache{err: errors.New("no quote")})
	if bid, ask := c.bestPrices(contract); bid != 9.8 || ask != 10.6 {
		t.Fatalf("expected snapshot prices, got bid=%v ask=%v", bid, ask)
	}

	// An empty snapshot triggers a REST refresh; the quotes block wins
	// over the flat ticker fields when present.
	bare := strangleCallContract()
	bare.BestBid = 0
	bare.BestAsk = 0
	api := &mockDeltaAPI{
		ticker: &externalmodel.DeltaTicker{
			Symbol:       bare.Symbol,
			BestBidPrice: externalmodel.Number(9.9),
			BestAskPrice: externalmodel.Number(10.5),
			Quotes: &externalmodel.DeltaQuotes{
				BestBid: externalmodel.Number(10.05),
				BestAsk: externalmodel.Number(10.45),
			},
		},
	}
	c = newTestOrderController(api, &mockQuoteCache{err: errors.New("no quote")})
	if bid, ask := c.bestPrices(bare); bid != 10.05 || ask != 10.45 {
		t.Fatalf("expected refreshed prices, got bid=%v ask=%v", bid, ask)
	}

	// A failed refresh leaves whatever was known.
	c = newTestOrderController(&mockDeltaAPI{tickerErr: errors.New("down")}, &mockQuoteCache{err: errors.New("no quote")})
	if bid, ask := c.bestPrices(bare); bid != 0 || ask != 0 {
		t.Fatalf("expected no prices, got bid=%v ask=%v", bid, ask)
	}
}
