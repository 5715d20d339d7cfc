package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"strangleexecutor/src/connectors"
	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"
)

// ErrOrderPlacementFailed marks a ladder that ran out of options: every limit
// attempt and the market fallback failed to complete the requested size.
// Partial fills are still reported on the outcome.
var ErrOrderPlacementFailed = errors.New("order placement failed")

type deltaOrderAPI interface {
	GetProduct(productID int64) (*externalmodel.DeltaProduct, error)
	GetTicker(symbol string) (*externalmodel.DeltaTicker, error)
	PlaceOrder(order *connectors.OrderRequest) (*externalmodel.DeltaOrder, error)
	GetOrder(orderID string) (*externalmodel.DeltaOrder, error)
	CancelOrder(orderID string, productID int64) error
}

type quoteCache interface {
	AddSymbols(symbols []string)
	BestBidAsk(symbol string) (float64, float64, error)
}

// DeltaOrderController executes one leg of the strangle: a ladder of limit
// attempts priced off the live book, then a market fallback for whatever is
// still unfilled.
type DeltaOrderController struct {
	client     deltaOrderAPI
	quotes     quoteCache
	exceptions *repository.ExceptionRepository
	config     Config
	logger     *logrus.Entry
}

func NewDeltaOrderController(client *connectors.DeltaClient, quotes *connectors.OptionQuoteStream, logger *logrus.Entry) *DeltaOrderController {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &DeltaOrderController{
		exceptions: repository.NewExceptionRepository(),
		config:     GetConfig(),
		logger:     logger,
	}
	// Assign through the guards so a nil concrete client stays a nil
	// interface and the Execute precondition keeps working.
	if client != nil {
		c.client = client
	}
	if quotes != nil {
		c.quotes = quotes
	}
	return c
}

// Execute runs the full order strategy for one contract and side.
//
// Every order sent is recorded on the outcome (attempt index, order id,
// type, price, size, filled, fill ratio, state). A limit attempt that
// fills completely, or at least the partial-fill threshold, ends the
// ladder there and the outcome reports exactly what filled; no further
// orders are placed. The market fallback only runs when every limit
// attempt died unfilled, and succeeds when anything fills at all. In
// every other case the outcome is returned together with
// ErrOrderPlacementFailed so callers can reconcile partials.
func (c *DeltaOrderController) Execute(
	ctx context.Context,
	strategyID string,
	contract *model.OptionContract,
	side string,
	quantity float64,
	reduceOnly bool,
) (*model.OrderStrategyOutcome, error) {

	if c.client == nil {
		return nil, errors.New("delta client not initialized for live trading")
	}
	if contract == nil {
		return nil, errors.New("no contract to execute")
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("non-positive order quantity %v", quantity)
	}

	maxAttempts := c.config.OrderRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	minFillRatio := c.config.PartialFillThreshold
	if minFillRatio < 0 {
		minFillRatio = 0
	}
	if minFillRatio > 1 {
		minFillRatio = 1
	}
	timeout := c.config.OrderTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	retryDelay := c.config.OrderRetryDelay
	if retryDelay < 0 {
		retryDelay = 0
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":         contract.Symbol,
		"side":           side,
		"requested_size": quantity,
		"reduce_only":    reduceOnly,
		"max_attempts":   maxAttempts,
		"timeout":        timeout.String(),
		"min_fill_ratio": minFillRatio,
	}).Debug("executing order strategy")

	// ------------------------------------------------------------------
	// 1) Resolve the tick size from the product, falling back to the
	//    selection-time snapshot.
	// ------------------------------------------------------------------
	tick := contract.TickSize
	if product, err := c.client.GetProduct(contract.ProductID); err != nil {
		c.logger.WithError(err).WithField("symbol", contract.Symbol).
			Warn("unable to fetch product info, using contract tick size")
	} else if product != nil && product.TickSize.Float64() > 0 {
		tick = product.TickSize.Float64()
	}
	if tick <= 0 {
		tick = 0.1
	}

	// ------------------------------------------------------------------
	// 2) Make sure the leg is on the quote stream so ladder re-pricing
	//    reads fresh top-of-book.
	// ------------------------------------------------------------------
	if c.quotes != nil {
		c.quotes.AddSymbols([]string{contract.Symbol})
	}

	remaining := quantity
	totalFilled := 0.0
	var attempts []model.OrderAttempt
	var finalOrder *externalmodel.DeltaOrder

	// ------------------------------------------------------------------
	// 3) Limit ladder: re-price from the book, submit, poll, cancel on
	//    timeout, retry.
	// ------------------------------------------------------------------
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		bestBid, bestAsk := c.bestPrices(contract)
		limitPrice := RoundToTick(DetermineLimitPrice(side, bestBid, bestAsk, tick, contract.MidPrice()), tick)
		if limitPrice <= 0 {
			fallback := contract.MidPrice()
			if fallback <= 0 {
				fallback = tick
			}
			limitPrice = RoundToTick(fallback, tick)
			c.logger.WithFields(logrus.Fields{
				"symbol":      contract.Symbol,
				"limit_price": limitPrice,
			}).Warn("normalized limit price was non-positive, using fallback")
		}

		clientOrderID := BuildClientOrderID(strategyID, contract.ContractType, "limit", attempt)

		c.logger.WithFields(logrus.Fields{
			"attempt":         attempt,
			"max_attempts":    maxAttempts,
			"symbol":          contract.Symbol,
			"side":            side,
			"order_size":      remaining,
			"limit_price":     FormatPrice(limitPrice),
			"client_order_id": clientOrderID,
		}).Info("submitting limit order attempt")

		order, err := c.client.PlaceOrder(&connectors.OrderRequest{
			ProductID:     contract.ProductID,
			Size:          remaining,
			Side:          side,
			OrderType:     model.OrderTypeLimit,
			LimitPrice:    FormatPrice(limitPrice),
			TimeInForce:   "gtc",
			ReduceOnly:    strconv.FormatBool(reduceOnly),
			PostOnly:      "false",
			ClientOrderID: clientOrderID,
		})
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"attempt":         attempt,
				"order_size":      remaining,
				"client_order_id": clientOrderID,
			}).Error("limit order attempt failed to submit")
			Capture(
				ctx,
				c.exceptions,
				"DeltaOrderController",
				"controller",
				"client.PlaceOrder",
				"error",
				err,
				map[string]interface{}{
					"symbol":  contract.Symbol,
					"side":    side,
					"attempt": attempt,
				},
			)
			if attempt < maxAttempts {
				c.wait(ctx, retryDelay)
			}
			continue
		}

		orderID := orderIdentifier(order, clientOrderID)
		attempts = append(attempts, model.OrderAttempt{
			Attempt:   attempt,
			OrderID:   orderID,
			OrderType: "limit",
			Price:     limitPrice,
			Size:      remaining,
		})
		rec := &attempts[len(attempts)-1]

		filled, completed, ratio, status := c.waitForFill(ctx, orderID, remaining, timeout, minFillRatio)
		if status != nil {
			finalOrder = status
		}
		rec.Filled = filled
		rec.FillRatio = ratio
		rec.State = stateOf(status)

		if completed {
			// Full fill or acceptable partial: the ladder ends here and
			// the outcome reports exactly what filled.
			totalFilled += filled
			remaining -= filled
			if remaining < 0 {
				remaining = 0
			}
			c.logger.WithFields(logrus.Fields{
				"attempt":    attempt,
				"order_id":   orderID,
				"filled":     filled,
				"remaining":  remaining,
				"fill_ratio": ratio,
			}).Info("limit order fill accepted")
			return buildOutcome(true, model.ExecutionModeLimitOrders, totalFilled, finalOrder, attempts), nil
		}

		if err := c.client.CancelOrder(orderID, contract.ProductID); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"order_id": orderID,
				"attempt":  attempt,
			}).Error("failed to cancel limit order")
		} else if rec.State == "" || rec.State == model.OrderStateOpen || rec.State == model.OrderStatePending {
			rec.State = model.OrderStateCancelled
		}

		if attempt < maxAttempts {
			c.wait(ctx, retryDelay)
		}
	}

	// ------------------------------------------------------------------
	// 4) Market fallback for whatever the ladder left unfilled.
	// ------------------------------------------------------------------
	c.logger.WithFields(logrus.Fields{
		"symbol":    contract.Symbol,
		"side":      side,
		"remaining": remaining,
	}).Info("falling back to market order")

	marketClientID := BuildClientOrderID(strategyID, contract.ContractType, "market", 0)
	marketOrder, err := c.client.PlaceOrder(&connectors.OrderRequest{
		ProductID:     contract.ProductID,
		Size:          remaining,
		Side:          side,
		OrderType:     model.OrderTypeMarket,
		TimeInForce:   "ioc",
		ReduceOnly:    strconv.FormatBool(reduceOnly),
		ClientOrderID: marketClientID,
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"symbol":    contract.Symbol,
			"side":      side,
			"remaining": remaining,
		}).Error("market fallback failed to submit")
		Capture(
			ctx,
			c.exceptions,
			"DeltaOrderController",
			"controller",
			"client.PlaceOrder market fallback",
			"error",
			err,
			map[string]interface{}{
				"symbol": contract.Symbol,
				"side":   side,
			},
		)
		outcome := buildOutcome(false, model.ExecutionModeFailed, totalFilled, finalOrder, attempts)
		return outcome, fmt.Errorf("market fallback for %s: %w", contract.Symbol, ErrOrderPlacementFailed)
	}

	marketID := orderIdentifier(marketOrder, marketClientID)
	attempts = append(attempts, model.OrderAttempt{
		Attempt:   len(attempts) + 1,
		OrderID:   marketID,
		OrderType: "market",
		Size:      remaining,
	})
	rec := &attempts[len(attempts)-1]

	filled, completed, ratio, status := c.waitForFill(ctx, marketID, remaining, timeout, 0)
	totalFilled += filled
	if status != nil {
		finalOrder = status
	} else {
		finalOrder = marketOrder
	}
	rec.Filled = filled
	rec.FillRatio = ratio
	rec.State = stateOf(finalOrder)

	if completed && totalFilled > 0 {
		return buildOutcome(true, model.ExecutionModeMarketFallback, totalFilled, finalOrder, attempts), nil
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":   contract.Symbol,
		"side":     side,
		"filled":   totalFilled,
		"unfilled": quantity - totalFilled,
		"attempts": len(attempts),
	}).Error("order strategy failed")

	outcome := buildOutcome(false, model.ExecutionModeFailed, totalFilled, finalOrder, attempts)
	return outcome, fmt.Errorf("order strategy for %s: %w", contract.Symbol, ErrOrderPlacementFailed)
}

// waitForFill polls the order until it fills, dies, or the attempt times
// out. The returned bool is "completed": fully filled, or filled at least
// minFillRatio of the expected size. On timeout the last observed status
// decides.
func (c *DeltaOrderController) waitForFill(
	ctx context.Context,
	orderID string,
	expectedSize float64,
	timeout time.Duration,
	minFillRatio float64,
) (float64, bool, float64, *externalmodel.DeltaOrder) {

	deadline := time.Now().Add(timeout)
	var last *externalmodel.DeltaOrder

	for time.Now().Before(deadline) {
		order, err := c.client.GetOrder(orderID)
		if err != nil {
			c.logger.WithError(err).WithField("order_id", orderID).
				Error("unable to fetch order status")
			break
		}
		last = order

		filled, ratio := fillProgress(order, expectedSize)
		state := stateOf(order)

		if state == model.OrderStateClosed || state == "filled" || ratio >= 1 {
			return filled, true, 1.0, order
		}
		if ratio >= minFillRatio {
			return filled, true, ratio, order
		}
		if state == model.OrderStateCancelled || state == "canceled" || state == model.OrderStateRejected {
			return filled, false, ratio, order
		}

		if !c.wait(ctx, c.config.OrderPollInterval) {
			break
		}
	}

	if last != nil {
		filled, ratio := fillProgress(last, expectedSize)
		return filled, ratio >= minFillRatio, ratio, last
	}
	return 0, false, 0, nil
}

// bestPrices reads top-of-book for pricing one attempt: quote stream first,
// then the selection-time snapshot, then a REST refresh for whichever side
// is still missing.
func (c *DeltaOrderController) bestPrices(contract *model.OptionContract) (float64, float64) {
	var bid, ask float64
	if c.quotes != nil {
		if b, a, err := c.quotes.BestBidAsk(contract.Symbol); err == nil {
			bid, ask = b, a
		}
	}
	if bid <= 0 {
		bid = contract.BestBid
	}
	if ask <= 0 {
		ask = contract.BestAsk
	}

	if bid > 0 && ask > 0 {
		return bid, ask
	}

	ticker, err := c.client.GetTicker(contract.Symbol)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", contract.Symbol).
			Warn("failed to refresh best bid/ask")
		return bid, ask
	}
	if ticker == nil {
		return bid, ask
	}

	refreshedBid := ticker.BestBidPrice.Float64()
	refreshedAsk := ticker.BestAskPrice.Float64()
	if ticker.Quotes != nil {
		if v := ticker.Quotes.BestBid.Float64(); v > 0 {
			refreshedBid = v
		}
		if v := ticker.Quotes.BestAsk.Float64(); v > 0 {
			refreshedAsk = v
		}
	}
	if bid <= 0 && refreshedBid > 0 {
		bid = refreshedBid
	}
	if ask <= 0 && refreshedAsk > 0 {
		ask = refreshedAsk
	}
	return bid, ask
}

// wait sleeps for d unless the context ends first; false means cancelled.
func (c *DeltaOrderController) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func fillProgress(order *externalmodel.DeltaOrder, expectedSize float64) (filled, ratio float64) {
	size := order.Size.Float64()
	if size <= 0 {
		size = expectedSize
	}
	filled = size - order.UnfilledSize.Float64()
	if filled < 0 {
		filled = 0
	}
	if size <= 0 {
		return filled, 0
	}
	return filled, filled / size
}

func stateOf(order *externalmodel.DeltaOrder) string {
	if order == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(order.State))
}

func orderIdentifier(order *externalmodel.DeltaOrder, fallback string) string {
	if order == nil {
		return fallback
	}
	if order.ID != 0 {
		return strconv.FormatInt(order.ID, 10)
	}
	if order.ClientOrderID != "" {
		return order.ClientOrderID
	}
	return fallback
}

// extractFillPrice resolves the execution price the ledger should carry:
// the exchange-reported average fill when present, else the final limit
// price, else the price of the last attempt that actually filled.
func extractFillPrice(final *externalmodel.DeltaOrder, attempts []model.OrderAttempt) float64 {
	if final != nil {
		if v := final.AverageFillPrice.Float64(); v > 0 {
			return v
		}
		if v := final.LimitPrice.Float64(); v > 0 {
			return v
		}
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].Filled > 0 && attempts[i].Price > 0 {
			return attempts[i].Price
		}
	}
	return 0
}

func buildOutcome(success bool, mode string, totalFilled float64, final *externalmodel.DeltaOrder, attempts []model.OrderAttempt) *model.OrderStrategyOutcome {
	return &model.OrderStrategyOutcome{
		Success:     success,
		Mode:        mode,
		FilledSize:  totalFilled,
		FillPrice:   extractFillPrice(final, attempts),
		FinalStatus: stateOf(final),
		Attempts:    attempts,
	}
}
