package model

// Execution modes reported by the order strategy.
const (
	ExecutionModeLimitOrders    = "limit_orders"
	ExecutionModeMarketFallback = "market_fallback"
	ExecutionModeFailed         = "failed"
)

// OrderAttempt records one order sent during an execution strategy run.
type OrderAttempt struct {
	Attempt   int     `json:"attempt"`
	OrderID   string  `json:"order_id,omitempty"`
	OrderType string  `json:"order_type"`
	Price     float64 `json:"price,omitempty"`
	Size      float64 `json:"size"`
	Filled    float64 `json:"filled"`
	FillRatio float64 `json:"fill_ratio"`
	State     string  `json:"state"`
}

// OrderStrategyOutcome is the result of one limit-ladder/market-fallback
// run for a single symbol and side. FilledSize is the size the run
// accounted for: the accepted limit fill, or whatever the market fallback
// executed. Per-attempt fills live on Attempts so callers can reconcile
// partial executions on failure.
// FillPrice is the best known execution price (exchange average fill when
// reported, else the last filled attempt's price); zero when nothing filled
// at a known price.
type OrderStrategyOutcome struct {
	Success     bool           `json:"success"`
	Mode        string         `json:"mode"`
	FilledSize  float64        `json:"filled_size"`
	FillPrice   float64        `json:"fill_price,omitempty"`
	FinalStatus string         `json:"final_status"`
	Attempts    []OrderAttempt `json:"attempts"`
}

// LastAttempt returns the most recent attempt record, if any.
func (o OrderStrategyOutcome) LastAttempt() *OrderAttempt {
	if len(o.Attempts) == 0 {
		return nil
	}
	return &o.Attempts[len(o.Attempts)-1]
}
