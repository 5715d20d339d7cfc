package externalmodel

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Number tolerates the Delta Exchange habit of sending decimal fields as
// either JSON numbers or quoted strings ("0.05"). null and "" decode to 0.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

func (n Number) Float64() float64 { return float64(n) }

// DeltaGreeks is the greeks block attached to option tickers.
type DeltaGreeks struct {
	Delta Number `json:"delta"`
	Gamma Number `json:"gamma"`
	Theta Number `json:"theta"`
	Vega  Number `json:"vega"`
}

// DeltaQuotes is the top-of-book block inside ticker payloads.
type DeltaQuotes struct {
	BestBid Number `json:"best_bid"`
	BestAsk Number `json:"best_ask"`
	BidSize Number `json:"bid_size"`
	AskSize Number `json:"ask_size"`
}

// DeltaTicker is one entry of GET /v2/tickers (REST) or a v2/ticker stream
// frame. Field availability differs slightly between the two sources, so
// consumers go through the mapper rather than reading this directly.
type DeltaTicker struct {
	Symbol         string       `json:"symbol"`
	ProductID      int64        `json:"product_id"`
	ContractType   string       `json:"contract_type"`
	StrikePrice    Number       `json:"strike_price"`
	SpotPrice      Number       `json:"spot_price"`
	MarkPrice      Number       `json:"mark_price"`
	LastPrice      Number       `json:"close"`
	TickSize       Number       `json:"tick_size"`
	BestBidPrice   Number       `json:"best_bid_price"`
	BestAskPrice   Number       `json:"best_ask_price"`
	BestBidSize    Number       `json:"best_bid_size"`
	BestAskSize    Number       `json:"best_ask_size"`
	Timestamp      Number       `json:"timestamp"`
	ExpiryDate     string       `json:"expiry_date"`
	SettlementTime string       `json:"settlement_time"`
	Greeks         *DeltaGreeks `json:"greeks,omitempty"`
	Quotes         *DeltaQuotes `json:"quotes,omitempty"`
}

// DeltaProduct is GET /v2/products/{id}; only the fields the executor
// consults are declared.
type DeltaProduct struct {
	ID             int64  `json:"id"`
	Symbol         string `json:"symbol"`
	ContractType   string `json:"contract_type"`
	TickSize       Number `json:"tick_size"`
	ContractValue  Number `json:"contract_value"`
	SettlementTime string `json:"settlement_time"`
}

// DeltaOrder is the order object Delta returns from POST /v2/orders and
// GET /v2/orders/{id}.
type DeltaOrder struct {
	ID               int64  `json:"id"`
	ClientOrderID    string `json:"client_order_id"`
	ProductID        int64  `json:"product_id"`
	ProductSymbol    string `json:"product_symbol"`
	Side             string `json:"side"`
	OrderType        string `json:"order_type"`
	State            string `json:"state"`
	Size             Number `json:"size"`
	UnfilledSize     Number `json:"unfilled_size"`
	LimitPrice       Number `json:"limit_price"`
	AverageFillPrice Number `json:"average_fill_price"`
	CreatedAt        string `json:"created_at"`
}

// FilledSize is size minus whatever is still resting, floored at zero.
func (o *DeltaOrder) FilledSize() float64 {
	filled := o.Size.Float64() - o.UnfilledSize.Float64()
	if filled < 0 {
		return 0
	}
	return filled
}

// DeltaPosition is one entry of GET /v2/positions/margined. Size is signed:
// negative means short. The assorted price fields cover the payload shapes
// different account endpoints use for the same concept.
type DeltaPosition struct {
	ProductID         int64  `json:"product_id"`
	ProductSymbol     string `json:"product_symbol"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	Size              Number `json:"size"`
	EntryPrice        Number `json:"entry_price"`
	AvgEntryPrice     Number `json:"avg_entry_price"`
	AverageEntryPrice Number `json:"average_entry_price"`
	AveragePrice      Number `json:"average_price"`
	Price             Number `json:"price"`
	MarkPrice         Number `json:"mark_price"`
	IndexPrice        Number `json:"index_price"`
	RealizedPnl       Number `json:"realized_pnl"`
}

// PositionSymbol prefers product_symbol, which margined positions carry.
func (p *DeltaPosition) PositionSymbol() string {
	if p.ProductSymbol != "" {
		return p.ProductSymbol
	}
	return p.Symbol
}

// EffectiveEntryPrice walks the price fields in fixed precedence and returns
// the first positive one, or 0 when the payload carries no usable price.
func (p *DeltaPosition) EffectiveEntryPrice() float64 {
	chain := []Number{
		p.EntryPrice,
		p.AvgEntryPrice,
		p.AverageEntryPrice,
		p.AveragePrice,
		p.Price,
		p.MarkPrice,
		p.IndexPrice,
	}
	for _, v := range chain {
		if v.Float64() > 0 {
			return v.Float64()
		}
	}
	return 0
}

// IsShort reports the direction: a selling side or a negative signed size.
func (p *DeltaPosition) IsShort() bool {
	switch strings.ToLower(p.Side) {
	case "sell", "short":
		return true
	}
	return p.Size.Float64() < 0
}
