package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ContractTypeCall = "call_options"
	ContractTypePut  = "put_options"
)

// OptionContract is a selection-time view of one tradable option. It is
// built from the exchange ticker list and never persisted.
type OptionContract struct {
	Symbol       string
	ProductID    int64
	Delta        float64 // absolute value
	Strike       float64
	Expiry       string // YYYY-MM-DD
	BestBid      float64
	BestAsk      float64
	MarkPrice    float64
	TickSize     float64
	ContractType string
}

// MidPrice derives a usable price with a fixed fallback order: bid/ask
// midpoint (rounded to 2 decimals), then mark, bid, ask, tick size.
func (c OptionContract) MidPrice() float64 {
	if c.BestBid > 0 && c.BestAsk > 0 {
		mid := decimal.NewFromFloat(c.BestBid).
			Add(decimal.NewFromFloat(c.BestAsk)).
			Div(decimal.NewFromInt(2)).
			Round(2)
		f, _ := mid.Float64()
		return f
	}
	if c.MarkPrice > 0 {
		return c.MarkPrice
	}
	if c.BestBid > 0 {
		return c.BestBid
	}
	if c.BestAsk > 0 {
		return c.BestAsk
	}
	return c.TickSize
}

// IsCall reports whether the contract is the call leg.
func (c OptionContract) IsCall() bool {
	return c.ContractType == ContractTypeCall
}

// Quote is the stream cache entry for one symbol. Quotes are replaced
// wholesale on every accepted update; fields absent from the newest frame
// stay zero rather than being backfilled from an older quote.
type Quote struct {
	Symbol     string
	MarkPrice  float64
	LastPrice  float64
	BestBid    float64
	BestAsk    float64
	BidSize    float64
	AskSize    float64
	Timestamp  time.Time
	ReceivedAt time.Time
}

// BestBidAsk returns the book top, zero values meaning "absent".
func (q Quote) BestBidAsk() (bid, ask float64) {
	return q.BestBid, q.BestAsk
}
