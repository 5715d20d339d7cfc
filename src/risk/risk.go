package risk

import (
	"github.com/shopspring/decimal"

	"strangleexecutor/src/model"
)

// ----- per-leg math -----

// LegPnL returns the profit of a single option leg in quote currency.
// Short legs profit when price falls, long legs when it rises. For open
// positions pass the current mark as exitPrice to get the unrealized number.
func LegPnL(side string, entryPrice, exitPrice, quantity, contractSize float64) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	qty := decimal.NewFromFloat(quantity)
	cs := decimal.NewFromFloat(contractSize)

	var diff decimal.Decimal
	if side == model.PositionSideShort {
		diff = entry.Sub(exit)
	} else {
		diff = exit.Sub(entry)
	}
	pnl, _ := diff.Mul(qty).Mul(cs).Float64()
	return pnl
}

// LegNotional returns |entry × qty × contract_size|, the premium value the
// percentage thresholds are measured against.
func LegNotional(entryPrice, quantity, contractSize float64) float64 {
	n, _ := decimal.NewFromFloat(entryPrice).
		Mul(decimal.NewFromFloat(quantity)).
		Mul(decimal.NewFromFloat(contractSize)).
		Abs().
		Float64()
	return n
}

// PnLPercent expresses pnl as a percentage of notional. A zero notional
// yields zero rather than a division error.
func PnLPercent(pnl, notional float64) float64 {
	if notional <= 0 {
		return 0
	}
	pct, _ := decimal.NewFromFloat(pnl).
		Div(decimal.NewFromFloat(notional)).
		Mul(decimal.NewFromInt(100)).
		Float64()
	return pct
}

// AmountFromPercent converts a percentage threshold into quote currency.
// With no notional the percentage itself is returned, so limit checks fall
// back to comparing absolute P&L against the configured number.
func AmountFromPercent(percent, notional float64) float64 {
	if notional <= 0 {
		return percent
	}
	amt, _ := decimal.NewFromFloat(percent).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromFloat(notional)).
		Float64()
	return amt
}

// ----- portfolio aggregation -----

// PortfolioTotals is the per-cycle rollup the monitor writes to the
// session P&L summary.
type PortfolioTotals struct {
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
	Total      float64 `json:"total"`
	Notional   float64 `json:"notional"`
	TotalPct   float64 `json:"total_pct"`
}

// Aggregate sums position rows into portfolio totals. Closed positions
// contribute their realized P&L, open ones the unrealized value the
// monitor computed this cycle. Notional spans both.
func Aggregate(positions []model.PositionLedger, contractSize float64) PortfolioTotals {
	realized := decimal.Zero
	unrealized := decimal.Zero
	notional := decimal.Zero

	for i := range positions {
		p := &positions[i]
		if p.IsOpen() {
			unrealized = unrealized.Add(decimal.NewFromFloat(p.UnrealizedPnl))
		} else {
			realized = realized.Add(decimal.NewFromFloat(p.RealizedPnl))
		}
		notional = notional.Add(
			decimal.NewFromFloat(p.EntryPrice).
				Mul(decimal.NewFromFloat(p.Quantity)).
				Mul(decimal.NewFromFloat(contractSize)).
				Abs(),
		)
	}

	total := realized.Add(unrealized)

	t := PortfolioTotals{}
	t.Realized, _ = realized.Float64()
	t.Unrealized, _ = unrealized.Float64()
	t.Total, _ = total.Float64()
	t.Notional, _ = notional.Float64()
	t.TotalPct = PnLPercent(t.Total, t.Notional)
	return t
}
