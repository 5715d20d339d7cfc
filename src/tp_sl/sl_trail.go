package tp_sl

import (
	"github.com/shopspring/decimal"

	"strangleexecutor/src/model"
)

// TrailingState carries the profit-trailing metrics across monitoring
// cycles. The "seen" values are monotonic for the lifetime of one session
// and reset when a new session starts.
type TrailingState struct {
	MaxProfitSeen      float64 `json:"max_profit_seen"`
	MaxProfitSeenPct   float64 `json:"max_profit_seen_pct"`
	MaxDrawdownSeen    float64 `json:"max_drawdown_seen"`
	MaxDrawdownSeenPct float64 `json:"max_drawdown_seen_pct"`
	LevelPct           float64 `json:"trailing_level_pct"`
}

// NormalizePercent maps fractional inputs to percentage points: a value in
// (0, 1) is treated as a fraction and scaled by 100, anything else is
// returned as-is. Lets operators write either 0.1 or 10 for ten percent.
func NormalizePercent(v float64) float64 {
	if v > 0 && v < 1 {
		out, _ := decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Float64()
		return out
	}
	return v
}

// Update advances the trailing metrics with this cycle's total P&L.
//
// Order per cycle:
//  1. max profit seen = max(previous, latest), absolute and percent
//  2. max drawdown seen = max(previous, max(0, -latest)), both forms
//  3. disabled: stop here, the seen metrics advance but the level is
//     left alone
//  4. enabled: level = max stop-level of every rule whose trigger is at or
//     below max profit seen pct, zero when none qualify yet
//
// The level can only ratchet up in practice because max profit seen is
// monotonic.
func Update(prev TrailingState, latestPnL, latestPnLPct float64, enabled bool, rules []model.TrailingRule) TrailingState {
	next := prev

	if latestPnL > next.MaxProfitSeen {
		next.MaxProfitSeen = latestPnL
	}
	if latestPnLPct > next.MaxProfitSeenPct {
		next.MaxProfitSeenPct = latestPnLPct
	}

	if dd := -latestPnL; dd > 0 && dd > next.MaxDrawdownSeen {
		next.MaxDrawdownSeen = dd
	}
	if ddPct := -latestPnLPct; ddPct > 0 && ddPct > next.MaxDrawdownSeenPct {
		next.MaxDrawdownSeenPct = ddPct
	}

	if !enabled {
		return next
	}

	level := 0.0
	for _, rule := range rules {
		trigger := NormalizePercent(rule.TriggerPct)
		stop := NormalizePercent(rule.LevelPct)
		if next.MaxProfitSeenPct >= trigger && stop > level {
			level = stop
		}
	}
	next.LevelPct = level
	return next
}

// Active reports whether a trailing floor has been established.
func (s TrailingState) Active(enabled bool) bool {
	return enabled && s.LevelPct > 0
}

// Snapshot renders the state for session metadata and the per-position
// trailing blob.
func (s TrailingState) Snapshot(enabled bool) map[string]any {
	return map[string]any{
		"enabled":               enabled,
		"level":                 s.LevelPct,
		"trailing_level_pct":    s.LevelPct,
		"max_profit_seen":       s.MaxProfitSeen,
		"max_profit_seen_pct":   s.MaxProfitSeenPct,
		"max_drawdown_seen":     s.MaxDrawdownSeen,
		"max_drawdown_seen_pct": s.MaxDrawdownSeenPct,
	}
}
