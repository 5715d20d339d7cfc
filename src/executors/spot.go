package executors

import (
	"strings"
	"time"
)

// spotState tracks the underlying's spot price over the run: value at
// entry, at exit, the latest read and the observed extremes. All values
// are nil until the first successful read.
type spotState struct {
	symbol    string
	entry     *float64
	exit      *float64
	last      *float64
	high      *float64
	low       *float64
	updatedAt *time.Time
}

func (s spotState) snapshot() map[string]any {
	return map[string]any{
		"entry":      numOrNil(s.entry),
		"exit":       numOrNil(s.exit),
		"last":       numOrNil(s.last),
		"high":       numOrNil(s.high),
		"low":        numOrNil(s.low),
		"updated_at": isoTimePtr(s.updatedAt),
	}
}

// spotCandidates lists the symbols the underlying's spot price may live
// under, most specific first. The .DEX index symbol is the canonical one;
// the rest cover perpetual and spot market naming.
func spotCandidates(underlying string) []string {
	u := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, strings.TrimSpace(underlying))
	if u == "" {
		u = "BTC"
	}

	raw := []string{
		".DEX" + u + "USD",
		u + "USD",
		u + "-USD",
		u + "-USDT",
		u + "USDT",
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(raw))
	for _, symbol := range raw {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, symbol)
	}
	return out
}

// refreshSpot reads the current spot price and folds it into the run
// state. markEntry pins the entry-time value, markExit the exit-time one.
// A failed read leaves the previous values alone.
func (e *StrategyEngine) refreshSpot(state *runtimeState, markEntry, markExit bool) {
	e.mu.Lock()
	knownSymbol := state.spot.symbol
	underlying := state.config.Underlying
	e.mu.Unlock()

	price, at, symbol, ok := e.fetchSpotPrice(knownSymbol, underlying)
	if !ok {
		e.log.WithField("underlying", underlying).Debug("No spot price source answered")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	spot := &state.spot
	spot.symbol = symbol
	spot.last = floatPtr(price)
	if markEntry {
		spot.entry = floatPtr(price)
	}
	if markExit {
		spot.exit = floatPtr(price)
	}
	if spot.high == nil || price > *spot.high {
		spot.high = floatPtr(price)
	}
	if spot.low == nil || price < *spot.low {
		spot.low = floatPtr(price)
	}
	t := at
	spot.updatedAt = &t
	e.mergeRuntime(state, map[string]any{"spot": spot.snapshot()})
}

// fetchSpotPrice resolves the spot price, preferring the quote stream for
// an already-resolved symbol and falling back to a REST scan over the
// candidate symbols. Ticker errors move to the next candidate; the single
// ticker endpoint reports an unknown symbol the same way as any other
// failure.
func (e *StrategyEngine) fetchSpotPrice(knownSymbol, underlying string) (float64, time.Time, string, bool) {
	now := e.now().UTC()

	if knownSymbol != "" && e.quotes != nil {
		if q, err := e.quotes.Quote(knownSymbol); err == nil {
			price := q.MarkPrice
			if price <= 0 {
				price = q.LastPrice
			}
			if price > 0 {
				at := q.Timestamp
				if at.IsZero() {
					at = now
				}
				return price, at, knownSymbol, true
			}
		}
	}

	if e.client == nil {
		return 0, time.Time{}, "", false
	}

	candidates := spotCandidates(underlying)
	if knownSymbol != "" {
		candidates = append([]string{knownSymbol}, candidates...)
	}
	tried := map[string]bool{}
	for _, symbol := range candidates {
		if tried[symbol] {
			continue
		}
		tried[symbol] = true
		ticker, err := e.client.GetTicker(symbol)
		if err != nil {
			e.log.WithError(err).WithField("symbol", symbol).
				Debug("Spot candidate lookup failed")
			continue
		}
		price := ticker.SpotPrice.Float64()
		if price <= 0 {
			price = ticker.MarkPrice.Float64()
		}
		if price <= 0 {
			price = ticker.LastPrice.Float64()
		}
		if price <= 0 {
			continue
		}
		return price, epochTime(ticker.Timestamp.Float64(), now), symbol, true
	}
	return 0, time.Time{}, "", false
}

// epochTime interprets a raw exchange timestamp by magnitude: above 1e15
// microseconds, above 1e12 milliseconds, otherwise seconds. Non-positive
// values fall back to the given time.
func epochTime(raw float64, fallback time.Time) time.Time {
	if raw <= 0 {
		return fallback
	}
	switch {
	case raw > 1e15:
		return time.UnixMicro(int64(raw)).UTC()
	case raw > 1e12:
		return time.UnixMilli(int64(raw)).UTC()
	default:
		sec := int64(raw)
		nsec := int64((raw - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
