package mapper

import (
	"math"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
	"strangleexecutor/src/utils"
)

// MapTickerToContract converts an exchange option ticker into the
// selection-time contract view in a "safe" way: missing numeric fields
// default instead of aborting the mapping, and the expiry is normalized to
// YYYY-MM-DD (empty when no source field parses).
func MapTickerToContract(t *externalmodel.DeltaTicker) *model.OptionContract {
	if t == nil {
		logger.WithField("mapper", "MapTickerToContract").
			Error("Nil DeltaTicker received")
		return nil
	}

	symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if symbol == "" {
		logger.WithField("mapper", "MapTickerToContract").
			Warn("Ticker without symbol skipped")
		return nil
	}

	delta := 0.0
	if t.Greeks != nil {
		delta = math.Abs(t.Greeks.Delta.Float64())
	}

	bid := t.BestBidPrice.Float64()
	ask := t.BestAskPrice.Float64()
	if t.Quotes != nil {
		if v := t.Quotes.BestBid.Float64(); v > 0 {
			bid = v
		}
		if v := t.Quotes.BestAsk.Float64(); v > 0 {
			ask = v
		}
	}

	tick := t.TickSize.Float64()
	if tick <= 0 {
		tick = 0.1
	}

	return &model.OptionContract{
		Symbol:       symbol,
		ProductID:    t.ProductID,
		Delta:        delta,
		Strike:       t.StrikePrice.Float64(),
		Expiry:       NormalizeExpiry(t),
		BestBid:      bid,
		BestAsk:      ask,
		MarkPrice:    t.MarkPrice.Float64(),
		TickSize:     tick,
		ContractType: contractTypeFor(t.ContractType, symbol),
	}
}

// NormalizeExpiry resolves a ticker's expiry to YYYY-MM-DD, trying the
// expiry_date field, the settlement timestamp, then the ddmmyy code at the
// end of the symbol. Empty means no source parsed.
func NormalizeExpiry(t *externalmodel.DeltaTicker) string {
	for _, raw := range []string{t.ExpiryDate, t.SettlementTime} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if d, err := utils.ParseExpiryDate(raw, time.UTC); err == nil {
			return d.Format("2006-01-02")
		}
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	if d, ok := parseSymbolExpiry(t.Symbol); ok {
		return d.Format("2006-01-02")
	}
	return ""
}

// parseSymbolExpiry reads the ddmmyy code the exchange appends to option
// symbols ("C-BTC-64000-300826").
func parseSymbolExpiry(symbol string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(symbol), "-")
	if len(parts) < 4 {
		return time.Time{}, false
	}
	parsed, err := time.Parse("020106", parts[len(parts)-1])
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// contractTypeFor falls back to a symbol heuristic when the payload omits
// the contract type; put symbols carry a P marker.
func contractTypeFor(contractType, symbol string) string {
	if contractType != "" {
		return contractType
	}
	upper := strings.ToUpper(symbol)
	if strings.HasPrefix(upper, "P-") || strings.Contains(upper, "-P-") || strings.HasSuffix(upper, "P") {
		return model.ContractTypePut
	}
	return model.ContractTypeCall
}

// MapPositionToLedger converts an exchange position into a fresh ledger row
// for adoption. Zero-sized or symbol-less positions map to nil. fallbackEntry
// covers payloads without any usable price field, typically the hydrated
// contract mid.
func MapPositionToLedger(p *externalmodel.DeltaPosition, sessionID uint, fallbackEntry float64) *model.PositionLedger {
	if p == nil {
		logger.WithField("mapper", "MapPositionToLedger").
			Error("Nil DeltaPosition received")
		return nil
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.PositionSymbol()))
	if symbol == "" {
		logger.WithField("mapper", "MapPositionToLedger").
			Warn("Position without symbol skipped")
		return nil
	}

	quantity := math.Abs(p.Size.Float64())
	if quantity == 0 {
		return nil
	}

	side := model.PositionSideLong
	if p.IsShort() {
		side = model.PositionSideShort
	}

	entry := p.EffectiveEntryPrice()
	if entry <= 0 {
		entry = fallbackEntry
	}

	row := &model.PositionLedger{
		SessionID:       sessionID,
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entry,
		Quantity:        quantity,
		EntryTime:       time.Now().UTC(),
		TrailingSLState: map[string]any{"level": 0.0},
	}

	logger.WithFields(map[string]interface{}{
		"mapper":   "MapPositionToLedger",
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"entry":    entry,
	}).Info("Exchange position mapped for adoption")

	return row
}
