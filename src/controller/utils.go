package controller

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"
)

// maxClientOrderIDLen is the exchange limit on client_order_id.
const maxClientOrderIDLen = 32

// RoundToTick quantizes a price to the contract tick size, half up. A
// non-positive tick falls back to 0.1 so a broken product payload can never
// produce an unquantized price.
func RoundToTick(price, tickSize float64) float64 {
	tick := decimal.NewFromFloat(tickSize)
	if tick.Sign() <= 0 {
		tick = decimal.NewFromFloat(0.1)
	}
	p := decimal.NewFromFloat(price)
	steps := p.Div(tick).Round(0)
	out, _ := steps.Mul(tick).Float64()
	return out
}

// DetermineLimitPrice picks the resting price for one ladder attempt.
// Buys quote at the ask, or one tick above the bid when the ask side is
// empty; sells quote at the bid, or one tick under the ask floored at one
// tick. With no book at all the fallback (normally the contract mid) is
// used, and a non-positive fallback degrades to one tick. Values <= 0 are
// treated as an absent side.
func DetermineLimitPrice(side string, bestBid, bestAsk, tickSize, fallback float64) float64 {
	tick := tickSize
	if tick <= 0 {
		tick = 0.1
	}
	safeFallback := fallback
	if safeFallback <= 0 {
		safeFallback = tick
	}

	price := 0.0
	if strings.EqualFold(side, model.OrderSideBuy) {
		switch {
		case bestAsk > 0:
			price = bestAsk
		case bestBid > 0:
			price = bestBid + tick
		}
	} else {
		switch {
		case bestBid > 0:
			price = bestBid
		case bestAsk > 0:
			price = bestAsk - tick
			if price < tick {
				price = tick
			}
		}
	}

	if price <= 0 {
		price = safeFallback
	}
	return price
}

// FormatPrice renders a price for the order payload without float noise or
// trailing zeros.
func FormatPrice(price float64) string {
	formatted := decimal.NewFromFloat(price).String()
	if formatted == "" {
		return "0"
	}
	return formatted
}

// OptionKindCode maps a contract type to the CE/PE leg code used in client
// order ids.
func OptionKindCode(contractType string) string {
	lowered := strings.ToLower(contractType)
	if strings.Contains(lowered, "put") {
		return "PE"
	}
	if strings.Contains(lowered, "call") {
		return "CE"
	}
	if lowered == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(contractType)
}

// BuildClientOrderID composes "<token>-<CE|PE>-<rand>-<suffix>": strategy
// token, leg code, 4 random hex chars, and L{attempt} or MKT. The strategy
// token is reduced to alphanumerics (plus - and _) and truncated first so
// the id never exceeds the exchange's 32-char limit.
func BuildClientOrderID(strategyID, contractType, orderKind string, attempt int) string {
	suffix := "MKT"
	if orderKind == "limit" {
		suffix = "L" + strconv.Itoa(attempt)
	}

	code := OptionKindCode(contractType)
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]

	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, strategyID)
	if token == "" {
		token = "strategy"
	}

	// Three separators join the four parts.
	maxToken := maxClientOrderIDLen - (len(code) + len(random) + len(suffix) + 3)
	if maxToken < 0 {
		maxToken = 0
	}
	if len(token) > maxToken {
		token = token[:maxToken]
	}

	parts := make([]string, 0, 4)
	for _, part := range []string{token, code, random, suffix} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	id := strings.Join(parts, "-")
	if len(id) > maxClientOrderIDLen {
		id = id[:maxClientOrderIDLen]
	}
	return id
}

// Capture records a system exception, logs it locally, and optionally
// persists it in the database.
func Capture(
	ctx context.Context,
	repo *repository.ExceptionRepository,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}

	// Local log
	logger.WithFields(map[string]interface{}{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("System exception captured")

	// Persist in database
	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}
