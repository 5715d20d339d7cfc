package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
	"strangleexecutor/src/utils"
)

func optionTicker(symbol, contractType, expiry string, delta float64) externalmodel.DeltaTicker {
	return externalmodel.DeltaTicker{
		Symbol:       symbol,
		ProductID:    41203,
		ContractType: contractType,
		StrikePrice:  externalmodel.Number(64000),
		MarkPrice:    externalmodel.Number(120.5),
		TickSize:     externalmodel.Number(0.1),
		BestBidPrice: externalmodel.Number(118),
		BestAskPrice: externalmodel.Number(123),
		ExpiryDate:   expiry,
		Greeks:       &externalmodel.DeltaGreeks{Delta: externalmodel.Number(delta)},
	}
}

func selectorConfig() *model.TradingConfiguration {
	return &model.TradingConfiguration{
		Name:         "default",
		Underlying:   "BTC",
		DeltaLow:     0.10,
		DeltaHigh:    0.20,
		TradeTimeIST: "09:30",
		ExitTimeIST:  "15:20",
		Quantity:     1,
		ContractSize: 0.001,
	}
}

func newTestSelector(t *testing.T, now time.Time) *Selector {
	t.Helper()
	nullLogger, _ := logrustest.NewNullLogger()
	sel := NewSelector(logrus.NewEntry(nullLogger))
	sel.now = func() time.Time { return now }
	return sel
}

func TestSelectContractsPicksHighestDelta(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-64000-260826", "call_options", "26-08-2026", 0.12),
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.19),
		optionTicker("P-BTC-58000-260826", "put_options", "26-08-2026", -0.12),
		optionTicker("P-BTC-56000-260826", "put_options", "26-08-2026", -0.19),
	}

	selection, err := sel.SelectContracts(tickers, selectorConfig(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if selection.Call.Symbol != "C-BTC-66000-260826" {
		t.Fatalf("expected the 0.19 delta call, got %s (delta %.2f)", selection.Call.Symbol, selection.Call.Delta)
	}
	if selection.Put.Symbol != "P-BTC-56000-260826" {
		t.Fatalf("expected the 0.19 delta put, got %s (delta %.2f)", selection.Put.Symbol, selection.Put.Delta)
	}
	if selection.ExpiryMismatch {
		t.Fatalf("same-expiry selection must not flag a mismatch")
	}
}

func TestSelectContractsFiltersDeltaRange(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-70000-260826", "call_options", "26-08-2026", 0.05),
		optionTicker("C-BTC-64500-260826", "call_options", "26-08-2026", 0.45),
		optionTicker("C-BTC-65000-260826", "call_options", "26-08-2026", 0.15),
		optionTicker("P-BTC-58000-260826", "put_options", "26-08-2026", -0.11),
		optionTicker("P-BTC-50000-260826", "put_options", "26-08-2026", -0.02),
	}

	selection, err := sel.SelectContracts(tickers, selectorConfig(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, leg := range []*model.OptionContract{selection.Call, selection.Put} {
		if leg.Delta < 0.10 || leg.Delta > 0.20 {
			t.Fatalf("selected %s with delta %.2f outside [0.10, 0.20]", leg.Symbol, leg.Delta)
		}
	}
	if selection.Call.Symbol != "C-BTC-65000-260826" {
		t.Fatalf("expected only in-range call to win, got %s", selection.Call.Symbol)
	}
}

func TestSelectContractsNoContractsInRange(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-80000-260826", "call_options", "26-08-2026", 0.02),
		optionTicker("P-BTC-40000-260826", "put_options", "26-08-2026", -0.03),
	}

	_, err := sel.SelectContracts(tickers, selectorConfig(), 2)
	if !errors.Is(err, ErrNoEligibleContracts) {
		t.Fatalf("expected ErrNoEligibleContracts, got %v", err)
	}
}

func TestSelectContractsExplicitExpiry(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	config := selectorConfig()
	expiry := "2026-09-30"
	config.ExpiryDate = &expiry

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.19),
		optionTicker("P-BTC-56000-260826", "put_options", "26-08-2026", -0.19),
		optionTicker("C-BTC-70000-300926", "call_options", "30-09-2026", 0.14),
		optionTicker("P-BTC-52000-300926", "put_options", "30-09-2026", -0.13),
	}

	selection, err := sel.SelectContracts(tickers, config, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if selection.SelectedExpiry != "2026-09-30" {
		t.Fatalf("expected explicit expiry to win, got %s", selection.SelectedExpiry)
	}
	if selection.Call.Expiry != "2026-09-30" || selection.Put.Expiry != "2026-09-30" {
		t.Fatalf("legs must sit on the configured expiry, got call=%s put=%s", selection.Call.Expiry, selection.Put.Expiry)
	}
}

func TestSelectContractsExpiredExplicitExpiry(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	config := selectorConfig()
	expiry := "2026-08-20"
	config.ExpiryDate = &expiry

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.19),
		optionTicker("P-BTC-56000-260826", "put_options", "26-08-2026", -0.19),
	}

	_, err := sel.SelectContracts(tickers, config, 2)
	if !errors.Is(err, ErrExpiredExpiry) {
		t.Fatalf("expected ErrExpiredExpiry, got %v", err)
	}
}

func TestSelectContractsInvalidExplicitExpiry(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	config := selectorConfig()
	expiry := "next friday"
	config.ExpiryDate = &expiry

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.19),
		optionTicker("P-BTC-56000-260826", "put_options", "26-08-2026", -0.19),
	}

	_, err := sel.SelectContracts(tickers, config, 2)
	if !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}
}

func TestSelectContractsBufferRollsPastTodaysExpiry(t *testing.T) {
	// 23:30 IST + 2h lands on the next calendar day, so today's expiry is
	// no longer eligible even though it is nearest.
	now := time.Date(2026, 8, 25, 23, 30, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-66000-250826", "call_options", "25-08-2026", 0.19),
		optionTicker("P-BTC-56000-250826", "put_options", "25-08-2026", -0.19),
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.15),
		optionTicker("P-BTC-56000-260826", "put_options", "26-08-2026", -0.15),
	}

	selection, err := sel.SelectContracts(tickers, selectorConfig(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if selection.SelectedExpiry != "2026-08-26" {
		t.Fatalf("expected the buffered expiry 2026-08-26, got %s", selection.SelectedExpiry)
	}
}

func TestSelectContractsFallsBackToNearestCompleteExpiry(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	config := selectorConfig()
	expiry := "2026-12-01"
	config.ExpiryDate = &expiry

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.19),
		optionTicker("P-BTC-56000-260826", "put_options", "26-08-2026", -0.19),
	}

	selection, err := sel.SelectContracts(tickers, config, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if selection.SelectedExpiry != "2026-08-26" {
		t.Fatalf("expected fallback to the only complete expiry, got %s", selection.SelectedExpiry)
	}
}

func TestSelectContractsMismatchedExpiriesSurfaced(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	// No single expiry has both sides, so the pick runs unconstrained.
	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.19),
		optionTicker("P-BTC-56000-270826", "put_options", "27-08-2026", -0.19),
	}

	selection, err := sel.SelectContracts(tickers, selectorConfig(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !selection.ExpiryMismatch {
		t.Fatalf("expected the expiry mismatch to be surfaced")
	}
	if selection.Call.Expiry == selection.Put.Expiry {
		t.Fatalf("fixture should produce differing expiries")
	}
}

func TestSelectContractsMissingSideFails(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, utils.ExchangeLocation())
	sel := newTestSelector(t, now)

	tickers := []externalmodel.DeltaTicker{
		optionTicker("C-BTC-66000-260826", "call_options", "26-08-2026", 0.19),
		optionTicker("C-BTC-67000-270826", "call_options", "27-08-2026", 0.12),
	}

	_, err := sel.SelectContracts(tickers, selectorConfig(), 2)
	if !errors.Is(err, ErrNoEligibleExpiry) {
		t.Fatalf("expected ErrNoEligibleExpiry, got %v", err)
	}
}
