package externalmodel

import (
	"encoding/json"
	"testing"
)

// TestNumberUnmarshal covers the numeric shapes Delta mixes freely: bare
// numbers, quoted decimals, null and empty strings.
func TestNumberUnmarshal(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{name: "bare number", in: `1.5`, want: 1.5},
		{name: "negative number", in: `-3`, want: -3},
		{name: "quoted decimal", in: `"0.15"`, want: 0.15},
		{name: "quoted integer", in: `"64000"`, want: 64000},
		{name: "null", in: `null`, want: 0},
		{name: "empty string", in: `""`, want: 0},
		{name: "garbage string", in: `"not-a-number"`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var n Number
			err := json.Unmarshal([]byte(tc.in), &n)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n.Float64() != tc.want {
				t.Fatalf("value mismatch. got=%v want=%v", n.Float64(), tc.want)
			}
		})
	}
}

// TestDeltaOrderFilledSize floors negative remainders at zero.
func TestDeltaOrderFilledSize(t *testing.T) {
	order := &DeltaOrder{Size: 10, UnfilledSize: 4}
	if got := order.FilledSize(); got != 6 {
		t.Fatalf("filled size mismatch. got=%v want=6", got)
	}

	order = &DeltaOrder{Size: 1, UnfilledSize: 2}
	if got := order.FilledSize(); got != 0 {
		t.Fatalf("expected floor at zero, got %v", got)
	}
}

// TestDeltaPositionHelpers covers symbol preference, the entry-price
// fallback chain and direction detection.
func TestDeltaPositionHelpers(t *testing.T) {
	pos := &DeltaPosition{ProductSymbol: "C-BTC-64000-300826", Symbol: "ignored"}
	if got := pos.PositionSymbol(); got != "C-BTC-64000-300826" {
		t.Fatalf("symbol mismatch. got=%v want=C-BTC-64000-300826", got)
	}
	pos = &DeltaPosition{Symbol: "P-BTC-60000-300826"}
	if got := pos.PositionSymbol(); got != "P-BTC-60000-300826" {
		t.Fatalf("expected bare symbol fallback, got %v", got)
	}

	pos = &DeltaPosition{AveragePrice: 101.5, MarkPrice: 99}
	if got := pos.EffectiveEntryPrice(); got != 101.5 {
		t.Fatalf("entry price chain mismatch. got=%v want=101.5", got)
	}
	pos = &DeltaPosition{MarkPrice: 99}
	if got := pos.EffectiveEntryPrice(); got != 99 {
		t.Fatalf("expected mark fallback, got %v", got)
	}
	if got := (&DeltaPosition{}).EffectiveEntryPrice(); got != 0 {
		t.Fatalf("expected 0 for empty payload, got %v", got)
	}

	if !(&DeltaPosition{Side: "sell", Size: 1}).IsShort() {
		t.Fatalf("explicit sell side must be short")
	}
	if !(&DeltaPosition{Size: -2}).IsShort() {
		t.Fatalf("negative size must be short")
	}
	if (&DeltaPosition{Side: "buy", Size: 3}).IsShort() {
		t.Fatalf("positive buy must be long")
	}
}
