package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ----- option fee estimation -----

const (
	DefaultFeeRate        = 0.00015
	DefaultPremiumCapRate = 0.05
	GSTRate               = 0.18
)

// OptionFeeInput describes one option order for fee estimation. FeeRate and
// PremiumCapRate fall back to the exchange defaults when zero.
type OptionFeeInput struct {
	UnderlyingPrice float64 `json:"underlying_price"`
	ContractSize    float64 `json:"contract_size"`
	Quantity        int     `json:"quantity"`
	Premium         float64 `json:"premium"`
	FeeRate         float64 `json:"fee_rate,omitempty"`
	PremiumCapRate  float64 `json:"premium_cap_rate,omitempty"`
	OrderType       string  `json:"order_type,omitempty"`
}

// OptionFeeEstimate is the full fee breakdown, GST included.
type OptionFeeEstimate struct {
	UnderlyingPrice float64 `json:"underlying_price"`
	ContractSize    float64 `json:"contract_size"`
	Quantity        int     `json:"quantity"`
	Premium         float64 `json:"premium"`
	FeeRate         float64 `json:"fee_rate"`
	PremiumCapRate  float64 `json:"premium_cap_rate"`
	OrderType       string  `json:"order_type"`
	Notional        float64 `json:"notional"`
	NotionalFee     float64 `json:"notional_fee"`
	PremiumValue    float64 `json:"premium_value"`
	PremiumCap      float64 `json:"premium_cap"`
	AppliedFee      float64 `json:"applied_fee"`
	CapApplied      bool    `json:"cap_applied"`
	GSTRate         float64 `json:"gst_rate"`
	TotalWithGST    float64 `json:"total_fee_with_gst"`
}

// EstimateOptionFee computes the exchange option fee for one order: the
// notional fee (notional × rate) capped at a fraction of the premium value,
// plus GST. A zero premium disables the cap.
func EstimateOptionFee(in OptionFeeInput) (OptionFeeEstimate, error) {
	if in.UnderlyingPrice <= 0 {
		return OptionFeeEstimate{}, fmt.Errorf("underlying price must be greater than zero")
	}
	if in.ContractSize <= 0 {
		return OptionFeeEstimate{}, fmt.Errorf("contract size must be greater than zero")
	}
	if in.Quantity <= 0 {
		return OptionFeeEstimate{}, fmt.Errorf("quantity must be greater than zero")
	}
	if in.Premium < 0 {
		return OptionFeeEstimate{}, fmt.Errorf("premium cannot be negative")
	}
	if in.FeeRate < 0 {
		return OptionFeeEstimate{}, fmt.Errorf("fee rate cannot be negative")
	}
	if in.PremiumCapRate < 0 {
		return OptionFeeEstimate{}, fmt.Errorf("premium cap rate cannot be negative")
	}

	feeRate := in.FeeRate
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	capRate := in.PremiumCapRate
	if capRate == 0 {
		capRate = DefaultPremiumCapRate
	}
	orderType := in.OrderType
	if orderType == "" {
		orderType = "taker"
	}

	price := decimal.NewFromFloat(in.UnderlyingPrice)
	cs := decimal.NewFromFloat(in.ContractSize)
	qty := decimal.NewFromInt(int64(in.Quantity))
	premium := decimal.NewFromFloat(in.Premium)

	notional := price.Mul(cs).Mul(qty)
	premiumValue := cs.Mul(qty).Mul(premium)

	notionalFee := notional.Mul(decimal.NewFromFloat(feeRate))
	premiumCap := premiumValue.Mul(decimal.NewFromFloat(capRate))

	applied := notionalFee
	capApplied := false
	if premiumValue.IsPositive() && premiumCap.LessThanOrEqual(notionalFee) {
		applied = premiumCap
		capApplied = true
	}

	totalWithGST := applied.Mul(decimal.NewFromFloat(1 + GSTRate))

	out := OptionFeeEstimate{
		UnderlyingPrice: in.UnderlyingPrice,
		ContractSize:    in.ContractSize,
		Quantity:        in.Quantity,
		Premium:         in.Premium,
		FeeRate:         feeRate,
		PremiumCapRate:  capRate,
		OrderType:       orderType,
		GSTRate:         GSTRate,
		CapApplied:      capApplied,
	}
	out.Notional, _ = notional.Float64()
	out.NotionalFee, _ = notionalFee.Float64()
	out.PremiumValue, _ = premiumValue.Float64()
	out.PremiumCap, _ = premiumCap.Float64()
	out.AppliedFee, _ = applied.Float64()
	out.TotalWithGST, _ = totalWithGST.Float64()
	return out, nil
}
