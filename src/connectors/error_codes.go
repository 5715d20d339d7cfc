package connectors

import "fmt"

// DeltaErrorCodes maps Delta Exchange error codes to human-readable messages.
var DeltaErrorCodes = map[string]string{
	"invalid_api_key":                   "API key is invalid or revoked",
	"unauthorized":                      "Endpoint requires authentication",
	"signature_mismatch":                "Request signature did not verify; check secret and payload ordering",
	"expired_signature":                 "Signature timestamp is outside the allowed window",
	"ip_not_whitelisted_for_api_key":    "Caller IP is not whitelisted for this API key",
	"insufficient_margin":               "Wallet margin too low for this order",
	"order_size_exceed_available":       "Order size exceeds available contract liquidity",
	"risk_limits_breached":              "Position risk limits breached",
	"invalid_contract":                  "Contract does not exist or is not live",
	"contract_expired":                  "Contract already expired / settled",
	"market_disrupted":                  "Market is in disruption, orders paused",
	"immediate_liquidation":             "Order would cause immediate liquidation",
	"out_of_bankruptcy":                 "Order price is beyond position bankruptcy price",
	"self_matching_disrupted_post_only": "Order cancelled to avoid self match",
	"immediate_execution_post_only":     "Post-only order would have executed immediately",
	"open_order_not_found":              "No open order with that id (already filled or cancelled)",
	"max_open_orders_reached":           "Too many open orders for this product",
	"invalid_order_size":                "Order size fails contract lot constraints",
	"price_out_of_range":                "Limit price outside the allowed price band",
	"unavailable":                       "Exchange temporarily unavailable",
}

// GetErrorMsg returns a human-readable message for a given Delta error code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code string) string {
	if msg, ok := DeltaErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("unrecognized delta error code %q", code)
}
