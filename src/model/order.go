package model

import "time"

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderTypeLimit  = "limit_order"
	OrderTypeMarket = "market_order"
)

// Exchange order states as reported by Delta. "closed" means fully filled.
const (
	OrderStateOpen      = "open"
	OrderStatePending   = "pending"
	OrderStateClosed    = "closed"
	OrderStateCancelled = "cancelled"
	OrderStateRejected  = "rejected"
	OrderStateError     = "error"
	OrderStateSimulated = "simulated"
)

// OrderLedger records every order the engine sent (or simulated), one row
// per exchange order, linked to its strategy session.
type OrderLedger struct {
	ID            uint     `gorm:"primaryKey" json:"id"`
	SessionID     uint     `gorm:"index;not null" json:"session_id"`
	OrderID       string   `gorm:"size:64;index" json:"order_id"`
	ClientOrderID string   `gorm:"size:64" json:"client_order_id,omitempty"`
	Symbol        string   `gorm:"size:64;index;not null" json:"symbol"`
	Side          string   `gorm:"size:10;not null" json:"side"`
	OrderType     string   `gorm:"size:20;not null" json:"order_type"`
	Quantity      float64  `gorm:"not null" json:"quantity"`
	Price         *float64 `json:"price,omitempty"`
	FillPrice     *float64 `json:"fill_price,omitempty"`
	Status        string   `gorm:"size:20;not null;default:pending" json:"status"`
	// RawResponse keeps the exchange payload for reconciliation.
	RawResponse map[string]any `gorm:"type:jsonb;serializer:json" json:"raw_response,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (OrderLedger) TableName() string {
	return "order_ledger"
}
