package model

import "time"

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

// PositionLedger is one leg of the strangle (or an adopted exchange
// position). At most one open row (ExitTime == nil) exists per symbol per
// session while the strategy is active. The monitor cycle is the only
// writer while the session is live.
type PositionLedger struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SessionID     uint       `gorm:"index;not null" json:"session_id"`
	Symbol        string     `gorm:"size:64;index;not null" json:"symbol"`
	Side          string     `gorm:"size:10;not null" json:"side"`
	EntryPrice    float64    `gorm:"not null" json:"entry_price"`
	ExitPrice     *float64   `json:"exit_price,omitempty"`
	Quantity      float64    `gorm:"not null" json:"quantity"`
	RealizedPnl   float64    `json:"realized_pnl"`
	UnrealizedPnl float64    `json:"unrealized_pnl"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	// TrailingSLState mirrors the per-session trailing metrics at the last
	// monitor pass (max profit/drawdown seen, current level).
	TrailingSLState map[string]any `gorm:"type:jsonb;serializer:json" json:"trailing_sl_state,omitempty"`
	// Analytics holds the last mark/last/bid/ask, notional, contract size
	// and quote timestamp for the dashboard.
	Analytics map[string]any `gorm:"type:jsonb;serializer:json" json:"analytics,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (PositionLedger) TableName() string {
	return "position_ledger"
}

// IsOpen reports whether the leg has not been closed yet.
func (p *PositionLedger) IsOpen() bool {
	return p.ExitTime == nil
}
