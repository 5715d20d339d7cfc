package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// TradingConfiguration holds the parameters for one short-strangle strategy.
// Exactly one configuration is expected to be active at a time; the engine
// receives a read-only snapshot of it at start.
type TradingConfiguration struct {
	ID               uint    `gorm:"primaryKey" json:"id"`
	Name             string  `gorm:"size:255;not null" json:"name"`
	Underlying       string  `gorm:"size:20;not null;default:BTC" json:"underlying"`
	DeltaLow         float64 `gorm:"not null;default:0.10" json:"delta_low"`
	DeltaHigh        float64 `gorm:"not null;default:0.15" json:"delta_high"`
	TradeTimeIST     string  `gorm:"size:5;not null;default:09:30" json:"trade_time_ist"`
	ExitTimeIST      string  `gorm:"size:5;not null;default:15:20" json:"exit_time_ist"`
	ExpiryDate       *string `gorm:"size:10" json:"expiry_date,omitempty"`
	Quantity         int     `gorm:"not null;default:1" json:"quantity"`
	ContractSize     float64 `gorm:"not null;default:0.001" json:"contract_size"`
	MaxLossPct       float64 `gorm:"not null;default:80" json:"max_loss_pct"`
	MaxProfitPct     float64 `gorm:"not null;default:80" json:"max_profit_pct"`
	TrailingSLEnable bool    `gorm:"column:trailing_sl_enabled;not null;default:false" json:"trailing_sl_enabled"`
	// TrailingRules maps profit trigger % -> stop level %, e.g. {"10": 2, "20": 8}.
	TrailingRules map[string]float64 `gorm:"type:jsonb;serializer:json" json:"trailing_rules,omitempty"`
	IsActive      bool               `gorm:"not null;default:false" json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (TradingConfiguration) TableName() string {
	return "trading_configurations"
}

// TrailingRule is one parsed trigger/level pair.
type TrailingRule struct {
	TriggerPct float64 `json:"trigger_pct"`
	LevelPct   float64 `json:"level_pct"`
}

// ParsedTrailingRules returns the configured rules sorted by trigger ascending.
// Entries whose key does not parse as a number are skipped.
func (c *TradingConfiguration) ParsedTrailingRules() []TrailingRule {
	rules := make([]TrailingRule, 0, len(c.TrailingRules))
	for k, v := range c.TrailingRules {
		trigger, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue
		}
		rules = append(rules, TrailingRule{TriggerPct: trigger, LevelPct: v})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].TriggerPct < rules[j].TriggerPct })
	return rules
}

// Validate checks the fields the engine depends on. It does not touch the
// expiry date; expiry validity is decided at selection time against the
// exchange-local calendar.
func (c *TradingConfiguration) Validate() error {
	if c.Underlying == "" {
		return fmt.Errorf("underlying is required")
	}
	if c.DeltaLow <= 0 || c.DeltaHigh <= 0 || c.DeltaLow >= c.DeltaHigh {
		return fmt.Errorf("delta range [%v, %v] is invalid", c.DeltaLow, c.DeltaHigh)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if c.ContractSize <= 0 {
		return fmt.Errorf("contract size must be positive")
	}
	if _, err := ParseTimeOfDay(c.TradeTimeIST); err != nil {
		return fmt.Errorf("trade_time_ist: %w", err)
	}
	if _, err := ParseTimeOfDay(c.ExitTimeIST); err != nil {
		return fmt.Errorf("exit_time_ist: %w", err)
	}
	return nil
}

// Snapshot serializes the configuration for storage on the session record.
func (c *TradingConfiguration) Snapshot() map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return map[string]any{"id": c.ID, "name": c.Name}
	}
	var snap map[string]any
	if err := json.Unmarshal(raw, &snap); err != nil {
		return map[string]any{"id": c.ID, "name": c.Name}
	}
	return snap
}

// TimeOfDay is a wall-clock HH:MM value without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}
