package model

import "time"

const (
	SessionStatusCreated   = "created"
	SessionStatusActive    = "active"
	SessionStatusStopped   = "stopped"
	SessionStatusCompleted = "completed"
)

// StrategySession is one run of the strategy: created when a start is
// requested, activated when the engine enters, closed by the forced exit.
type StrategySession struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	StrategyID    string     `gorm:"size:64;index;not null" json:"strategy_id"`
	Status        string     `gorm:"size:20;not null;default:created" json:"status"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	// ConfigSnapshot freezes the configuration the session ran with.
	ConfigSnapshot map[string]any `gorm:"type:jsonb;serializer:json" json:"config_snapshot,omitempty"`
	PnlSummary     map[string]any `gorm:"type:jsonb;serializer:json" json:"pnl_summary,omitempty"`
	// SessionMetadata mirrors the engine runtime state (runtime, summary,
	// legs_summary) so the control plane can answer when the engine is idle.
	SessionMetadata map[string]any `gorm:"type:jsonb;serializer:json" json:"session_metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	Orders    []OrderLedger    `gorm:"foreignKey:SessionID" json:"orders,omitempty"`
	Positions []PositionLedger `gorm:"foreignKey:SessionID" json:"positions,omitempty"`
}

func (StrategySession) TableName() string {
	return "strategy_sessions"
}

// DurationSeconds returns the session length, using now for open sessions.
func (s *StrategySession) DurationSeconds(now time.Time) *float64 {
	if s.ActivatedAt == nil {
		return nil
	}
	end := now
	if s.DeactivatedAt != nil {
		end = *s.DeactivatedAt
	}
	d := end.Sub(*s.ActivatedAt).Seconds()
	if d < 0 {
		d = 0
	}
	return &d
}
