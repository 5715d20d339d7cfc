package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strangleexecutor/src/database"
	"strangleexecutor/src/model"
)

// PositionRepository handles read/write operations for position ledger rows.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new ledger row.
func (r *PositionRepository) Create(
	ctx context.Context,
	position *model.PositionLedger,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "PositionRepository",
		"op":         "Create",
		"session_id": position.SessionID,
		"symbol":     position.Symbol,
		"side":       position.Side,
		"qty":        position.Quantity,
	}).Debug("Creating position ledger row")

	err := r.db.WithContext(ctx).Create(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "Create",
			"symbol": position.Symbol,
		}).WithError(err).Error("Failed to create position ledger row")
		return err
	}
	return nil
}

// Update persists the full row, jsonb state included.
func (r *PositionRepository) Update(
	ctx context.Context,
	position *model.PositionLedger,
) error {

	err := r.db.WithContext(ctx).Save(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Update",
			"position_id": position.ID,
			"symbol":      position.Symbol,
		}).WithError(err).Error("Failed to update position ledger row")
		return err
	}
	return nil
}

// FindOpenBySession returns the legs of one session that have not been
// closed yet, oldest first.
func (r *PositionRepository) FindOpenBySession(
	ctx context.Context,
	sessionID uint,
) ([]model.PositionLedger, error) {

	var positions []model.PositionLedger
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND exit_time IS NULL", sessionID).
		Order("id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindOpenBySession",
			"session_id": sessionID,
		}).WithError(err).Error("Failed to load open positions")
		return nil, err
	}
	return positions, nil
}

// FindBySessionAndSymbol returns the row for one leg, or (nil, nil) when
// the session never traded that symbol.
func (r *PositionRepository) FindBySessionAndSymbol(
	ctx context.Context,
	sessionID uint,
	symbol string,
) (*model.PositionLedger, error) {

	var position model.PositionLedger
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND symbol = ?", sessionID, symbol).
		Order("id DESC").
		First(&position).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindBySessionAndSymbol",
			"session_id": sessionID,
			"symbol":     symbol,
		}).WithError(err).Error("Failed to load position by symbol")
		return nil, err
	}
	return &position, nil
}

// PnlTotals is the all-time ledger aggregate used by the analytics KPIs.
type PnlTotals struct {
	Realized   float64
	Unrealized float64
}

// SumPnl aggregates realized and unrealized P&L over the whole ledger.
func (r *PositionRepository) SumPnl(ctx context.Context) (PnlTotals, error) {
	var totals PnlTotals
	err := r.db.WithContext(ctx).
		Model(&model.PositionLedger{}).
		Select("COALESCE(SUM(realized_pnl), 0) AS realized, COALESCE(SUM(unrealized_pnl), 0) AS unrealized").
		Scan(&totals).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "SumPnl",
		}).WithError(err).Error("Failed to aggregate ledger P&L")
		return PnlTotals{}, err
	}
	return totals, nil
}
