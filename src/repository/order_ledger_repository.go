package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strangleexecutor/src/database"
	"strangleexecutor/src/model"
)

// OrderRepository handles read/write operations for the order ledger.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ---------------------------------------------------
// Order ledger methods
// ---------------------------------------------------

// Create inserts a new ledger row. The given order will be updated with
// the generated ID and timestamps.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.OrderLedger,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "OrderRepository",
		"op":         "Create",
		"session_id": order.SessionID,
		"symbol":     order.Symbol,
		"side":       order.Side,
		"qty":        order.Quantity,
		"status":     order.Status,
	}).Debug("Creating order ledger row")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "Create",
			"symbol": order.Symbol,
		}).WithError(err).Error("Failed to create order ledger row")
		return err
	}
	return nil
}

// Update persists the full row, raw exchange payload included.
func (r *OrderRepository) Update(
	ctx context.Context,
	order *model.OrderLedger,
) error {

	err := r.db.WithContext(ctx).Save(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Update",
			"order_id": order.OrderID,
			"symbol":   order.Symbol,
		}).WithError(err).Error("Failed to update order ledger row")
		return err
	}
	return nil
}

// OrderSearchOptions narrows a ledger search. Nil pointers mean "no filter".
type OrderSearchOptions struct {
	SessionID     *uint
	Symbol        *string
	Side          *string
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Search lists ledger rows newest first, applying the given filters.
func (r *OrderRepository) Search(
	ctx context.Context,
	options OrderSearchOptions,
) ([]model.OrderLedger, error) {

	query := r.db.WithContext(ctx).Model(&model.OrderLedger{})

	if options.SessionID != nil {
		query = query.Where("session_id = ?", *options.SessionID)
	}
	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Side != nil {
		query = query.Where("side = ?", *options.Side)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *options.CreatedBefore)
	}

	query = query.Order("created_at DESC, id DESC")

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var orders []model.OrderLedger
	if err := query.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search order ledger")
		return nil, err
	}

	return orders, nil
}
