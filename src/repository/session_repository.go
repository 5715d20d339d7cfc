package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strangleexecutor/src/database"
	"strangleexecutor/src/model"
)

// SessionRepository handles read/write operations for strategy sessions.
// The engine writes through it on every monitor pass; the control plane
// reads through it to answer runtime queries while the engine is idle.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new repository instance using the main read/write database.
func NewSessionRepository() *SessionRepository {
	logger.WithField("component", "SessionRepository").
		Info("Creating new SessionRepository with MainDB")

	return &SessionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SessionRepository) WithDB(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new strategy session. The session is updated in place
// with the generated ID and timestamps.
func (r *SessionRepository) Create(
	ctx context.Context,
	session *model.StrategySession,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "SessionRepository",
		"op":          "Create",
		"strategy_id": session.StrategyID,
		"status":      session.Status,
	}).Debug("Creating strategy session")

	err := r.db.WithContext(ctx).Create(session).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "SessionRepository",
			"op":          "Create",
			"strategy_id": session.StrategyID,
		}).WithError(err).Error("Failed to create strategy session")
		return err
	}
	return nil
}

// Update persists the current state of the session row (jsonb columns
// included). Orders and positions are managed through their own
// repositories, not through association saves.
func (r *SessionRepository) Update(
	ctx context.Context,
	session *model.StrategySession,
) error {

	err := r.db.WithContext(ctx).
		Omit("Orders", "Positions").
		Save(session).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "SessionRepository",
			"op":          "Update",
			"session_id":  session.ID,
			"strategy_id": session.StrategyID,
		}).WithError(err).Error("Failed to update strategy session")
		return err
	}
	return nil
}

// MarkStopped closes the session: status, deactivation timestamp and the
// final summaries in one write.
func (r *SessionRepository) MarkStopped(
	ctx context.Context,
	session *model.StrategySession,
	deactivatedAt time.Time,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "SessionRepository",
		"op":          "MarkStopped",
		"session_id":  session.ID,
		"strategy_id": session.StrategyID,
	}).Info("Marking strategy session stopped")

	session.Status = model.SessionStatusStopped
	session.DeactivatedAt = &deactivatedAt
	return r.Update(ctx, session)
}

// FindByID loads one session with its orders and positions.
// Returns (nil, nil) when the session does not exist.
func (r *SessionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.StrategySession, error) {

	var session model.StrategySession
	err := r.db.WithContext(ctx).
		Preload("Orders").
		Preload("Positions").
		First(&session, id).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "SessionRepository",
			"op":         "FindByID",
			"session_id": id,
		}).WithError(err).Error("Failed to load strategy session")
		return nil, err
	}
	return &session, nil
}

// FindLatest returns the most recently created session, or (nil, nil)
// when no session was ever recorded.
func (r *SessionRepository) FindLatest(ctx context.Context) (*model.StrategySession, error) {
	var session model.StrategySession
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		First(&session).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SessionRepository",
			"op":   "FindLatest",
		}).WithError(err).Error("Failed to load latest strategy session")
		return nil, err
	}
	return &session, nil
}

// SessionSearchOptions narrows List results. Zero values mean "no filter".
type SessionSearchOptions struct {
	Status string
	Limit  int
	Offset int
}

// List returns sessions newest first, without the order/position
// associations.
func (r *SessionRepository) List(
	ctx context.Context,
	options SessionSearchOptions,
) ([]model.StrategySession, error) {

	query := r.db.WithContext(ctx).Model(&model.StrategySession{})

	if options.Status != "" {
		query = query.Where("status = ?", options.Status)
	}

	query = query.Order("created_at DESC, id DESC")

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var sessions []model.StrategySession
	if err := query.Find(&sessions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SessionRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to list strategy sessions")
		return nil, err
	}
	return sessions, nil
}
