package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strangleexecutor/src/database"
	"strangleexecutor/src/model"
)

// ExceptionRepository handles persistence of system exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// WithDB overrides the connection, used by tests.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	r.db = db
	return r
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Error("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// FindRecent returns the newest captured exceptions, newest first.
func (r *ExceptionRepository) FindRecent(ctx context.Context, limit int) ([]model.Exception, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []model.Exception
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		logger.WithError(err).Error("Failed to load recent exceptions")
		return nil, err
	}
	return rows, nil
}
