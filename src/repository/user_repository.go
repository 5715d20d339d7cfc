package repository

import (
	"context"
	"errors"
	"sync"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strangleexecutor/src/database"
	"strangleexecutor/src/model"
)

type GormUserRepository struct {
	db *gorm.DB
}

var (
	userRepoOnce sync.Once
	userRepo     *GormUserRepository
)

func NewUserRepository() *GormUserRepository {
	logger.WithField("component", "GormUserRepository").
		Info("Creating new GormUserRepository with MainDB")

	return &GormUserRepository{
		db: database.MainDB,
	}
}

// GetUserRepository returns the shared instance used by the handlers.
func GetUserRepository() *GormUserRepository {
	userRepoOnce.Do(func() {
		userRepo = NewUserRepository()
	})
	return userRepo
}

// WithDB overrides the connection, used by tests.
func (r *GormUserRepository) WithDB(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetUserByUserName(
	ctx context.Context,
	userName string,
) (*model.User, error) {

	var u model.User
	err := r.db.WithContext(ctx).
		Where("user_name = ? ", userName).
		First(&u).Error

	if err != nil {
		return nil, err
	}

	return &u, nil
}

// FindByTokenHash resolves the bearer token (already hashed) to its user.
// Returns (nil, nil) when no user carries that token.
func (r *GormUserRepository) FindByTokenHash(
	ctx context.Context,
	tokenHash string,
) (*model.User, error) {

	var u model.User
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&u).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "GormUserRepository",
			"op":   "FindByTokenHash",
		}).WithError(err).Error("Failed to load user by token")
		return nil, err
	}

	return &u, nil
}

func (r *GormUserRepository) Update(user *model.User) error {
	err := r.db.Save(user).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "GormUserRepository",
			"op":      "Update",
			"user_id": user.ID,
		}).WithError(err).Error("Failed to update user")
		return err
	}
	return nil
}
