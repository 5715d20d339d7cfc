package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"strangleexecutor/src/database"
	"strangleexecutor/src/model"
)

// ErrConfigurationActive is returned when deleting a configuration that is
// still the active one.
var ErrConfigurationActive = errors.New("deactivate configuration before deleting")

// ConfigurationRepository handles persistence of trading configurations.
type ConfigurationRepository struct {
	db *gorm.DB
}

// NewConfigurationRepository creates a new repository instance.
func NewConfigurationRepository() *ConfigurationRepository {
	logger.WithField("component", "ConfigurationRepository").
		Info("Creating new ConfigurationRepository with MainDB")

	return &ConfigurationRepository{
		db: database.MainDB,
	}
}

// WithDB overrides the connection, used by tests.
func (r *ConfigurationRepository) WithDB(db *gorm.DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

// List returns every configuration, newest first.
func (r *ConfigurationRepository) List(ctx context.Context) ([]model.TradingConfiguration, error) {
	var configs []model.TradingConfiguration
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&configs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConfigurationRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to list trading configurations")
		return nil, err
	}
	return configs, nil
}

// FindByID returns one configuration, or (nil, nil) when it does not exist.
func (r *ConfigurationRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.TradingConfiguration, error) {

	var config model.TradingConfiguration
	err := r.db.WithContext(ctx).First(&config, id).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ConfigurationRepository",
			"op":        "FindByID",
			"config_id": id,
		}).WithError(err).Error("Failed to load trading configuration")
		return nil, err
	}
	return &config, nil
}

// FindActive returns the configuration flagged active, or (nil, nil) when
// none is.
func (r *ConfigurationRepository) FindActive(ctx context.Context) (*model.TradingConfiguration, error) {
	var config model.TradingConfiguration
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		First(&config).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConfigurationRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to load active trading configuration")
		return nil, err
	}
	return &config, nil
}

// Create inserts a new configuration.
func (r *ConfigurationRepository) Create(
	ctx context.Context,
	config *model.TradingConfiguration,
) error {

	logger.WithFields(map[string]interface{}{
		"repo": "ConfigurationRepository",
		"op":   "Create",
		"name": config.Name,
	}).Debug("Creating trading configuration")

	err := r.db.WithContext(ctx).Create(config).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ConfigurationRepository",
			"op":   "Create",
			"name": config.Name,
		}).WithError(err).Error("Failed to create trading configuration")
		return err
	}
	return nil
}

// Update persists the full configuration row.
func (r *ConfigurationRepository) Update(
	ctx context.Context,
	config *model.TradingConfiguration,
) error {

	err := r.db.WithContext(ctx).Save(config).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ConfigurationRepository",
			"op":        "Update",
			"config_id": config.ID,
		}).WithError(err).Error("Failed to update trading configuration")
		return err
	}
	return nil
}

// Delete removes one configuration. The active configuration cannot be
// deleted; deactivate it first.
func (r *ConfigurationRepository) Delete(ctx context.Context, id uint) error {
	config, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if config == nil {
		return gorm.ErrRecordNotFound
	}
	if config.IsActive {
		return ErrConfigurationActive
	}

	err = r.db.WithContext(ctx).Delete(&model.TradingConfiguration{}, id).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ConfigurationRepository",
			"op":        "Delete",
			"config_id": id,
		}).WithError(err).Error("Failed to delete trading configuration")
		return err
	}
	return nil
}

// Activate flags one configuration active and clears the flag everywhere
// else, in one transaction. Returns the activated row.
func (r *ConfigurationRepository) Activate(
	ctx context.Context,
	id uint,
) (*model.TradingConfiguration, error) {

	logger.WithFields(map[string]interface{}{
		"repo":      "ConfigurationRepository",
		"op":        "Activate",
		"config_id": id,
	}).Info("Activating trading configuration")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.TradingConfiguration{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		result := tx.Model(&model.TradingConfiguration{}).
			Where("id = ?", id).
			Update("is_active", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ConfigurationRepository",
			"op":        "Activate",
			"config_id": id,
		}).WithError(err).Error("Failed to activate trading configuration")
		return nil, err
	}

	return r.FindByID(ctx, id)
}
