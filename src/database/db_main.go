package database

import (
	"fmt"

	"strangleexecutor/src/database/migrations"
	"strangleexecutor/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {

	config := GetConfig()
	db, err := openPostgres(config.DatabaseURLMain, config.GormLogLevel)
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	// Run AutoMigrate only on the main database.
	// Add here all models that belong to the write-side schema.
	if err := MainDB.AutoMigrate(
		&model.User{},
		&model.TradingConfiguration{},
		&model.StrategySession{},
		&model.OrderLedger{},
		&model.PositionLedger{},
		&model.Exception{},
		&model.OHLCVCrypto1m{},
		&model.OHLCVCrypto1h{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(MainDB); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}
