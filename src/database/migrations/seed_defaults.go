package migrations

import (
	"fmt"
	"os"

	"strangleexecutor/src/model"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	defaultAdminUsername = "admin"
	// Overridable at first boot; forced change is up to the operator.
	defaultAdminPassword = "admin12345"
)

// seedAdminUser creates the initial operator account when the users table
// is empty. The password can be overridden with ADMIN_INITIAL_PASSWORD.
func seedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("ADMIN_INITIAL_PASSWORD")
	if password == "" {
		password = defaultAdminPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := model.User{
		Username: defaultAdminUsername,
		Password: string(hashed),
		IsActive: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	logger.WithField("username", defaultAdminUsername).
		Warn("Seeded initial admin user, change the password after first login")

	return nil
}

// seedDefaultConfiguration inserts a disabled starter configuration so the
// dashboard has something to edit on a fresh install.
func seedDefaultConfiguration(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.TradingConfiguration{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count configurations: %w", err)
	}
	if count > 0 {
		return nil
	}

	cfg := model.TradingConfiguration{
		Name:         "BTC short strangle",
		Underlying:   "BTC",
		DeltaLow:     0.10,
		DeltaHigh:    0.15,
		TradeTimeIST: "09:30",
		ExitTimeIST:  "15:20",
		Quantity:     1,
		ContractSize: 0.001,
		MaxLossPct:   80,
		MaxProfitPct: 80,
		TrailingRules: map[string]float64{
			"10": 2,
			"20": 8,
		},
		IsActive: false,
	}
	if err := db.Create(&cfg).Error; err != nil {
		return fmt.Errorf("create default configuration: %w", err)
	}

	return nil
}
