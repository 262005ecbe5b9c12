package db

import (
	"fmt"

	"github.com/loadline/closer/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Driver{},
		&models.Load{},
		&models.Negotiation{},
		&models.Message{},
		&models.UnroutedMessage{},
		&models.OutboundIntent{},
		&models.FeeLedgerEntry{},
		&models.ReferralEarning{},
		&models.Invoice{},
		&models.BillingRun{},
		&models.BillingRunItem{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
