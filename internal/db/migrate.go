package db

import (
	"dflowfolio/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Position{},
		&models.Trade{},
		&models.PriceCacheEntry{},
		&models.PortfolioSnapshot{},
		&models.RedemptionRecord{},
		&models.RawStreamEvent{},
	)
}
