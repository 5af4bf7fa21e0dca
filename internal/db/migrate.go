package db

import (
	"tradedesk/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Account{},
		&models.Thesis{},
		&models.ThesisVersion{},
		&models.Signal{},
		&models.WhatIfEntry{},
		&models.Position{},
		&models.TaxLot{},
		&models.WashSaleEntry{},
		&models.RiskLimit{},
		&models.KillSwitchEvent{},
		&models.TradingWindow{},
		&models.Trade{},
		&models.PortfolioSnapshot{},
		&models.Principle{},
		&models.SourceStats{},
		&models.AuditEntry{},
	)
}
