package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot captures NAV and exposure at a point in time. The risk
// gate derives all-time-high NAV and day-start NAV from these rows.
type PortfolioSnapshot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	SnapshotAt time.Time `gorm:"type:timestamptz;not null;uniqueIndex"`

	Cash       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	LongValue  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ShortValue decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	NAV        decimal.Decimal `gorm:"column:nav;type:numeric(30,10);not null"`

	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
