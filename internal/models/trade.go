package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one executed fill.
type Trade struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	SignalID  *uint64 `gorm:"index"`
	AccountID uint64  `gorm:"not null;index"`

	Symbol string `gorm:"type:varchar(10);not null;index"`
	Action string `gorm:"type:varchar(10);not null"`

	Shares decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	// Use explicit column names because default GORM naming turns "PnL" into "pn_l".
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	OrderID string `gorm:"type:varchar(100);index"`

	FilledAt  time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
