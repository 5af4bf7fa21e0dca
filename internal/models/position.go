package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideLong  = "long"
	SideShort = "short"
)

// Position is the current holding per account and symbol. It is derived
// entirely from open lots; a position at zero shares is deleted, not zeroed.
type Position struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID uint64 `gorm:"not null;uniqueIndex:idx_positions_account_symbol"`
	Symbol    string `gorm:"type:varchar(10);not null;uniqueIndex:idx_positions_account_symbol;index"`

	Shares  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AvgCost decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	Side    string          `gorm:"type:varchar(5);not null;default:'long'"`

	ThesisID *uint64 `gorm:"index"`

	OpenedAt  time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}

// MarketValue is shares at the given price, falling back to average cost
// when no quote is available.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(decimal.Zero) {
		price = p.AvgCost
	}
	return p.Shares.Mul(price)
}
