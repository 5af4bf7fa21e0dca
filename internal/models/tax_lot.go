package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxLot is one acquisition event, the atomic unit of tax accounting.
//
// An open lot has Shares > 0 and SoldAt nil. Consumption never deletes rows:
// a fully consumed lot keeps its row with Shares zeroed and SoldShares set;
// a partial consumption reduces the open lot proportionally and writes a
// separate closed row for the sold portion, so that total shares and total
// cost basis are conserved through every split.
type TaxLot struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID uint64 `gorm:"not null;index:idx_tax_lots_account_symbol"`
	Symbol    string `gorm:"type:varchar(10);not null;index:idx_tax_lots_account_symbol"`

	Shares       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	SoldShares   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CostPerShare decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	CostBasis    decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	AcquiredAt time.Time        `gorm:"type:timestamptz;not null;index"`
	SoldAt     *time.Time       `gorm:"type:timestamptz"`
	SoldPrice  *decimal.Decimal `gorm:"type:numeric(20,10)"`

	WashSale bool    `gorm:"not null;default:false"`
	SignalID *uint64 `gorm:"index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TaxLot) TableName() string {
	return "tax_lots"
}

// Open reports whether the lot still holds shares.
func (l TaxLot) Open() bool {
	return l.SoldAt == nil && l.Shares.GreaterThan(decimal.Zero)
}

// LongTerm reports whether the holding period at the given time crosses the
// 365-day short/long capital-gains boundary.
func (l TaxLot) LongTerm(at time.Time) bool {
	return at.Sub(l.AcquiredAt) >= 365*24*time.Hour
}
