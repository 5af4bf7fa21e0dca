package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WashSaleEntry is written whenever a lot is sold at a loss. Any buy of the
// same symbol in ANY account before ExpiresAt is a wash sale.
type WashSaleEntry struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol    string `gorm:"type:varchar(10);not null;index"`
	AccountID uint64 `gorm:"not null;index"`
	LotID     uint64 `gorm:"not null;index"`

	LossAmount decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	SoldAt    time.Time `gorm:"type:timestamptz;not null"`
	ExpiresAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (WashSaleEntry) TableName() string {
	return "wash_sale_entries"
}
