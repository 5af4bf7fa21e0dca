package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account types, in routing priority order (tax_free first).
const (
	AccountTaxFree     = "tax_free"
	AccountTaxDeferred = "tax_deferred"
	AccountTaxable     = "taxable"
)

type Account struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Type string `gorm:"type:varchar(20);not null;index"`

	Cash decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}

// TaxAdvantaged reports whether internal trades in this account carry no tax liability.
func (a Account) TaxAdvantaged() bool {
	return a.Type == AccountTaxFree || a.Type == AccountTaxDeferred
}
