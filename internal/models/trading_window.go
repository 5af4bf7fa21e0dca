package models

import "time"

// TradingWindow is an explicit permitted window for a symbol. When any
// windows exist for a symbol, buying outside all of them is blocked; sells
// are always allowed.
type TradingWindow struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(10);not null;index"`

	StartAt time.Time `gorm:"type:timestamptz;not null"`
	EndAt   time.Time `gorm:"type:timestamptz;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (TradingWindow) TableName() string {
	return "trading_windows"
}

// Contains reports whether t falls inside the window.
func (w TradingWindow) Contains(t time.Time) bool {
	return !t.Before(w.StartAt) && !t.After(w.EndAt)
}
