package models

import "time"

// Principle is a configured scoring rule. Its weight is added to a signal's
// confidence when validated applications outnumber invalidated ones, and
// subtracted otherwise.
type Principle struct {
	ID     uint64  `gorm:"primaryKey;autoIncrement"`
	Name   string  `gorm:"type:varchar(100);not null;uniqueIndex"`
	Weight float64 `gorm:"not null"`
	Domain string  `gorm:"type:varchar(50);index"`

	ValidatedCount   int  `gorm:"not null;default:0"`
	InvalidatedCount int  `gorm:"not null;default:0"`
	Enabled          bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Principle) TableName() string {
	return "principles"
}
