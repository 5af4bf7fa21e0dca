package models

import (
	"time"

	"gorm.io/datatypes"
)

// Thesis statuses. ARCHIVED is terminal.
const (
	ThesisActive        = "active"
	ThesisStrengthening = "strengthening"
	ThesisConfirmed     = "confirmed"
	ThesisWeakening     = "weakening"
	ThesisInvalidated   = "invalidated"
	ThesisArchived      = "archived"
)

const (
	StrategyLong      = "long"
	StrategyShort     = "short"
	StrategyLongShort = "long_short"
)

// Thesis is a standing investment belief driving one or more symbols' signals.
type Thesis struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Title     string `gorm:"type:varchar(200);not null"`
	Narrative string `gorm:"type:text"`
	Strategy  string `gorm:"type:varchar(20);not null;default:'long'"`
	Status    string `gorm:"type:varchar(20);not null;default:'active';index"`

	Symbols            datatypes.JSON `gorm:"type:jsonb"`
	ValidationCriteria datatypes.JSON `gorm:"type:jsonb"`
	FailureCriteria    datatypes.JSON `gorm:"type:jsonb"`

	HorizonMonths int     `gorm:"not null;default:12"`
	Conviction    float64 `gorm:"not null;default:0.5"`
	Source        string  `gorm:"type:varchar(50);index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Thesis) TableName() string {
	return "theses"
}

// ThesisVersion is an immutable record of one status transition.
type ThesisVersion struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	ThesisID uint64 `gorm:"not null;index"`

	OldStatus string         `gorm:"type:varchar(20);not null"`
	NewStatus string         `gorm:"type:varchar(20);not null"`
	Reason    string         `gorm:"type:text"`
	Evidence  datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ThesisVersion) TableName() string {
	return "thesis_versions"
}
