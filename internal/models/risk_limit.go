package models

import "time"

// Canonical risk-limit names. Defaults apply when a row is absent or disabled.
const (
	LimitMaxPositionPct   = "max_position_pct"
	LimitMaxGrossExposure = "max_gross_exposure"
	LimitNetExposureMin   = "net_exposure_min"
	LimitNetExposureMax   = "net_exposure_max"
	LimitMaxDrawdown      = "max_drawdown"
	LimitDailyLoss        = "daily_loss_limit"
)

type RiskLimit struct {
	ID      uint64  `gorm:"primaryKey;autoIncrement"`
	Name    string  `gorm:"type:varchar(50);not null;uniqueIndex"`
	Value   float64 `gorm:"not null"`
	Enabled bool    `gorm:"not null;default:true"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (RiskLimit) TableName() string {
	return "risk_limits"
}
