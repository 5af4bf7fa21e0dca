package models

import "time"

// KillSwitchEvent is one entry in the append-only activate/deactivate log.
// Current state is the most recent event.
type KillSwitchEvent struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Active bool   `gorm:"not null"`
	Reason string `gorm:"type:text"`
	Actor  string `gorm:"type:varchar(100)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (KillSwitchEvent) TableName() string {
	return "kill_switch_events"
}
