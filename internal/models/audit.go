package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEntry is an append-only trail row. Writes are best-effort and must
// never block the primary decision result.
type AuditEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Actor    string `gorm:"type:varchar(100);not null"`
	Action   string `gorm:"type:varchar(50);not null;index"`
	Entity   string `gorm:"type:varchar(50);not null;index"`
	EntityID uint64 `gorm:"index"`

	Detail datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
