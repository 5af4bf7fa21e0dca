package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Signal actions.
const (
	ActionBuy   = "BUY"
	ActionSell  = "SELL"
	ActionShort = "SHORT"
	ActionCover = "COVER"
)

// Signal statuses. Only PENDING transitions out; APPROVED may still become EXECUTED.
const (
	SignalPending   = "PENDING"
	SignalApproved  = "APPROVED"
	SignalRejected  = "REJECTED"
	SignalIgnored   = "IGNORED"
	SignalExecuted  = "EXECUTED"
	SignalCancelled = "CANCELLED"
	SignalFailed    = "FAILED"
)

// Signal source types.
const (
	SourceThesisScan = "thesis_scan"
	SourceManual     = "manual"
)

// Signal is a candidate trade awaiting a decision.
type Signal struct {
	ID       uint64  `gorm:"primaryKey;autoIncrement"`
	ThesisID *uint64 `gorm:"index"`

	Action string `gorm:"type:varchar(10);not null"`
	Symbol string `gorm:"type:varchar(10);not null;index"`

	Confidence    float64 `gorm:"not null"`
	RawConfidence float64 `gorm:"not null;default:0"`
	SourceType    string  `gorm:"type:varchar(50);not null;index"`
	Status        string  `gorm:"type:varchar(20);not null;default:'PENDING';index"`

	// SizePct is the suggested allocation as a fraction of NAV.
	SizePct   float64        `gorm:"not null;default:0"`
	Reasoning string         `gorm:"type:text"`
	Factors   datatypes.JSON `gorm:"type:jsonb"`

	DecisionReason string  `gorm:"type:text"`
	OrderID        *string `gorm:"type:varchar(100);index"`

	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	DecidedAt  *time.Time `gorm:"type:timestamptz"`
	ExpiresAt  *time.Time `gorm:"type:timestamptz;index"`
	ExecutedAt *time.Time `gorm:"type:timestamptz"`
}

func (Signal) TableName() string {
	return "signals"
}

// Terminal reports whether the signal can no longer transition
// (EXECUTED confirmation on an APPROVED signal excepted).
func (s Signal) Terminal() bool {
	return s.Status != SignalPending && s.Status != SignalApproved
}

// WhatIfEntry records the counterfactual for a rejected or ignored signal.
// Decision distinguishes active disagreement from non-engagement.
type WhatIfEntry struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	SignalID uint64 `gorm:"not null;uniqueIndex"`

	Decision string `gorm:"type:varchar(20);not null;index"`
	Symbol   string `gorm:"type:varchar(10);not null;index"`
	Action   string `gorm:"type:varchar(10);not null"`

	PriceAtDecision decimal.Decimal  `gorm:"type:numeric(20,10);not null"`
	ReplayedPnL     *decimal.Decimal `gorm:"column:replayed_pnl;type:numeric(30,10)"`
	ReplayedAt      *time.Time       `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (WhatIfEntry) TableName() string {
	return "what_if_entries"
}
