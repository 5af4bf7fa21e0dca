package models

import "time"

// SourceStats tracks the historical win rate per signal or thesis-update
// source. It backs the calibration factor and the source-accuracy multiplier.
type SourceStats struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	SourceType string `gorm:"type:varchar(50);not null;uniqueIndex"`

	Wins   int `gorm:"not null;default:0"`
	Losses int `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SourceStats) TableName() string {
	return "source_stats"
}

// WinRate returns wins/(wins+losses), or the neutral 0.5 with no history.
func (s SourceStats) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0.5
	}
	return float64(s.Wins) / float64(total)
}
