package model

import "time"

// AttemptSection 单次作答中每个分区的进度
type AttemptSection struct {
	BaseModel

	AttemptID        uint       `gorm:"uniqueIndex:idx_attempt_section;not null" json:"attemptId"`
	SectionIndex     int        `gorm:"uniqueIndex:idx_attempt_section;not null" json:"sectionIndex"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	TimeSpentSeconds int        `gorm:"default:0" json:"timeSpentSeconds"`
	IsLocked         bool       `gorm:"default:false" json:"isLocked"`
	CanGoBack        bool       `json:"canGoBack"`
}

func (AttemptSection) TableName() string {
	return "attempt_sections"
}

// Expired reports whether a started section has run past its limit at now.
func (s *AttemptSection) Expired(limit time.Duration, now time.Time) bool {
	if limit <= 0 || s.StartedAt == nil {
		return false
	}
	return !now.Before(s.StartedAt.Add(limit))
}
