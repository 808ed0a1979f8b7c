package model

import "time"

const (
	TestStatusDraft     = "draft"
	TestStatusScheduled = "scheduled"
	TestStatusLive      = "live"
	TestStatusCompleted = "completed"
	TestStatusArchived  = "archived"
)

const (
	TimingModeTest    = "test"    // one clock for the whole attempt
	TimingModeSection = "section" // each section runs on its own limit
)

// TestSection 试卷分区（题目顺序、限时、是否允许回看）
type TestSection struct {
	Name             string `json:"name"`
	QuestionIDs      []uint `json:"questionIds"`
	TimeLimitMinutes int    `json:"timeLimitMinutes,omitempty"`
	Instructions     string `json:"instructions,omitempty"`
	CanGoBack        bool   `json:"canGoBack"`
}

// TestOptions 作答与成绩展示选项
type TestOptions struct {
	RandomizeQuestions bool    `gorm:"default:false" json:"randomizeQuestions"`
	RandomizeOptions   bool    `gorm:"default:false" json:"randomizeOptions"`
	MaxAttempts        int     `gorm:"default:1" json:"maxAttempts"`
	PassingScore       float64 `json:"passingScore"`
	ShowResults        bool    `gorm:"default:false" json:"showResults"`
	ShowCorrectAnswers bool    `gorm:"default:false" json:"showCorrectAnswers"`
}

// swagger:model Test
type Test struct {
	BaseModel

	TenantID   uint          `gorm:"index" json:"tenantId"`
	CreatorID  uint          `gorm:"index" json:"creatorId"`
	Title      string        `gorm:"size:255;not null" json:"title"`
	Status     string        `gorm:"size:20;index;default:'draft'" json:"status"`
	TimingMode string        `gorm:"size:20;default:'test'" json:"timingMode"`
	Sections   []TestSection `gorm:"type:text;serializer:json" json:"sections"`
	Options    TestOptions   `gorm:"embedded;embeddedPrefix:opt_" json:"options"`

	StartTime       *time.Time `gorm:"index" json:"startTime,omitempty"`
	EndTime         *time.Time `gorm:"index" json:"endTime,omitempty"`
	AvailableFrom   *time.Time `json:"availableFrom,omitempty"`
	DurationMinutes int        `gorm:"default:0" json:"durationMinutes"`
}

func (Test) TableName() string {
	return "tests"
}

func (t *Test) SectionTimed() bool {
	return t.TimingMode == TimingModeSection
}

// AttemptDuration is the per-attempt clock: the sum of section limits for
// section-timed tests, the configured duration otherwise. Zero means untimed.
func (t *Test) AttemptDuration() time.Duration {
	if t.SectionTimed() {
		var total time.Duration
		for _, s := range t.Sections {
			total += time.Duration(s.TimeLimitMinutes) * time.Minute
		}
		return total
	}
	return time.Duration(t.DurationMinutes) * time.Minute
}

func (t *Test) SectionLimit(index int) time.Duration {
	if index < 0 || index >= len(t.Sections) {
		return 0
	}
	return time.Duration(t.Sections[index].TimeLimitMinutes) * time.Minute
}

func (t *Test) QuestionIDs() []uint {
	var ids []uint
	for _, s := range t.Sections {
		ids = append(ids, s.QuestionIDs...)
	}
	return ids
}
