package model

import (
	"fmt"
	"time"
)

const (
	AttemptInProgress    = "in_progress"
	AttemptSubmitted     = "submitted"
	AttemptAutoSubmitted = "auto_submitted"
	AttemptGraded        = "graded"
)

const (
	SubmitSourceStudent      = "student"
	SubmitSourceTimer        = "timer"
	SubmitSourceAdmin        = "admin"
	SubmitSourceTestComplete = "test_complete"
)

// QuestionSnapshot 开考时冻结的题目信息，后续题库修改不影响本次作答
type QuestionSnapshot struct {
	QuestionID   uint    `json:"questionId"`
	SectionIndex int     `json:"sectionIndex"`
	Type         string  `json:"type"`
	SubjectID    uint    `json:"subjectId"`
	MaxMarks     float64 `json:"maxMarks"`
	OptionOrder  []int   `json:"optionOrder,omitempty"`
}

// swagger:model Attempt
type Attempt struct {
	BaseModel

	TestID        uint   `gorm:"uniqueIndex:idx_attempt_key;not null" json:"testId"`
	StudentID     uint   `gorm:"uniqueIndex:idx_attempt_key;index;not null" json:"studentId"`
	AttemptNumber int    `gorm:"uniqueIndex:idx_attempt_key;not null" json:"attemptNumber"`
	Status        string `gorm:"size:20;index;not null" json:"status"`

	// ActiveKey is set only while in_progress; the unique index allows a single
	// open attempt per (test, student) and ignores NULLs.
	ActiveKey *string `gorm:"size:64;uniqueIndex" json:"-"`

	Questions []QuestionSnapshot `gorm:"type:text;serializer:json" json:"-"`
	Result    *Result            `gorm:"type:text;serializer:json" json:"result,omitempty"`

	StartedAt    time.Time  `json:"startedAt"`
	DeadlineAt   *time.Time `json:"deadlineAt,omitempty"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	SubmitSource string     `gorm:"size:20" json:"submitSource,omitempty"`
	IPAddress    string     `gorm:"size:45" json:"ipAddress,omitempty"`
	UserAgent    string     `gorm:"type:text" json:"userAgent,omitempty"`
	GradedBy     *uint      `json:"gradedBy,omitempty"`
	GradedAt     *time.Time `json:"gradedAt,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func ActiveKeyFor(testID, studentID uint) string {
	return fmt.Sprintf("%d:%d", testID, studentID)
}

func IsTerminalStatus(status string) bool {
	return status == AttemptSubmitted || status == AttemptAutoSubmitted || status == AttemptGraded
}

func (a *Attempt) Terminal() bool {
	return IsTerminalStatus(a.Status)
}

func (a *Attempt) Snapshot(questionID uint) (QuestionSnapshot, bool) {
	for _, q := range a.Questions {
		if q.QuestionID == questionID {
			return q, true
		}
	}
	return QuestionSnapshot{}, false
}

// SectionQuestions returns the persisted question order of one section.
func (a *Attempt) SectionQuestions(index int) []QuestionSnapshot {
	var out []QuestionSnapshot
	for _, q := range a.Questions {
		if q.SectionIndex == index {
			out = append(out, q)
		}
	}
	return out
}
