package model

import "time"

// AttemptAnswer 存储学生每题答案及评分结果（自动或人工）
type AttemptAnswer struct {
	BaseModel

	AttemptID        uint           `gorm:"uniqueIndex:idx_attempt_question;not null" json:"attemptId"`
	QuestionID       uint           `gorm:"uniqueIndex:idx_attempt_question;not null" json:"questionId"`
	SectionIndex     int            `json:"sectionIndex"`
	QuestionType     string         `gorm:"size:40" json:"questionType"`
	SubjectID        uint           `json:"subjectId"`
	Answer           JSONText       `json:"answer,omitempty"`
	MaxMarks         float64        `json:"maxMarks"`
	MarksAwarded     *float64       `json:"marksAwarded,omitempty"`
	IsCorrect        *bool          `json:"isCorrect,omitempty"`
	Flagged          bool           `gorm:"default:false" json:"flagged"`
	TimeSpentSeconds int            `gorm:"default:0" json:"timeSpentSeconds"`
	AnsweredAt       *time.Time     `json:"answeredAt,omitempty"`
	Feedback         string         `gorm:"type:text" json:"feedback,omitempty"`
	GradedBy         *uint          `json:"gradedBy,omitempty"`
	GradedAt         *time.Time     `json:"gradedAt,omitempty"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}

func (a *AttemptAnswer) Graded() bool {
	return a.MarksAwarded != nil
}

// HasResponse is false for untouched entries and explicit JSON nulls.
func (a *AttemptAnswer) HasResponse() bool {
	s := string(a.Answer)
	return len(a.Answer) > 0 && s != "null"
}
