package model

import "time"

type SectionScore struct {
	SectionIndex  int     `json:"sectionIndex"`
	Name          string  `json:"name"`
	TotalMarks    float64 `json:"totalMarks"`
	MarksObtained float64 `json:"marksObtained"`
	Percentage    float64 `json:"percentage"`
}

type SubjectScore struct {
	SubjectID     uint    `json:"subjectId"`
	TotalMarks    float64 `json:"totalMarks"`
	MarksObtained float64 `json:"marksObtained"`
	Percentage    float64 `json:"percentage"`
}

// Result 成绩，嵌入在 Attempt 中；Rank/Percentile 只由整场排名写入
type Result struct {
	TotalMarks      float64        `json:"totalMarks"`
	MarksObtained   float64        `json:"marksObtained"`
	Percentage      float64        `json:"percentage"`
	Grade           string         `json:"grade"`
	Rank            *int           `json:"rank"`
	Percentile      *float64       `json:"percentile"`
	SectionScores   []SectionScore `json:"sectionScores"`
	SubjectScores   []SubjectScore `json:"subjectScores"`
	ObjectiveMarks  float64        `json:"objectiveMarks"`
	SubjectiveMarks float64        `json:"subjectiveMarks"`
	IsPassing       bool           `json:"isPassing"`
	PendingManual   int            `json:"pendingManual"`
	ComputedAt      time.Time      `json:"computedAt"`
}
