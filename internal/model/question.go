package model

import "gorm.io/datatypes"

// Question 题库中的题目，本服务只读
// Content 按题型存放判分所需字段，由 grading.Decode 解析
type Question struct {
	BaseModel

	TenantID    uint           `gorm:"index" json:"tenantId"`
	SubjectID   uint           `gorm:"index" json:"subjectId"`
	Type        string         `gorm:"size:40;index" json:"type"`
	Prompt      string         `gorm:"type:text" json:"prompt"`
	Options     []string       `gorm:"type:text;serializer:json" json:"options,omitempty"`
	Content     datatypes.JSON `json:"content,omitempty"`
	Marks       float64        `gorm:"default:0" json:"marks"`
	Explanation string         `gorm:"type:text" json:"explanation,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}
