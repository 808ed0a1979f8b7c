package service

import (
	"time"

	"assessment_backend/internal/grading"
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
)

// ClientInfo 开考时记录的客户端信息
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Viewer 调用者身份；教师/管理员可以查看任意作答
type Viewer struct {
	UserID uint
	Staff  bool
}

func (v Viewer) canAccess(a *model.Attempt) error {
	if v.Staff || v.UserID == a.StudentID {
		return nil
	}
	return util.ErrNotOwner
}

type OptionView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// QuestionView 作答时下发的题目，不含答案与解析
type QuestionView struct {
	QuestionID uint           `json:"questionId"`
	Type       string         `json:"type"`
	Prompt     string         `json:"prompt"`
	Options    []OptionView   `json:"options,omitempty"`
	Marks      float64        `json:"marks"`
	Answer     model.JSONText `json:"answer,omitempty"`
	Flagged    bool           `json:"flagged"`
}

type SectionView struct {
	Index            int            `json:"index"`
	Name             string         `json:"name"`
	Instructions     string         `json:"instructions,omitempty"`
	TimeLimitMinutes int            `json:"timeLimitMinutes,omitempty"`
	CanGoBack        bool           `json:"canGoBack"`
	IsLocked         bool           `json:"isLocked"`
	StartedAt        *time.Time     `json:"startedAt,omitempty"`
	ExpiresAt        *time.Time     `json:"expiresAt,omitempty"`
	Questions        []QuestionView `json:"questions"`
}

// SectionStatus 分区进度与剩余时间
type SectionStatus struct {
	Index            int        `json:"index"`
	Name             string     `json:"name"`
	Started          bool       `json:"started"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	TimeSpentSeconds int        `json:"timeSpentSeconds"`
	IsLocked         bool       `json:"isLocked"`
	CanGoBack        bool       `json:"canGoBack"`
	TimeLimitMinutes int        `json:"timeLimitMinutes,omitempty"`
	RemainingSeconds *int       `json:"remainingSeconds,omitempty"`
}

// AttemptView 开考/续考时返回的完整作答视图
type AttemptView struct {
	Attempt          *model.Attempt         `json:"attempt"`
	Sections         []model.AttemptSection `json:"sections"`
	RemainingSeconds *int                   `json:"remainingSeconds,omitempty"`
	CurrentSection   *SectionView           `json:"currentSection,omitempty"`
}

type ResultView struct {
	AttemptID uint          `json:"attemptId"`
	Status    string        `json:"status"`
	Result    *model.Result `json:"result"`
}

// ReviewItem 成绩公布后的逐题回顾
type ReviewItem struct {
	QuestionID   uint           `json:"questionId"`
	SectionIndex int            `json:"sectionIndex"`
	Type         string         `json:"type"`
	Prompt       string         `json:"prompt"`
	Options      []OptionView   `json:"options,omitempty"`
	Answer       model.JSONText `json:"answer,omitempty"`
	MaxMarks     float64        `json:"maxMarks"`
	MarksAwarded *float64       `json:"marksAwarded,omitempty"`
	IsCorrect    *bool          `json:"isCorrect,omitempty"`
	Feedback     string         `json:"feedback,omitempty"`
	Solution     grading.Review `json:"solution"`
}

// optionViews lists options in the attempt's presentation order, each
// carrying its original index so answers are always index-stable.
func optionViews(snap model.QuestionSnapshot, q *model.Question) []OptionView {
	if q == nil || len(q.Options) == 0 {
		return nil
	}
	order := snap.OptionOrder
	if len(order) != len(q.Options) {
		order = identity(len(q.Options))
	}
	out := make([]OptionView, 0, len(order))
	for _, i := range order {
		out = append(out, OptionView{Index: i, Text: q.Options[i]})
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func remainingSeconds(until, now time.Time) *int {
	left := int(until.Sub(now).Seconds())
	if left < 0 {
		left = 0
	}
	return &left
}

func sectionView(test *model.Test, attempt *model.Attempt, sec *model.AttemptSection, bank map[uint]*model.Question, answers map[uint]model.AttemptAnswer) *SectionView {
	cfg := test.Sections[sec.SectionIndex]
	v := &SectionView{
		Index:            sec.SectionIndex,
		Name:             cfg.Name,
		Instructions:     cfg.Instructions,
		TimeLimitMinutes: cfg.TimeLimitMinutes,
		CanGoBack:        sec.CanGoBack,
		IsLocked:         sec.IsLocked,
		StartedAt:        sec.StartedAt,
	}
	if limit := test.SectionLimit(sec.SectionIndex); test.SectionTimed() && limit > 0 && sec.StartedAt != nil {
		exp := sec.StartedAt.Add(limit)
		v.ExpiresAt = &exp
	}
	for _, snap := range attempt.SectionQuestions(sec.SectionIndex) {
		q := bank[snap.QuestionID]
		qv := QuestionView{
			QuestionID: snap.QuestionID,
			Type:       snap.Type,
			Marks:      snap.MaxMarks,
			Options:    optionViews(snap, q),
		}
		if q != nil {
			qv.Prompt = q.Prompt
		}
		if a, ok := answers[snap.QuestionID]; ok {
			qv.Answer = a.Answer
			qv.Flagged = a.Flagged
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}

func answersByQuestion(answers []model.AttemptAnswer) map[uint]model.AttemptAnswer {
	out := make(map[uint]model.AttemptAnswer, len(answers))
	for _, a := range answers {
		out[a.QuestionID] = a
	}
	return out
}

func snapshotIDs(attempt *model.Attempt) []uint {
	ids := make([]uint, 0, len(attempt.Questions))
	for _, q := range attempt.Questions {
		ids = append(ids, q.QuestionID)
	}
	return ids
}
