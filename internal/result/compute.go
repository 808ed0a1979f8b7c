package result

import (
	"sort"
	"time"

	"assessment_backend/internal/grading"
	"assessment_backend/internal/model"
)

// Compute builds the Result of one attempt from its question snapshot and
// answer rows. Totals come from the snapshot so unanswered questions still
// count; ungraded answers contribute 0 and are counted in PendingManual.
// Rank and Percentile are always left nil here.
func Compute(test *model.Test, attempt *model.Attempt, answers []model.AttemptAnswer, now time.Time) *model.Result {
	byQuestion := make(map[uint]*model.AttemptAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	sections := make([]model.SectionScore, len(test.Sections))
	for i, s := range test.Sections {
		sections[i] = model.SectionScore{SectionIndex: i, Name: s.Name}
	}
	subjects := map[uint]*model.SubjectScore{}
	res := &model.Result{ComputedAt: now}

	for _, q := range attempt.Questions {
		var obtained float64
		if a, ok := byQuestion[q.QuestionID]; ok {
			if a.Graded() {
				obtained = *a.MarksAwarded
			} else {
				res.PendingManual++
			}
		} else if grading.IsManual(q.Type) {
			res.PendingManual++
		}

		res.TotalMarks += q.MaxMarks
		res.MarksObtained += obtained
		if grading.IsObjective(q.Type) {
			res.ObjectiveMarks += obtained
		} else {
			res.SubjectiveMarks += obtained
		}

		if q.SectionIndex >= 0 && q.SectionIndex < len(sections) {
			sections[q.SectionIndex].TotalMarks += q.MaxMarks
			sections[q.SectionIndex].MarksObtained += obtained
		}

		sub, ok := subjects[q.SubjectID]
		if !ok {
			sub = &model.SubjectScore{SubjectID: q.SubjectID}
			subjects[q.SubjectID] = sub
		}
		sub.TotalMarks += q.MaxMarks
		sub.MarksObtained += obtained
	}

	for i := range sections {
		sections[i].MarksObtained = grading.Round2(sections[i].MarksObtained)
		sections[i].Percentage = Percentage(sections[i].MarksObtained, sections[i].TotalMarks)
	}
	res.SectionScores = sections

	res.SubjectScores = make([]model.SubjectScore, 0, len(subjects))
	for _, sub := range subjects {
		sub.MarksObtained = grading.Round2(sub.MarksObtained)
		sub.Percentage = Percentage(sub.MarksObtained, sub.TotalMarks)
		res.SubjectScores = append(res.SubjectScores, *sub)
	}
	sort.Slice(res.SubjectScores, func(i, j int) bool {
		return res.SubjectScores[i].SubjectID < res.SubjectScores[j].SubjectID
	})

	res.MarksObtained = grading.Round2(res.MarksObtained)
	res.ObjectiveMarks = grading.Round2(res.ObjectiveMarks)
	res.SubjectiveMarks = grading.Round2(res.SubjectiveMarks)
	res.Percentage = Percentage(res.MarksObtained, res.TotalMarks)
	res.Grade = GradeFor(res.Percentage)
	res.IsPassing = res.Percentage >= test.Options.PassingScore
	return res
}

// Percentage is obtained/total as a 2dp percentage clamped to [0, 100]; 0 when
// total is 0.
func Percentage(obtained, total float64) float64 {
	if total <= 0 {
		return 0
	}
	p := grading.Round2(obtained / total * 100)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// GradeFor maps a percentage to its letter band.
func GradeFor(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 50:
		return "D"
	default:
		return "F"
	}
}
