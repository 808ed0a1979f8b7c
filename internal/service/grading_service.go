package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"assessment_backend/internal/model"
	"assessment_backend/internal/notify"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/result"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// GradingService 人工评分与整场成绩汇总（排名）
type GradingService struct {
	Tests     *repository.TestRepository
	Attempts  *repository.AttemptRepository
	Notifier  notify.Notifier
	Analytics notify.Analytics

	Now func() time.Time
}

func NewGradingService(tests *repository.TestRepository, attempts *repository.AttemptRepository, notifier notify.Notifier, analytics notify.Analytics) *GradingService {
	return &GradingService{
		Tests:     tests,
		Attempts:  attempts,
		Notifier:  notifier,
		Analytics: analytics,
		Now:       time.Now,
	}
}

type GradeInput struct {
	Marks    float64 `json:"marks"`
	Feedback string  `json:"feedback"`
}

type BulkGrade struct {
	AttemptID uint    `json:"attemptId" binding:"required"`
	Marks     float64 `json:"marks"`
	Feedback  string  `json:"feedback"`
}

// FinalizeSummary 整场评分汇总结果
type FinalizeSummary struct {
	TestID         uint `json:"testId"`
	Ranked         int  `json:"ranked"`
	NewlyGraded    int  `json:"newlyGraded"`
	SkippedPending int  `json:"skippedPending"`
}

func (s *GradingService) loadTest(ctx context.Context, id uint) (*model.Test, error) {
	test, err := s.Tests.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	return test, nil
}

// ListUngraded 待人工评分的答案列表
func (s *GradingService) ListUngraded(ctx context.Context, testID uint) ([]repository.UngradedAnswer, error) {
	if _, err := s.loadTest(ctx, testID); err != nil {
		return nil, err
	}
	return s.Attempts.ListUngraded(ctx, testID)
}

// clampMarks bounds a teacher's mark to [0, max]. NaN is rejected.
func clampMarks(marks, max float64) (float64, error) {
	if math.IsNaN(marks) {
		return 0, util.Invalidf("marks must be a number")
	}
	if marks < 0 {
		return 0, nil
	}
	if marks > max {
		return max, nil
	}
	return marks, nil
}

func gradableAttempt(a *model.Attempt) error {
	if !a.Terminal() {
		return util.ErrAttemptNotGradable
	}
	return nil
}

// GradeAnswer 对单题人工评分并重新计算该次作答成绩
func (s *GradingService) GradeAnswer(ctx context.Context, attemptID, questionID uint, in GradeInput, graderID uint) (*model.AttemptAnswer, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if err := gradableAttempt(attempt); err != nil {
		return nil, err
	}
	snap, ok := attempt.Snapshot(questionID)
	if !ok {
		return nil, util.Invalidf("question %d is not part of attempt %d", questionID, attemptID)
	}
	marks, err := clampMarks(in.Marks, snap.MaxMarks)
	if err != nil {
		return nil, err
	}
	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	var graded bool
	err = s.Attempts.Transaction(ctx, func(tx *repository.AttemptRepository) error {
		var err error
		graded, err = s.applyGrade(ctx, tx, test, attempt, snap, marks, in.Feedback, graderID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Answer graded",
		zap.Uint("attempt_id", attemptID),
		zap.Uint("question_id", questionID),
		zap.Float64("marks", marks),
		zap.Uint("grader_id", graderID))
	if graded {
		if current, err := s.Attempts.FindByID(ctx, attemptID); err == nil {
			announceGraded(ctx, s.Notifier, s.Analytics, test, current, now)
		}
	}
	return s.Attempts.FindAnswer(ctx, attemptID, questionID)
}

// applyGrade stores one manual mark and recomputes the attempt result. It
// returns true when the attempt became graded through this call.
func (s *GradingService) applyGrade(ctx context.Context, tx *repository.AttemptRepository, test *model.Test, attempt *model.Attempt, snap model.QuestionSnapshot, marks float64, feedback string, graderID uint, now time.Time) (bool, error) {
	hit, err := tx.SetManualGrade(ctx, attempt.ID, snap.QuestionID, marks, marks > 0, feedback, graderID, now)
	if err != nil {
		return false, err
	}
	if !hit {
		if err := tx.EnsureAnswers(ctx, []model.AttemptAnswer{{
			AttemptID:    attempt.ID,
			QuestionID:   snap.QuestionID,
			SectionIndex: snap.SectionIndex,
			QuestionType: snap.Type,
			SubjectID:    snap.SubjectID,
			MaxMarks:     snap.MaxMarks,
		}}); err != nil {
			return false, err
		}
		if _, err := tx.SetManualGrade(ctx, attempt.ID, snap.QuestionID, marks, marks > 0, feedback, graderID, now); err != nil {
			return false, err
		}
	}

	answers, err := tx.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return false, err
	}
	res := result.Compute(test, attempt, answers, now)
	switch {
	case attempt.Status == model.AttemptGraded:
		// a regrade invalidates the standing until the next finalize
		return false, tx.SaveResult(ctx, attempt.ID, res, "", nil, now)
	case res.PendingManual == 0:
		if err := tx.SaveResult(ctx, attempt.ID, res, model.AttemptGraded, &graderID, now); err != nil {
			return false, err
		}
		monitoring.ObserveTransition("attempt", attempt.Status, model.AttemptGraded)
		return true, nil
	default:
		return false, tx.SaveResult(ctx, attempt.ID, res, "", nil, now)
	}
}

// BulkGradeQuestion 同一题目批量评分，全部成功或全部回滚
func (s *GradingService) BulkGradeQuestion(ctx context.Context, testID, questionID uint, grades []BulkGrade, graderID uint) (int, error) {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return 0, err
	}
	if len(grades) == 0 {
		return 0, util.Invalidf("no grades given")
	}

	type item struct {
		attempt *model.Attempt
		snap    model.QuestionSnapshot
		marks   float64
		grade   BulkGrade
	}
	items := make([]item, 0, len(grades))
	seen := make(map[uint]bool, len(grades))
	for _, g := range grades {
		if seen[g.AttemptID] {
			return 0, util.Invalidf("attempt %d graded twice", g.AttemptID)
		}
		seen[g.AttemptID] = true
		attempt, err := s.Attempts.FindByID(ctx, g.AttemptID)
		if err != nil {
			if repository.IsNotFound(err) {
				return 0, fmt.Errorf("%w: %d", util.ErrAttemptNotFound, g.AttemptID)
			}
			return 0, err
		}
		if attempt.TestID != testID {
			return 0, util.Invalidf("attempt %d does not belong to test %d", g.AttemptID, testID)
		}
		if err := gradableAttempt(attempt); err != nil {
			return 0, err
		}
		snap, ok := attempt.Snapshot(questionID)
		if !ok {
			return 0, util.Invalidf("question %d is not part of attempt %d", questionID, g.AttemptID)
		}
		marks, err := clampMarks(g.Marks, snap.MaxMarks)
		if err != nil {
			return 0, err
		}
		items = append(items, item{attempt: attempt, snap: snap, marks: marks, grade: g})
	}

	now := s.Now()
	var newlyGraded []*model.Attempt
	err = s.Attempts.Transaction(ctx, func(tx *repository.AttemptRepository) error {
		newlyGraded = newlyGraded[:0]
		for _, it := range items {
			graded, err := s.applyGrade(ctx, tx, test, it.attempt, it.snap, it.marks, it.grade.Feedback, graderID, now)
			if err != nil {
				return fmt.Errorf("grade attempt %d: %w", it.attempt.ID, err)
			}
			if graded {
				newlyGraded = append(newlyGraded, it.attempt)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Log.Info("Bulk grading applied",
		zap.Uint("test_id", testID),
		zap.Uint("question_id", questionID),
		zap.Int("count", len(items)),
		zap.Uint("grader_id", graderID))
	for _, a := range newlyGraded {
		announceGraded(ctx, s.Notifier, s.Analytics, test, a, now)
	}
	return len(items), nil
}

// FinalizeGrading 所有人工评分完成后计算整场排名与百分位
func (s *GradingService) FinalizeGrading(ctx context.Context, testID, graderID uint) (*FinalizeSummary, error) {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	pending, err := s.Attempts.CountUngraded(ctx, testID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, &util.Error{
			Kind: util.KindConflict,
			Msg:  fmt.Sprintf("%d answers still need grading", pending),
			Err:  util.ErrUngradedRemaining,
		}
	}

	attempts, err := s.Attempts.ListByTest(ctx, testID, model.AttemptSubmitted, model.AttemptAutoSubmitted, model.AttemptGraded)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(attempts))
	for _, a := range attempts {
		ids = append(ids, a.ID)
	}
	answers, err := s.Attempts.ListAnswersByAttempts(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	summary := &FinalizeSummary{TestID: testID}
	results := make(map[uint]*model.Result, len(attempts))
	var cohort []result.Entry
	for i := range attempts {
		a := &attempts[i]
		res := result.Compute(test, a, answers[a.ID], now)
		if res.PendingManual > 0 {
			// answered after the count above; left for the next finalize
			summary.SkippedPending++
			continue
		}
		results[a.ID] = res
		cohort = append(cohort, result.Entry{AttemptID: a.ID, MarksObtained: res.MarksObtained})
	}
	standings := result.Rank(cohort)

	var newlyGraded []*model.Attempt
	err = s.Attempts.Transaction(ctx, func(tx *repository.AttemptRepository) error {
		newlyGraded = newlyGraded[:0]
		for i := range attempts {
			a := &attempts[i]
			res, ok := results[a.ID]
			if !ok {
				continue
			}
			st := standings[a.ID]
			rank, pct := st.Rank, st.Percentile
			res.Rank = &rank
			res.Percentile = &pct
			if err := tx.SaveResult(ctx, a.ID, res, model.AttemptGraded, &graderID, now); err != nil {
				return err
			}
			if a.Status != model.AttemptGraded {
				newlyGraded = append(newlyGraded, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finalize test %d: %w", testID, err)
	}
	summary.Ranked = len(results)
	summary.NewlyGraded = len(newlyGraded)

	for _, a := range newlyGraded {
		monitoring.ObserveTransition("attempt", a.Status, model.AttemptGraded)
		announceGraded(ctx, s.Notifier, s.Analytics, test, a, now)
	}
	data := map[string]interface{}{"ranked": summary.Ranked}
	if test.Options.ShowResults && summary.Ranked > 0 {
		e := testEvent(notify.EventResultsAvailable, test, now)
		e.Data = data
		s.Notifier.Notify(ctx, e)
	}
	e := testEvent(notify.EventTestGraded, test, now)
	e.Data = data
	s.Notifier.Notify(ctx, e)
	logger.Log.Info("Grading finalized",
		zap.Uint("test_id", testID),
		zap.Int("ranked", summary.Ranked),
		zap.Int("newly_graded", summary.NewlyGraded),
		zap.Int("skipped", summary.SkippedPending))
	return summary, nil
}
