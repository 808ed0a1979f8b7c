package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"assessment_backend/internal/grading"
	"assessment_backend/internal/model"
	"assessment_backend/internal/notify"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/result"
	"assessment_backend/internal/scheduler"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// timers may fire slightly ahead of the stored deadline on another node
const deadlineSkew = time.Second

type AttemptService struct {
	Tests     *repository.TestRepository
	Questions *repository.QuestionRepository
	Attempts  *repository.AttemptRepository
	Scheduler scheduler.Client
	Notifier  notify.Notifier
	Analytics notify.Analytics
	Grace     time.Duration

	Now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

func NewAttemptService(
	tests *repository.TestRepository,
	questions *repository.QuestionRepository,
	attempts *repository.AttemptRepository,
	sched scheduler.Client,
	notifier notify.Notifier,
	analytics notify.Analytics,
	grace time.Duration,
) *AttemptService {
	return &AttemptService{
		Tests:     tests,
		Questions: questions,
		Attempts:  attempts,
		Scheduler: sched,
		Notifier:  notifier,
		Analytics: analytics,
		Grace:     grace,
		Now:       time.Now,
		shuffle:   rand.Shuffle,
	}
}

func (s *AttemptService) loadTest(ctx context.Context, id uint) (*model.Test, error) {
	test, err := s.Tests.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrTestNotFound
		}
		return nil, fmt.Errorf("load test %d: %w", id, err)
	}
	return test, nil
}

func (s *AttemptService) loadAttempt(ctx context.Context, id uint) (*model.Attempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt %d: %w", id, err)
	}
	return attempt, nil
}

// enqueue is best effort; the periodic sweep recovers lost timers.
func (s *AttemptService) enqueue(ctx context.Context, job scheduler.Job) {
	if err := s.Scheduler.Enqueue(ctx, job); err != nil {
		logger.Log.Warn("Failed to enqueue job",
			zap.String("kind", job.Kind),
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// testOpen reports whether new attempts may start at now.
func testOpen(test *model.Test, now time.Time) bool {
	if test.EndTime != nil && !now.Before(*test.EndTime) {
		return false
	}
	switch test.Status {
	case model.TestStatusLive:
		return true
	case model.TestStatusScheduled:
		return test.AvailableFrom != nil && !now.Before(*test.AvailableFrom)
	}
	return false
}

func maxAttempts(test *model.Test) int {
	if test.Options.MaxAttempts <= 0 {
		return 1
	}
	return test.Options.MaxAttempts
}

// StartAttempt 创建并开始一次作答，冻结题目顺序并进入第一个分区
func (s *AttemptService) StartAttempt(ctx context.Context, testID, studentID uint, client ClientInfo) (*AttemptView, error) {
	test, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if !testOpen(test, now) {
		return nil, util.ErrTestNotAvailable
	}
	if len(test.Sections) == 0 || len(test.QuestionIDs()) == 0 {
		return nil, util.Invalidf("test %d has no questions", testID)
	}

	if _, err := s.Attempts.FindActive(ctx, testID, studentID); err == nil {
		return nil, util.ErrAttemptInProgress
	} else if !repository.IsNotFound(err) {
		return nil, err
	}
	count, err := s.Attempts.CountByTestAndStudent(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if int(count) >= maxAttempts(test) {
		return nil, util.ErrMaxAttempts
	}

	bank, err := s.Questions.FindByIDs(ctx, test.QuestionIDs())
	if err != nil {
		return nil, err
	}
	snapshot, err := s.snapshot(test, bank)
	if err != nil {
		return nil, err
	}

	key := model.ActiveKeyFor(testID, studentID)
	attempt := &model.Attempt{
		TestID:        testID,
		StudentID:     studentID,
		AttemptNumber: int(count) + 1,
		Status:        model.AttemptInProgress,
		ActiveKey:     &key,
		Questions:     snapshot,
		StartedAt:     now,
		IPAddress:     client.IP,
		UserAgent:     client.UserAgent,
	}
	attempt.DeadlineAt = deadlineFor(test, now)

	if err := s.Attempts.Create(ctx, attempt); err != nil {
		if repository.IsDuplicate(err) {
			return nil, util.ErrAttemptInProgress
		}
		return nil, err
	}
	monitoring.ObserveTransition("attempt", "none", model.AttemptInProgress)
	logger.Log.Info("Attempt started",
		zap.Uint("attempt_id", attempt.ID),
		zap.Uint("test_id", testID),
		zap.Uint("student_id", studentID),
		zap.Int("attempt_number", attempt.AttemptNumber))

	if attempt.DeadlineAt != nil {
		s.enqueue(ctx, scheduler.NewAutoSubmitJob(attempt.ID, *attempt.DeadlineAt))
	}

	sec, err := s.openSection(ctx, test, attempt, 0, now)
	if err != nil {
		return nil, err
	}
	sections, err := s.Attempts.ListSections(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	view := &AttemptView{
		Attempt:        attempt,
		Sections:       sections,
		CurrentSection: sectionView(test, attempt, sec, bank, nil),
	}
	if attempt.DeadlineAt != nil {
		view.RemainingSeconds = remainingSeconds(*attempt.DeadlineAt, now)
	}
	return view, nil
}

// deadlineFor caps the attempt clock at the test end time.
func deadlineFor(test *model.Test, now time.Time) *time.Time {
	var deadline *time.Time
	if d := test.AttemptDuration(); d > 0 {
		t := now.Add(d)
		deadline = &t
	}
	if test.EndTime != nil && (deadline == nil || test.EndTime.Before(*deadline)) {
		t := *test.EndTime
		deadline = &t
	}
	return deadline
}

func (s *AttemptService) snapshot(test *model.Test, bank map[uint]*model.Question) ([]model.QuestionSnapshot, error) {
	seen := make(map[uint]bool)
	var out []model.QuestionSnapshot
	for i, sec := range test.Sections {
		ids := append([]uint(nil), sec.QuestionIDs...)
		if test.Options.RandomizeQuestions {
			s.shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
		}
		for _, id := range ids {
			if seen[id] {
				return nil, util.Invalidf("question %d appears twice in test %d", id, test.ID)
			}
			seen[id] = true
			q, ok := bank[id]
			if !ok {
				return nil, fmt.Errorf("%w: %d", util.ErrQuestionNotFound, id)
			}
			snap := model.QuestionSnapshot{
				QuestionID:   id,
				SectionIndex: i,
				Type:         q.Type,
				SubjectID:    q.SubjectID,
				MaxMarks:     q.Marks,
			}
			if grading.HasOptions(q.Type) && len(q.Options) > 0 {
				order := identity(len(q.Options))
				if test.Options.RandomizeOptions {
					s.shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
				}
				snap.OptionOrder = order
			}
			out = append(out, snap)
		}
	}
	return out, nil
}

// activeAttempt loads an attempt the caller may still write to.
func (s *AttemptService) activeAttempt(ctx context.Context, attemptID uint, viewer Viewer) (*model.Attempt, *model.Test, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	if err := viewer.canAccess(attempt); err != nil {
		return nil, nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, nil, util.ErrAttemptNotActive
	}
	if attempt.DeadlineAt != nil && s.Now().After(attempt.DeadlineAt.Add(s.Grace)) {
		return nil, nil, util.ErrAttemptExpired
	}
	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return nil, nil, err
	}
	return attempt, test, nil
}

// openSection enters a section, creating its progress row on first entry.
// Earlier sections are closed when the test does not allow going back; in
// section-timed mode every other open section is closed.
func (s *AttemptService) openSection(ctx context.Context, test *model.Test, attempt *model.Attempt, index int, now time.Time) (*model.AttemptSection, error) {
	existing, err := s.Attempts.FindSection(ctx, attempt.ID, index)
	if err == nil {
		if existing.IsLocked {
			return nil, util.ErrSectionLocked
		}
		if test.SectionTimed() && existing.Expired(test.SectionLimit(index)+s.Grace, now) {
			s.lockSection(ctx, attempt.ID, index, now)
			return nil, util.ErrSectionLocked
		}
		return existing, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	// 分区计时只能向后走：跳过的分区和已离开的分区都不能再进入
	if test.SectionTimed() {
		latest, err := s.Attempts.LatestStartedSection(ctx, attempt.ID)
		if err != nil {
			return nil, err
		}
		if index < latest {
			return nil, util.ErrSectionLocked
		}
	}

	sec, err := s.Attempts.StartSection(ctx, &model.AttemptSection{
		AttemptID:    attempt.ID,
		SectionIndex: index,
		StartedAt:    &now,
		CanGoBack:    test.Sections[index].CanGoBack && !test.SectionTimed(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.closeLeftSections(ctx, test, attempt.ID, index, now); err != nil {
		return nil, err
	}
	if limit := test.SectionLimit(index); test.SectionTimed() && limit > 0 && sec.StartedAt != nil {
		s.enqueue(ctx, scheduler.NewSectionTimeoutJob(attempt.ID, index, sec.StartedAt.Add(limit)))
	}
	logger.Log.Debug("Section started",
		zap.Uint("attempt_id", attempt.ID),
		zap.Int("section", index))
	return sec, nil
}

func (s *AttemptService) closeLeftSections(ctx context.Context, test *model.Test, attemptID uint, index int, now time.Time) error {
	if test.SectionTimed() {
		return s.Attempts.CompleteOtherSections(ctx, attemptID, index, now)
	}
	for i := 0; i < index; i++ {
		if test.Sections[i].CanGoBack {
			continue
		}
		if _, err := s.Attempts.LockSection(ctx, attemptID, i, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *AttemptService) lockSection(ctx context.Context, attemptID uint, index int, now time.Time) {
	locked, err := s.Attempts.LockSection(ctx, attemptID, index, now)
	if err != nil {
		logger.Log.Error("Failed to lock section",
			zap.Uint("attempt_id", attemptID),
			zap.Int("section", index),
			zap.Error(err))
		return
	}
	if locked {
		logger.Log.Info("Section time expired",
			zap.Uint("attempt_id", attemptID),
			zap.Int("section", index))
	}
}

// writableSection returns the section a question belongs to if answers may
// still be written there. Test-timed attempts enter sections implicitly.
func (s *AttemptService) writableSection(ctx context.Context, test *model.Test, attempt *model.Attempt, index int, now time.Time) (*model.AttemptSection, error) {
	if test.SectionTimed() {
		if _, err := s.Attempts.FindSection(ctx, attempt.ID, index); err != nil {
			if repository.IsNotFound(err) {
				return nil, util.ErrSectionNotStarted
			}
			return nil, err
		}
	}
	return s.openSection(ctx, test, attempt, index, now)
}

type AnswerInput struct {
	QuestionID       uint            `json:"questionId" binding:"required"`
	Answer           json.RawMessage `json:"answer"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
}

// SubmitAnswer 保存（覆盖）单题答案
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID uint, viewer Viewer, in AnswerInput) (*model.AttemptAnswer, error) {
	attempt, test, err := s.activeAttempt(ctx, attemptID, viewer)
	if err != nil {
		return nil, err
	}
	snap, ok := attempt.Snapshot(in.QuestionID)
	if !ok {
		return nil, util.Invalidf("question %d is not part of attempt %d", in.QuestionID, attemptID)
	}
	raw := []byte(in.Answer)
	if len(raw) == 0 {
		raw = []byte("null")
	}
	if !json.Valid(raw) {
		return nil, util.Invalidf("answer is not valid JSON")
	}

	now := s.Now()
	if _, err := s.writableSection(ctx, test, attempt, snap.SectionIndex, now); err != nil {
		return nil, err
	}

	spent := in.TimeSpentSeconds
	if spent < 0 {
		spent = 0
	}
	ans := &model.AttemptAnswer{
		AttemptID:        attempt.ID,
		QuestionID:       snap.QuestionID,
		SectionIndex:     snap.SectionIndex,
		QuestionType:     snap.Type,
		SubjectID:        snap.SubjectID,
		MaxMarks:         snap.MaxMarks,
		Answer:           model.JSONText(raw),
		TimeSpentSeconds: spent,
		AnsweredAt:       &now,
	}
	if err := s.Attempts.UpsertAnswer(ctx, ans); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	return s.Attempts.FindAnswer(ctx, attempt.ID, snap.QuestionID)
}

// FlagQuestion 标记/取消标记题目，便于学生回看
func (s *AttemptService) FlagQuestion(ctx context.Context, attemptID uint, viewer Viewer, questionID uint, flagged bool) error {
	attempt, _, err := s.activeAttempt(ctx, attemptID, viewer)
	if err != nil {
		return err
	}
	snap, ok := attempt.Snapshot(questionID)
	if !ok {
		return util.Invalidf("question %d is not part of attempt %d", questionID, attemptID)
	}
	return s.Attempts.UpsertFlag(ctx, &model.AttemptAnswer{
		AttemptID:    attempt.ID,
		QuestionID:   snap.QuestionID,
		SectionIndex: snap.SectionIndex,
		QuestionType: snap.Type,
		SubjectID:    snap.SubjectID,
		MaxMarks:     snap.MaxMarks,
		Flagged:      flagged,
	})
}

// StartSection 进入指定分区（分区计时模式下启动该分区计时）
func (s *AttemptService) StartSection(ctx context.Context, attemptID uint, viewer Viewer, index int) (*SectionView, error) {
	attempt, test, err := s.activeAttempt(ctx, attemptID, viewer)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(test.Sections) {
		return nil, util.Invalidf("section index %d out of range", index)
	}
	sec, err := s.openSection(ctx, test, attempt, index, s.Now())
	if err != nil {
		return nil, err
	}
	return s.loadSectionView(ctx, test, attempt, sec)
}

func (s *AttemptService) loadSectionView(ctx context.Context, test *model.Test, attempt *model.Attempt, sec *model.AttemptSection) (*SectionView, error) {
	var ids []uint
	for _, q := range attempt.SectionQuestions(sec.SectionIndex) {
		ids = append(ids, q.QuestionID)
	}
	bank, err := s.Questions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	answers, err := s.Attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	return sectionView(test, attempt, sec, bank, answersByQuestion(answers)), nil
}

// GetSectionStatus 查询分区进度；已超时的分区在此时被锁定
func (s *AttemptService) GetSectionStatus(ctx context.Context, attemptID uint, viewer Viewer, index int) (*SectionStatus, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := viewer.canAccess(attempt); err != nil {
		return nil, err
	}
	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(test.Sections) {
		return nil, util.Invalidf("section index %d out of range", index)
	}
	cfg := test.Sections[index]
	status := &SectionStatus{Index: index, Name: cfg.Name, TimeLimitMinutes: cfg.TimeLimitMinutes}

	sec, err := s.Attempts.FindSection(ctx, attemptID, index)
	if err != nil {
		if repository.IsNotFound(err) {
			return status, nil
		}
		return nil, err
	}
	now := s.Now()
	limit := test.SectionLimit(index)
	if attempt.Status == model.AttemptInProgress && test.SectionTimed() && !sec.IsLocked && sec.Expired(limit, now) {
		s.lockSection(ctx, attemptID, index, now)
		if sec, err = s.Attempts.FindSection(ctx, attemptID, index); err != nil {
			return nil, err
		}
	}

	status.Started = sec.StartedAt != nil
	status.StartedAt = sec.StartedAt
	status.CompletedAt = sec.CompletedAt
	status.TimeSpentSeconds = sec.TimeSpentSeconds
	status.IsLocked = sec.IsLocked
	status.CanGoBack = sec.CanGoBack
	if test.SectionTimed() && limit > 0 && sec.StartedAt != nil && !sec.IsLocked {
		status.RemainingSeconds = remainingSeconds(sec.StartedAt.Add(limit), now)
	}
	return status, nil
}

// GetSectionQuestions 返回已进入且未锁定分区的题目（续考）
func (s *AttemptService) GetSectionQuestions(ctx context.Context, attemptID uint, viewer Viewer, index int) (*SectionView, error) {
	attempt, test, err := s.activeAttempt(ctx, attemptID, viewer)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(test.Sections) {
		return nil, util.Invalidf("section index %d out of range", index)
	}
	sec, err := s.Attempts.FindSection(ctx, attemptID, index)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrSectionNotStarted
		}
		return nil, err
	}
	if sec.IsLocked {
		return nil, util.ErrSectionLocked
	}
	now := s.Now()
	if test.SectionTimed() && sec.Expired(test.SectionLimit(index)+s.Grace, now) {
		s.lockSection(ctx, attemptID, index, now)
		return nil, util.ErrSectionLocked
	}
	return s.loadSectionView(ctx, test, attempt, sec)
}

// GetAttempt 作答概览；进行中时附带当前分区题目
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uint, viewer Viewer) (*AttemptView, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := viewer.canAccess(attempt); err != nil {
		return nil, err
	}
	sections, err := s.Attempts.ListSections(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	view := &AttemptView{Attempt: attempt, Sections: sections}
	if attempt.Status != model.AttemptInProgress {
		return view, nil
	}
	now := s.Now()
	if attempt.DeadlineAt != nil {
		view.RemainingSeconds = remainingSeconds(*attempt.DeadlineAt, now)
	}
	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}
	var current *model.AttemptSection
	for i := range sections {
		sec := &sections[i]
		if sec.IsLocked || (test.SectionTimed() && sec.Expired(test.SectionLimit(sec.SectionIndex), now)) {
			continue
		}
		current = sec
	}
	if current != nil {
		if view.CurrentSection, err = s.loadSectionView(ctx, test, attempt, current); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// Submit 学生主动交卷
func (s *AttemptService) Submit(ctx context.Context, attemptID uint, viewer Viewer) (*model.Attempt, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := viewer.canAccess(attempt); err != nil {
		return nil, err
	}
	return s.submit(ctx, attempt, model.AttemptSubmitted, model.SubmitSourceStudent)
}

// AutoSubmit 计时到期、管理员或整场结束时强制交卷
func (s *AttemptService) AutoSubmit(ctx context.Context, attemptID uint, source string) (*model.Attempt, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, attempt, model.AttemptAutoSubmitted, source)
}

// AutoSubmitAttempt is the deadline timer entry point.
func (s *AttemptService) AutoSubmitAttempt(ctx context.Context, attemptID uint) error {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil
	}
	if attempt.DeadlineAt != nil && s.Now().Add(deadlineSkew).Before(*attempt.DeadlineAt) {
		logger.Log.Debug("Auto-submit fired before deadline",
			zap.Uint("attempt_id", attemptID),
			zap.Time("deadline", *attempt.DeadlineAt))
		return nil
	}
	_, err = s.submit(ctx, attempt, model.AttemptAutoSubmitted, model.SubmitSourceTimer)
	return err
}

// ExpireSection is the section timer entry point. Expiry of the last section
// of a section-timed test ends the attempt.
func (s *AttemptService) ExpireSection(ctx context.Context, attemptID uint, index int) error {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil
	}
	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return err
	}
	sec, err := s.Attempts.FindSection(ctx, attemptID, index)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	now := s.Now()
	if sec.IsLocked || !sec.Expired(test.SectionLimit(index), now.Add(deadlineSkew)) {
		return nil
	}
	if _, err := s.Attempts.LockSection(ctx, attemptID, index, now); err != nil {
		return err
	}
	logger.Log.Info("Section time expired",
		zap.Uint("attempt_id", attemptID),
		zap.Int("section", index))
	if test.SectionTimed() && index == len(test.Sections)-1 {
		_, err = s.submit(ctx, attempt, model.AttemptAutoSubmitted, model.SubmitSourceTimer)
	}
	return err
}

// submit closes an attempt exactly once. Concurrent callers that lose the
// claim get the winner's attempt back.
func (s *AttemptService) submit(ctx context.Context, attempt *model.Attempt, status, source string) (*model.Attempt, error) {
	if attempt.Terminal() {
		return attempt, nil
	}
	test, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}
	bank, err := s.Questions.FindByIDs(ctx, snapshotIDs(attempt))
	if err != nil {
		return nil, err
	}

	now := s.Now()
	claimed := false
	err = s.Attempts.Transaction(ctx, func(tx *repository.AttemptRepository) error {
		ok, err := tx.ClaimSubmit(ctx, attempt.ID, status, source, now)
		if err != nil || !ok {
			return err
		}
		claimed = true

		answers, err := autoGrade(ctx, tx, attempt, bank)
		if err != nil {
			return err
		}
		if err := tx.LockAllSections(ctx, attempt.ID, now); err != nil {
			return err
		}
		res := result.Compute(test, attempt, answers, now)
		next := ""
		if res.PendingManual == 0 {
			next = model.AttemptGraded
		}
		return tx.SaveResult(ctx, attempt.ID, res, next, nil, now)
	})
	if err != nil {
		return nil, fmt.Errorf("submit attempt %d: %w", attempt.ID, err)
	}

	current, err := s.loadAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return current, nil
	}

	monitoring.ObserveTransition("attempt", model.AttemptInProgress, status)
	logger.Log.Info("Attempt submitted",
		zap.Uint("attempt_id", current.ID),
		zap.Uint("test_id", current.TestID),
		zap.String("status", current.Status),
		zap.String("source", source))

	s.Notifier.Notify(ctx, notify.Event{
		Type:       notify.EventAttemptSubmitted,
		TenantID:   test.TenantID,
		TestID:     test.ID,
		AttemptID:  current.ID,
		StudentID:  current.StudentID,
		OccurredAt: now,
		Data:       map[string]interface{}{"source": source, "status": current.Status},
	})
	if current.Status == model.AttemptGraded {
		monitoring.ObserveTransition("attempt", status, model.AttemptGraded)
		announceGraded(ctx, s.Notifier, s.Analytics, test, current, now)
	}
	return current, nil
}

// autoGrade materialises an answer row for every snapshot question and scores
// everything the engine can. Unanswered questions score zero whatever their
// type; the rest of the subjective answers stay pending.
func autoGrade(ctx context.Context, tx *repository.AttemptRepository, attempt *model.Attempt, bank map[uint]*model.Question) ([]model.AttemptAnswer, error) {
	rows := make([]model.AttemptAnswer, 0, len(attempt.Questions))
	for _, q := range attempt.Questions {
		rows = append(rows, model.AttemptAnswer{
			AttemptID:    attempt.ID,
			QuestionID:   q.QuestionID,
			SectionIndex: q.SectionIndex,
			QuestionType: q.Type,
			SubjectID:    q.SubjectID,
			MaxMarks:     q.MaxMarks,
		})
	}
	if err := tx.EnsureAnswers(ctx, rows); err != nil {
		return nil, err
	}
	answers, err := tx.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}

	for i := range answers {
		a := &answers[i]
		if a.Graded() {
			continue
		}
		snap, ok := attempt.Snapshot(a.QuestionID)
		if !ok {
			continue
		}
		var out grading.Outcome
		switch {
		case !a.HasResponse():
			out = grading.Outcome{Gradable: true, Reason: grading.ReasonUnanswered}
		case bank[a.QuestionID] == nil:
			out = grading.Outcome{Reason: grading.ReasonMalformed}
		default:
			out = grading.Grade(snap.Type, a.Answer, bank[a.QuestionID].Content, snap.MaxMarks)
		}
		monitoring.GradingOutcomes.WithLabelValues(snap.Type, out.Reason).Inc()
		if !out.Gradable {
			continue
		}
		if err := tx.SetAutoGrade(ctx, a.ID, out.MarksAwarded, out.IsCorrect); err != nil {
			return nil, err
		}
		marks, correct := out.MarksAwarded, out.IsCorrect
		a.MarksAwarded = &marks
		a.IsCorrect = &correct
	}
	return answers, nil
}

// GetResult 查询成绩；学生仅在成绩公布且评分完成后可见
func (s *AttemptService) GetResult(ctx context.Context, attemptID uint, viewer Viewer) (*ResultView, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := viewer.canAccess(attempt); err != nil {
		return nil, err
	}
	if !attempt.Terminal() {
		return nil, util.ErrAttemptNotGradable
	}
	if !viewer.Staff {
		test, err := s.loadTest(ctx, attempt.TestID)
		if err != nil {
			return nil, err
		}
		if !test.Options.ShowResults || attempt.Status != model.AttemptGraded {
			return nil, util.ErrResultsHidden
		}
	}
	return &ResultView{AttemptID: attempt.ID, Status: attempt.Status, Result: attempt.Result}, nil
}

// GetReview 逐题回顾（含正确答案与解析），需开启 ShowCorrectAnswers
func (s *AttemptService) GetReview(ctx context.Context, attemptID uint, viewer Viewer) ([]ReviewItem, error) {
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := viewer.canAccess(attempt); err != nil {
		return nil, err
	}
	if !attempt.Terminal() {
		return nil, util.ErrAttemptNotGradable
	}
	if !viewer.Staff {
		test, err := s.loadTest(ctx, attempt.TestID)
		if err != nil {
			return nil, err
		}
		if !test.Options.ShowCorrectAnswers || attempt.Status != model.AttemptGraded {
			return nil, util.ErrResultsHidden
		}
	}

	bank, err := s.Questions.FindByIDs(ctx, snapshotIDs(attempt))
	if err != nil {
		return nil, err
	}
	list, err := s.Attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	answers := answersByQuestion(list)

	items := make([]ReviewItem, 0, len(attempt.Questions))
	for _, snap := range attempt.Questions {
		item := ReviewItem{
			QuestionID:   snap.QuestionID,
			SectionIndex: snap.SectionIndex,
			Type:         snap.Type,
			MaxMarks:     snap.MaxMarks,
		}
		if q := bank[snap.QuestionID]; q != nil {
			item.Prompt = q.Prompt
			item.Options = optionViews(snap, q)
			item.Solution = grading.Feedback(snap.Type, q.Content, q.Explanation)
		}
		if a, ok := answers[snap.QuestionID]; ok {
			item.Answer = a.Answer
			item.MarksAwarded = a.MarksAwarded
			item.IsCorrect = a.IsCorrect
			item.Feedback = a.Feedback
		}
		items = append(items, item)
	}
	return items, nil
}
