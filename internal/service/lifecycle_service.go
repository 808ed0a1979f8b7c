package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assessment_backend/internal/model"
	"assessment_backend/internal/notify"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/scheduler"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// overdue attempts handled per sweep
const sweepBatch = 200

// LifecycleService 试卷状态机（定时上线、到期结束、归档）以及作答计时回调
type LifecycleService struct {
	Tests     *repository.TestRepository
	Attempts  *AttemptService
	Scheduler scheduler.Client
	Notifier  notify.Notifier
	Grace     time.Duration

	Now func() time.Time
}

var _ scheduler.Lifecycle = (*LifecycleService)(nil)

func NewLifecycleService(tests *repository.TestRepository, attempts *AttemptService, sched scheduler.Client, notifier notify.Notifier, grace time.Duration) *LifecycleService {
	return &LifecycleService{
		Tests:     tests,
		Attempts:  attempts,
		Scheduler: sched,
		Notifier:  notifier,
		Grace:     grace,
		Now:       time.Now,
	}
}

func (s *LifecycleService) findTest(ctx context.Context, id uint) (*model.Test, error) {
	test, err := s.Tests.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	return test, nil
}

type ScheduleInput struct {
	StartTime     time.Time  `json:"startTime" binding:"required"`
	EndTime       time.Time  `json:"endTime" binding:"required"`
	AvailableFrom *time.Time `json:"availableFrom"`
}

// ScheduleTest 设置考试时间窗口并登记上线/结束定时任务
func (s *LifecycleService) ScheduleTest(ctx context.Context, testID uint, in ScheduleInput) (*model.Test, error) {
	now := s.Now()
	if !in.StartTime.Before(in.EndTime) {
		return nil, util.Invalidf("start time must be before end time")
	}
	if !in.EndTime.After(now) {
		return nil, util.Invalidf("end time is in the past")
	}
	if in.AvailableFrom != nil && in.AvailableFrom.After(in.StartTime) {
		return nil, util.Invalidf("available-from must not be after start time")
	}
	test, err := s.findTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	ok, err := s.Tests.UpdateSchedule(ctx, testID, &in.StartTime, &in.EndTime, in.AvailableFrom)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot schedule a %s test", util.ErrInvalidTransition, test.Status)
	}
	if test.Status != model.TestStatusScheduled {
		monitoring.ObserveTransition("test", test.Status, model.TestStatusScheduled)
	}

	if err := s.Scheduler.Enqueue(ctx, scheduler.NewGoLiveJob(testID, in.StartTime)); err != nil {
		return nil, fmt.Errorf("enqueue go-live: %w", err)
	}
	if err := s.Scheduler.Enqueue(ctx, scheduler.NewAutoCompleteJob(testID, in.EndTime)); err != nil {
		return nil, fmt.Errorf("enqueue auto-complete: %w", err)
	}
	logger.Log.Info("Test scheduled",
		zap.Uint("test_id", testID),
		zap.Time("start", in.StartTime),
		zap.Time("end", in.EndTime))
	return s.findTest(ctx, testID)
}

// PublishNow 立即上线（跳过定时）
func (s *LifecycleService) PublishNow(ctx context.Context, testID uint) (*model.Test, error) {
	test, err := s.findTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if test.EndTime != nil && !test.EndTime.After(now) {
		return nil, util.Invalidf("test end time has passed")
	}
	ok, err := s.Tests.TransitionStatus(ctx, testID, []string{model.TestStatusDraft, model.TestStatusScheduled}, model.TestStatusLive)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot publish a %s test", util.ErrInvalidTransition, test.Status)
	}
	s.wentLive(ctx, test, now)
	if test.EndTime != nil {
		if err := s.Scheduler.Enqueue(ctx, scheduler.NewAutoCompleteJob(testID, *test.EndTime)); err != nil {
			logger.Log.Warn("Failed to enqueue auto-complete", zap.Uint("test_id", testID), zap.Error(err))
		}
	}
	return s.findTest(ctx, testID)
}

func (s *LifecycleService) wentLive(ctx context.Context, test *model.Test, now time.Time) {
	monitoring.ObserveTransition("test", test.Status, model.TestStatusLive)
	logger.Log.Info("Test is live", zap.Uint("test_id", test.ID))
	s.Notifier.Notify(ctx, testEvent(notify.EventTestLive, test, now))
}

// GoLive is the start-time timer entry point.
func (s *LifecycleService) GoLive(ctx context.Context, testID uint) error {
	test, err := s.Tests.FindByID(ctx, testID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	if test.Status != model.TestStatusScheduled && test.Status != model.TestStatusDraft {
		return nil
	}
	now := s.Now()
	if test.StartTime == nil || now.Add(deadlineSkew).Before(*test.StartTime) {
		// rescheduled later; the newer job takes over
		return nil
	}
	ok, err := s.Tests.TransitionStatus(ctx, testID, []string{model.TestStatusDraft, model.TestStatusScheduled}, model.TestStatusLive)
	if err != nil || !ok {
		return err
	}
	s.wentLive(ctx, test, now)
	return nil
}

// AutoComplete is the end-time timer entry point.
func (s *LifecycleService) AutoComplete(ctx context.Context, testID uint) error {
	_, err := s.complete(ctx, testID, false)
	if errors.Is(err, util.ErrTestNotFound) {
		return nil
	}
	return err
}

// CompleteTest 管理员提前结束考试，强制提交所有进行中的作答
func (s *LifecycleService) CompleteTest(ctx context.Context, testID uint) (*model.Test, error) {
	test, err := s.findTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusScheduled && test.Status != model.TestStatusLive && test.Status != model.TestStatusCompleted {
		return nil, fmt.Errorf("%w: cannot complete a %s test", util.ErrInvalidTransition, test.Status)
	}
	return s.complete(ctx, testID, true)
}

// complete moves a test to completed and closes every open attempt. Open
// attempts are submitted on every call so a retry finishes a partial run.
func (s *LifecycleService) complete(ctx context.Context, testID uint, force bool) (*model.Test, error) {
	test, err := s.findTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	transitioned := false
	if test.Status == model.TestStatusScheduled || test.Status == model.TestStatusLive {
		due := test.EndTime != nil && !now.Add(deadlineSkew).Before(*test.EndTime)
		if !due && !force {
			return test, nil
		}
		ok, err := s.Tests.TransitionStatus(ctx, testID, []string{model.TestStatusScheduled, model.TestStatusLive}, model.TestStatusCompleted)
		if err != nil {
			return nil, err
		}
		transitioned = ok
	}
	if !transitioned && test.Status != model.TestStatusCompleted {
		current, err := s.findTest(ctx, testID)
		if err != nil {
			return nil, err
		}
		if current.Status != model.TestStatusCompleted {
			return current, nil
		}
	}

	open, err := s.Attempts.Attempts.ListByTest(ctx, testID, model.AttemptInProgress)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, a := range open {
		if _, err := s.Attempts.AutoSubmit(ctx, a.ID, model.SubmitSourceTestComplete); err != nil {
			errs = append(errs, fmt.Errorf("attempt %d: %w", a.ID, err))
		}
	}

	if transitioned {
		monitoring.ObserveTransition("test", test.Status, model.TestStatusCompleted)
		e := testEvent(notify.EventTestCompleted, test, now)
		e.Data = map[string]interface{}{"autoSubmitted": len(open) - len(errs)}
		s.Notifier.Notify(ctx, e)
		logger.Log.Info("Test completed",
			zap.Uint("test_id", testID),
			zap.Int("auto_submitted", len(open)-len(errs)))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s.findTest(ctx, testID)
}

// ArchiveTest 归档已结束的考试
func (s *LifecycleService) ArchiveTest(ctx context.Context, testID uint) (*model.Test, error) {
	test, err := s.findTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	ok, err := s.Tests.TransitionStatus(ctx, testID, []string{model.TestStatusCompleted}, model.TestStatusArchived)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot archive a %s test", util.ErrInvalidTransition, test.Status)
	}
	monitoring.ObserveTransition("test", model.TestStatusCompleted, model.TestStatusArchived)
	return s.findTest(ctx, testID)
}

func (s *LifecycleService) AutoSubmitAttempt(ctx context.Context, attemptID uint) error {
	return s.Attempts.AutoSubmitAttempt(ctx, attemptID)
}

func (s *LifecycleService) ExpireSection(ctx context.Context, attemptID uint, index int) error {
	return s.Attempts.ExpireSection(ctx, attemptID, index)
}

// SweepReport 一次补偿扫描处理的数量
type SweepReport struct {
	WentLive      int
	Completed     int
	AutoSubmitted int
}

// Sweep re-runs the timer handlers for anything whose job was lost. It is
// safe to run concurrently with the timers.
func (s *LifecycleService) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	var errs []error
	now := s.Now()

	due, err := s.Tests.FindDueForLive(ctx, now)
	if err != nil {
		return rep, err
	}
	for _, t := range due {
		if err := s.GoLive(ctx, t.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		rep.WentLive++
	}

	ending, err := s.Tests.FindDueForComplete(ctx, now)
	if err != nil {
		return rep, err
	}
	for _, t := range ending {
		if err := s.AutoComplete(ctx, t.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		rep.Completed++
	}

	overdue, err := s.Attempts.Attempts.ListOverdue(ctx, now.Add(-s.Grace), sweepBatch)
	if err != nil {
		return rep, err
	}
	for _, a := range overdue {
		if err := s.AutoSubmitAttempt(ctx, a.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		rep.AutoSubmitted++
	}

	if rep != (SweepReport{}) {
		logger.Log.Info("Sweep recovered stale state",
			zap.Int("went_live", rep.WentLive),
			zap.Int("completed", rep.Completed),
			zap.Int("auto_submitted", rep.AutoSubmitted))
	}
	return rep, errors.Join(errs...)
}
