package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessment_backend/internal/model"
	"assessment_backend/internal/notify"
	"assessment_backend/internal/util"
)

func (f *fixture) testStatus(t *testing.T, id uint) string {
	test, err := f.tests.FindByID(f.ctx, id)
	require.NoError(t, err)
	return test.Status
}

func TestScheduleTestEnqueuesTimers(t *testing.T) {
	f := newFixture(t)
	test, _ := f.standardTest(t, func(test *model.Test) { test.Status = model.TestStatusDraft })

	start, end := f.now.Add(time.Hour), f.now.Add(3*time.Hour)
	_, err := f.lifecycle.ScheduleTest(f.ctx, test.ID, ScheduleInput{StartTime: end, EndTime: start})
	assert.Equal(t, util.KindInvalid, util.KindOf(err))
	_, err = f.lifecycle.ScheduleTest(f.ctx, test.ID, ScheduleInput{StartTime: f.now.Add(-2 * time.Hour), EndTime: f.now.Add(-time.Hour)})
	assert.Equal(t, util.KindInvalid, util.KindOf(err))

	got, err := f.lifecycle.ScheduleTest(f.ctx, test.ID, ScheduleInput{StartTime: start, EndTime: end})
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusScheduled, got.Status)
	assert.ElementsMatch(t, []string{
		fmt.Sprintf("go-live:%d:%d", test.ID, start.Unix()),
		fmt.Sprintf("auto-complete:%d:%d", test.ID, end.Unix()),
	}, f.sched.ids())

	live, _ := f.standardTest(t, nil)
	_, err = f.lifecycle.ScheduleTest(f.ctx, live.ID, ScheduleInput{StartTime: start, EndTime: end})
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestGoLiveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	test, _ := f.standardTest(t, func(test *model.Test) { test.Status = model.TestStatusDraft })
	_, err := f.lifecycle.ScheduleTest(f.ctx, test.ID, ScheduleInput{StartTime: f.now.Add(time.Hour), EndTime: f.now.Add(2 * time.Hour)})
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.GoLive(f.ctx, test.ID))
	assert.Equal(t, model.TestStatusScheduled, f.testStatus(t, test.ID))

	f.advance(time.Hour)
	require.NoError(t, f.lifecycle.GoLive(f.ctx, test.ID))
	require.NoError(t, f.lifecycle.GoLive(f.ctx, test.ID))
	assert.Equal(t, model.TestStatusLive, f.testStatus(t, test.ID))
	assert.Equal(t, 1, f.events.count(notify.EventTestLive))

	assert.NoError(t, f.lifecycle.GoLive(f.ctx, 31337))
}

func TestPublishNow(t *testing.T) {
	f := newFixture(t)
	end := f.now.Add(time.Hour)
	test, _ := f.standardTest(t, func(test *model.Test) {
		test.Status = model.TestStatusDraft
		test.EndTime = &end
	})

	got, err := f.lifecycle.PublishNow(f.ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusLive, got.Status)
	assert.Contains(t, f.sched.ids(), fmt.Sprintf("auto-complete:%d:%d", test.ID, end.Unix()))

	_, err = f.lifecycle.PublishNow(f.ctx, test.ID)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestAutoCompleteSubmitsOpenAttempts(t *testing.T) {
	f := newFixture(t)
	end := f.now.Add(45 * time.Minute)
	test, ids := f.standardTest(t, func(test *model.Test) { test.EndTime = &end })
	a := f.start(t, test.ID, 1)
	b := f.start(t, test.ID, 2)
	f.answer(t, a.ID, 1, ids[0], `1`)

	// before the end time the timer is a no-op
	require.NoError(t, f.lifecycle.AutoComplete(f.ctx, test.ID))
	assert.Equal(t, model.TestStatusLive, f.testStatus(t, test.ID))

	f.advance(45 * time.Minute)
	require.NoError(t, f.lifecycle.AutoComplete(f.ctx, test.ID))
	assert.Equal(t, model.TestStatusCompleted, f.testStatus(t, test.ID))

	for _, id := range []uint{a.ID, b.ID} {
		got, err := f.repo.FindByID(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.AttemptGraded, got.Status, "the unanswered essay scores 0")
		assert.Equal(t, model.SubmitSourceTestComplete, got.SubmitSource)
	}

	require.NoError(t, f.lifecycle.AutoComplete(f.ctx, test.ID))
	assert.Equal(t, 1, f.events.count(notify.EventTestCompleted))
	assert.Equal(t, 2, f.events.count(notify.EventAttemptSubmitted))

	_, err := f.attempts.StartAttempt(f.ctx, test.ID, 3, ClientInfo{})
	assert.ErrorIs(t, err, util.ErrTestNotAvailable)
}

func TestCompleteAndArchive(t *testing.T) {
	f := newFixture(t)
	test, _ := f.standardTest(t, nil)
	a := f.start(t, test.ID, 1)

	_, err := f.lifecycle.ArchiveTest(f.ctx, test.ID)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)

	got, err := f.lifecycle.CompleteTest(f.ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusCompleted, got.Status)
	sub, err := f.repo.FindByID(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptGraded, sub.Status)

	got, err = f.lifecycle.ArchiveTest(f.ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusArchived, got.Status)

	_, err = f.lifecycle.CompleteTest(f.ctx, test.ID)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestSweepRecoversLostTimers(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(-time.Minute)
	end := f.now.Add(3 * time.Hour)
	due, _ := f.standardTest(t, func(test *model.Test) {
		test.Status = model.TestStatusScheduled
		test.StartTime = &start
		test.EndTime = &end
	})
	finished := f.now.Add(90 * time.Minute)
	ending, _ := f.standardTest(t, func(test *model.Test) { test.EndTime = &finished })
	live, _ := f.standardTest(t, nil)
	stale := f.start(t, live.ID, 9)

	rep, err := f.lifecycle.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{WentLive: 1}, rep)
	assert.Equal(t, model.TestStatusLive, f.testStatus(t, due.ID))

	// past the deadline but inside the grace window nothing is touched
	f.advance(time.Hour + testGrace/2)
	rep, err = f.lifecycle.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, rep)

	f.advance(time.Hour)
	rep, err = f.lifecycle.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, 1, rep.AutoSubmitted)
	assert.Equal(t, model.TestStatusCompleted, f.testStatus(t, ending.ID))

	got, err := f.repo.FindByID(f.ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptGraded, got.Status)
	assert.Equal(t, model.SubmitSourceTimer, got.SubmitSource)
}
