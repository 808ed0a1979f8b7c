package service

import (
	"context"
	"time"

	"assessment_backend/internal/model"
	"assessment_backend/internal/notify"
)

// announceGraded publishes what follows an attempt becoming graded: the
// graded event, the analytics recompute and, when released, results.available.
func announceGraded(ctx context.Context, n notify.Notifier, a notify.Analytics, test *model.Test, attempt *model.Attempt, now time.Time) {
	event := notify.Event{
		Type:       notify.EventAttemptGraded,
		TenantID:   test.TenantID,
		TestID:     test.ID,
		AttemptID:  attempt.ID,
		StudentID:  attempt.StudentID,
		OccurredAt: now,
	}
	n.Notify(ctx, event)
	a.Recompute(ctx, test.ID, attempt.ID)
	if test.Options.ShowResults {
		event.Type = notify.EventResultsAvailable
		n.Notify(ctx, event)
	}
}

func testEvent(kind string, test *model.Test, now time.Time) notify.Event {
	return notify.Event{
		Type:       kind,
		TenantID:   test.TenantID,
		TestID:     test.ID,
		OccurredAt: now,
	}
}
