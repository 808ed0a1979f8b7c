// Package notify publishes lifecycle and grading events to the notification
// and analytics collaborators over Redis pub/sub. Publishing is best effort:
// failures are logged and never fail the transition that produced them.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"assessment_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	EventTestLive         = "test.live"
	EventTestCompleted    = "test.completed"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptGraded    = "attempt.graded"
	EventResultsAvailable = "results.available"
	EventTestGraded       = "test.graded"
)

type Event struct {
	Type       string                 `json:"type"`
	TenantID   uint                   `json:"tenantId,omitempty"`
	TestID     uint                   `json:"testId"`
	AttemptID  uint                   `json:"attemptId,omitempty"`
	StudentID  uint                   `json:"studentId,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Notifier receives lifecycle/grading events.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Analytics is asked to recompute derived statistics once an attempt is graded.
type Analytics interface {
	Recompute(ctx context.Context, testID, attemptID uint)
}

// Publisher implements Notifier and Analytics on a Redis client.
type Publisher struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewPublisher(rdb redis.UniversalClient, prefix string) *Publisher {
	if prefix == "" {
		prefix = "assessment"
	}
	return &Publisher{rdb: rdb, prefix: prefix}
}

func (p *Publisher) EventsChannel() string {
	return p.prefix + ":events"
}

func (p *Publisher) AnalyticsChannel() string {
	return p.prefix + ":analytics:recompute"
}

func (p *Publisher) Notify(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	p.publish(ctx, p.EventsChannel(), e.Type, e)
}

func (p *Publisher) Recompute(ctx context.Context, testID, attemptID uint) {
	p.publish(ctx, p.AnalyticsChannel(), "analytics.recompute", map[string]interface{}{
		"testId":    testID,
		"attemptId": attemptID,
		"at":        time.Now(),
	})
}

func (p *Publisher) publish(ctx context.Context, channel, kind string, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Log.Error("Failed to encode event", zap.String("type", kind), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
		logger.Log.Warn("Failed to publish event",
			zap.String("channel", channel),
			zap.String("type", kind),
			zap.Error(err),
		)
	}
}

// Nop drops everything; used when notify.enabled is false.
type Nop struct{}

func (Nop) Notify(context.Context, Event)          {}
func (Nop) Recompute(context.Context, uint, uint) {}
