package scheduler

import "context"

// Client enqueues delayed jobs. Enqueueing a job whose ID is already queued
// succeeds without creating a second job.
type Client interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// Lifecycle is the set of idempotent transitions the jobs trigger. Each
// method must re-check current state and return nil when there is nothing
// to do.
type Lifecycle interface {
	GoLive(ctx context.Context, testID uint) error
	AutoComplete(ctx context.Context, testID uint) error
	AutoSubmitAttempt(ctx context.Context, attemptID uint) error
	ExpireSection(ctx context.Context, attemptID uint, index int) error
}

// Handler executes one job by kind and raw payload.
type Handler interface {
	Handle(ctx context.Context, kind string, payload []byte) error
}
