package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assessment_backend/internal/config"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// QueueFor maps a job kind to its own asynq queue so that each kind is
// served by a dedicated server with bounded concurrency.
func QueueFor(kind string) string {
	switch kind {
	case KindGoLive:
		return "lifecycle_go_live"
	case KindAutoComplete:
		return "lifecycle_auto_complete"
	case KindAutoSubmit:
		return "lifecycle_auto_submit"
	case KindSectionTimeout:
		return "lifecycle_section_timeout"
	}
	return "lifecycle_default"
}

// AsynqClient enqueues jobs into Redis through asynq.
type AsynqClient struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

func NewAsynqClient(opt asynq.RedisConnOpt, cfg config.SchedulerConfig) *AsynqClient {
	return &AsynqClient{
		client:   asynq.NewClient(opt),
		maxRetry: cfg.MaxRetry,
		timeout:  cfg.JobTimeout,
	}
}

func (c *AsynqClient) Enqueue(ctx context.Context, job Job) error {
	opts := []asynq.Option{
		asynq.TaskID(job.ID),
		asynq.Queue(QueueFor(job.Kind)),
		asynq.ProcessAt(job.RunAt),
		asynq.MaxRetry(c.maxRetry),
	}
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(job.Kind, job.Payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Log.Debug("Job already queued", zap.String("job_id", job.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	monitoring.JobsEnqueued.WithLabelValues(job.Kind).Inc()
	logger.Log.Debug("Job enqueued",
		zap.String("job_id", info.ID),
		zap.String("queue", info.Queue),
		zap.Time("run_at", job.RunAt),
	)
	return nil
}

func (c *AsynqClient) Close() error {
	return c.client.Close()
}

// AsynqWorker runs one asynq server per job kind.
type AsynqWorker struct {
	servers map[string]*asynq.Server
	handler Handler
}

func NewAsynqWorker(opt asynq.RedisConnOpt, cfg config.SchedulerConfig, h Handler) *AsynqWorker {
	w := &AsynqWorker{servers: make(map[string]*asynq.Server, len(Kinds)), handler: h}
	for _, kind := range Kinds {
		w.servers[kind] = asynq.NewServer(opt, asynq.Config{
			Concurrency:    ConcurrencyFor(cfg.Concurrency, kind),
			Queues:         map[string]int{QueueFor(kind): 1},
			RetryDelayFunc: RetryDelay,
			ErrorHandler:   asynq.ErrorHandlerFunc(reportFailure),
			Logger:         logger.Log.Sugar().With("component", "asynq", "kind", kind),
			LogLevel:       asynq.WarnLevel,
		})
	}
	return w
}

func (w *AsynqWorker) Start() error {
	for kind, srv := range w.servers {
		mux := asynq.NewServeMux()
		mux.HandleFunc(kind, w.process)
		if err := srv.Start(mux); err != nil {
			w.Shutdown()
			return fmt.Errorf("start %s worker: %w", kind, err)
		}
	}
	logger.Log.Info("Lifecycle workers started", zap.Int("kinds", len(w.servers)))
	return nil
}

func (w *AsynqWorker) process(ctx context.Context, t *asynq.Task) error {
	err := w.handler.Handle(ctx, t.Type(), t.Payload())
	if err != nil && IsPermanent(err) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (w *AsynqWorker) Shutdown() {
	for _, srv := range w.servers {
		srv.Shutdown()
	}
}

func reportFailure(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	id, _ := asynq.GetTaskID(ctx)
	if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
		logger.Log.Error("Lifecycle job gave up",
			zap.String("kind", task.Type()),
			zap.String("job_id", id),
			zap.Int("retried", retried),
			zap.Error(err),
		)
		return
	}
	logger.Log.Warn("Lifecycle job will retry",
		zap.String("kind", task.Type()),
		zap.String("job_id", id),
		zap.Int("retried", retried),
		zap.Error(err),
	)
}

// RetryDelay is exponential backoff capped at five minutes.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return backoff(n)
}

func backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 8 {
		n = 8
	}
	d := time.Second << uint(n)
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}

func ConcurrencyFor(c config.Concurrency, kind string) int {
	var n int
	switch kind {
	case KindGoLive:
		n = c.GoLive
	case KindAutoComplete:
		n = c.AutoComplete
	case KindAutoSubmit:
		n = c.AutoSubmit
	case KindSectionTimeout:
		n = c.SectionTimeout
	}
	if n <= 0 {
		return 1
	}
	return n
}
