package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"assessment_backend/internal/config"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

var ErrSchedulerClosed = errors.New("scheduler closed")

type memoryTask struct {
	job     Job
	retried int
}

// MemoryScheduler is an in-process Client with the same delivery contract as
// the asynq driver: dedupe by job ID, a fixed worker pool per kind and
// retries with backoff. Pending jobs are lost on restart; the recovery sweep
// covers that in single-node setups.
type MemoryScheduler struct {
	handler  Handler
	maxRetry int
	backoff  func(n int) time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	queues  map[string]chan memoryTask
	workers map[string]int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemoryScheduler(cfg config.SchedulerConfig) *MemoryScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MemoryScheduler{
		maxRetry: cfg.MaxRetry,
		backoff:  backoff,
		pending:  make(map[string]*time.Timer),
		queues:   make(map[string]chan memoryTask, len(Kinds)),
		workers:  make(map[string]int, len(Kinds)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, kind := range Kinds {
		n := ConcurrencyFor(cfg.Concurrency, kind)
		m.queues[kind] = make(chan memoryTask, 256)
		m.workers[kind] = n
	}
	return m
}

// Start launches the worker goroutines. The handler is supplied here rather
// than at construction because it usually depends on services that enqueue
// through this scheduler.
func (m *MemoryScheduler) Start(h Handler) error {
	m.handler = h
	for kind, n := range m.workers {
		for i := 0; i < n; i++ {
			m.wg.Add(1)
			go m.work(m.queues[kind])
		}
	}
	return nil
}

func (m *MemoryScheduler) Enqueue(ctx context.Context, job Job) error {
	if _, ok := m.queues[job.Kind]; !ok {
		return errSkip{errors.New("unknown job kind " + job.Kind)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSchedulerClosed
	}
	if _, dup := m.pending[job.ID]; dup {
		return nil
	}
	m.schedule(memoryTask{job: job}, Delay(time.Now(), job.RunAt))
	monitoring.JobsEnqueued.WithLabelValues(job.Kind).Inc()
	return nil
}

// schedule must be called with m.mu held.
func (m *MemoryScheduler) schedule(t memoryTask, delay time.Duration) {
	m.pending[t.job.ID] = time.AfterFunc(delay, func() {
		select {
		case m.queues[t.job.Kind] <- t:
		case <-m.ctx.Done():
		}
	})
}

func (m *MemoryScheduler) work(queue chan memoryTask) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case t := <-queue:
			m.run(t)
		}
	}
}

func (m *MemoryScheduler) run(t memoryTask) {
	err := m.handler.Handle(m.ctx, t.job.Kind, t.job.Payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil || m.closed {
		delete(m.pending, t.job.ID)
		return
	}
	if IsPermanent(err) || t.retried >= m.maxRetry {
		delete(m.pending, t.job.ID)
		logger.Log.Error("Lifecycle job gave up",
			zap.String("kind", t.job.Kind),
			zap.String("job_id", t.job.ID),
			zap.Int("retried", t.retried),
			zap.Error(err),
		)
		return
	}
	t.retried++
	m.schedule(t, m.backoff(t.retried))
}

// Pending reports how many jobs are waiting or running.
func (m *MemoryScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *MemoryScheduler) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, t := range m.pending {
		t.Stop()
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}
