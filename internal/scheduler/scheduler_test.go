package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessment_backend/internal/config"
)

type call struct {
	method string
	id     uint
	index  int
}

type fakeLifecycle struct {
	mu    sync.Mutex
	calls []call
	fail  int32 // remaining failures
	block chan struct{}
	live  int32
	peak  int32
}

func (f *fakeLifecycle) record(c call) error {
	n := atomic.AddInt32(&f.live, 1)
	defer atomic.AddInt32(&f.live, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if atomic.AddInt32(&f.fail, -1) >= 0 {
		return errors.New("transient")
	}
	return nil
}

func (f *fakeLifecycle) GoLive(_ context.Context, id uint) error {
	return f.record(call{method: "GoLive", id: id})
}
func (f *fakeLifecycle) AutoComplete(_ context.Context, id uint) error {
	return f.record(call{method: "AutoComplete", id: id})
}
func (f *fakeLifecycle) AutoSubmitAttempt(_ context.Context, id uint) error {
	return f.record(call{method: "AutoSubmitAttempt", id: id})
}
func (f *fakeLifecycle) ExpireSection(_ context.Context, id uint, index int) error {
	return f.record(call{method: "ExpireSection", id: id, index: index})
}

func (f *fakeLifecycle) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDelay(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 5*time.Second, Delay(now, now.Add(5*time.Second)))
	assert.Equal(t, time.Duration(0), Delay(now, now.Add(-time.Hour)))
}

func TestJobIDsAreDeterministic(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "go-live:3:1700000000", NewGoLiveJob(3, at).ID)
	assert.Equal(t, "auto-complete:3:1700000000", NewAutoCompleteJob(3, at).ID)
	assert.Equal(t, "auto-submit:9", NewAutoSubmitJob(9, at).ID)
	assert.Equal(t, "section-timeout:9:2", NewSectionTimeoutJob(9, 2, at).ID)
	assert.NotEqual(t, NewGoLiveJob(3, at).ID, NewGoLiveJob(3, at.Add(time.Hour)).ID)

	var p SectionPayload
	require.NoError(t, json.Unmarshal(NewSectionTimeoutJob(9, 2, at).Payload, &p))
	assert.Equal(t, SectionPayload{AttemptID: 9, SectionIndex: 2}, p)
}

func TestDispatcherRoutes(t *testing.T) {
	lc := &fakeLifecycle{}
	d := NewDispatcher(lc, time.Second)
	at := time.Now()
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, KindGoLive, NewGoLiveJob(1, at).Payload))
	require.NoError(t, d.Handle(ctx, KindAutoComplete, NewAutoCompleteJob(2, at).Payload))
	require.NoError(t, d.Handle(ctx, KindAutoSubmit, NewAutoSubmitJob(3, at).Payload))
	require.NoError(t, d.Handle(ctx, KindSectionTimeout, NewSectionTimeoutJob(4, 1, at).Payload))

	assert.Equal(t, []call{
		{method: "GoLive", id: 1},
		{method: "AutoComplete", id: 2},
		{method: "AutoSubmitAttempt", id: 3},
		{method: "ExpireSection", id: 4, index: 1},
	}, lc.calls)

	err := d.Handle(ctx, KindAutoSubmit, []byte(`{}`))
	assert.True(t, IsPermanent(err))
	err = d.Handle(ctx, "attempt:unknown", nil)
	assert.True(t, IsPermanent(err))
}

func TestBackoffAndConcurrency(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 256*time.Second, backoff(50))
	assert.Equal(t, 1, ConcurrencyFor(config.Concurrency{}, KindAutoSubmit))
	assert.Equal(t, 4, ConcurrencyFor(config.Concurrency{SectionTimeout: 4}, KindSectionTimeout))
	assert.Equal(t, "lifecycle_auto_submit", QueueFor(KindAutoSubmit))
}

func newMemory(t *testing.T, lc Lifecycle, cfg config.SchedulerConfig) *MemoryScheduler {
	t.Helper()
	m := NewMemoryScheduler(cfg)
	m.backoff = func(int) time.Duration { return 5 * time.Millisecond }
	require.NoError(t, m.Start(NewDispatcher(lc, time.Second)))
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMemorySchedulerFiresOnceAfterDelay(t *testing.T) {
	lc := &fakeLifecycle{}
	m := newMemory(t, lc, config.SchedulerConfig{})
	ctx := context.Background()

	job := NewAutoSubmitJob(7, time.Now().Add(30*time.Millisecond))
	require.NoError(t, m.Enqueue(ctx, job))
	require.NoError(t, m.Enqueue(ctx, job), "duplicate enqueue is accepted")
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, 0, lc.count())

	require.Eventually(t, func() bool { return lc.count() == 1 && m.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, lc.count())
}

func TestMemorySchedulerRetries(t *testing.T) {
	lc := &fakeLifecycle{fail: 2}
	m := newMemory(t, lc, config.SchedulerConfig{MaxRetry: 3})

	require.NoError(t, m.Enqueue(context.Background(), NewGoLiveJob(1, time.Now())))
	require.Eventually(t, func() bool { return lc.count() == 3 && m.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemorySchedulerGivesUp(t *testing.T) {
	lc := &fakeLifecycle{fail: 100}
	m := newMemory(t, lc, config.SchedulerConfig{MaxRetry: 1})

	require.NoError(t, m.Enqueue(context.Background(), NewGoLiveJob(1, time.Now())))
	require.Eventually(t, func() bool { return m.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, lc.count())
}

func TestMemorySchedulerBoundsConcurrencyPerKind(t *testing.T) {
	lc := &fakeLifecycle{block: make(chan struct{})}
	m := newMemory(t, lc, config.SchedulerConfig{Concurrency: config.Concurrency{AutoSubmit: 2}})
	ctx := context.Background()

	for i := uint(1); i <= 6; i++ {
		require.NoError(t, m.Enqueue(ctx, NewAutoSubmitJob(i, time.Now())))
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&lc.live) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&lc.peak))

	close(lc.block)
	require.Eventually(t, func() bool { return lc.count() == 6 }, time.Second, 5*time.Millisecond)
}

func TestMemorySchedulerClosed(t *testing.T) {
	m := NewMemoryScheduler(config.SchedulerConfig{})
	require.NoError(t, m.Start(NewDispatcher(&fakeLifecycle{}, 0)))
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Enqueue(context.Background(), NewGoLiveJob(1, time.Now())), ErrSchedulerClosed)
	assert.NoError(t, m.Close())
}
