package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingIndexer struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func newBlockingIndexer() *blockingIndexer {
	return &blockingIndexer{release: make(chan struct{}), started: make(chan struct{}, 8)}
}

func (b *blockingIndexer) IndexRepositories(ctx context.Context) *IndexStats {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	return &IndexStats{RunID: "run", AutomationsIndexed: 3}
}

func newTestScheduler(idx Indexer) *Scheduler {
	logger, _ := logtest.NewNullLogger()
	return NewScheduler(idx, logger)
}

func TestScheduler_RunOnce(t *testing.T) {
	idx := newBlockingIndexer()
	close(idx.release)
	s := newTestScheduler(idx)

	stats, ok := s.RunOnce(context.Background())
	require.True(t, ok)
	assert.Equal(t, 3, stats.AutomationsIndexed)
	assert.False(t, s.Running())
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	idx := newBlockingIndexer()
	s := newTestScheduler(idx)

	require.True(t, s.Trigger(context.Background()))
	<-idx.started
	assert.True(t, s.Running())

	assert.False(t, s.Trigger(context.Background()))
	stats, ok := s.RunOnce(context.Background())
	assert.False(t, ok)
	assert.Nil(t, stats)

	close(idx.release)
	s.Wait()
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), idx.calls.Load())
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	idx := newBlockingIndexer()
	close(idx.release)
	s := newTestScheduler(idx)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, idx.calls.Load())
}

func TestScheduler_TriggerAfterStopIsRefused(t *testing.T) {
	idx := newBlockingIndexer()
	close(idx.release)
	s := newTestScheduler(idx)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)

	assert.False(t, s.Trigger(context.Background()))
	s.Wait()
	assert.Zero(t, idx.calls.Load())
	assert.False(t, s.Running())
}

func TestScheduler_StopWaitsForTriggeredRun(t *testing.T) {
	idx := newBlockingIndexer()
	s := newTestScheduler(idx)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC) }

	require.True(t, s.Trigger(context.Background()))
	<-idx.started

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
		t.Fatal("Start returned before the triggered run finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(idx.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.Trigger(context.Background()))
	assert.Equal(t, int32(1), idx.calls.Load())
}

func TestScheduler_StartRunsOnTheHour(t *testing.T) {
	idx := newBlockingIndexer()
	close(idx.release)
	s := newTestScheduler(idx)
	// Just before the hour so the first timer fires almost immediately.
	top := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		if idx.calls.Load() == 0 {
			return top.Add(-20 * time.Millisecond)
		}
		return top.Add(time.Minute)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	select {
	case <-idx.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run did not start")
	}
}

func TestNextHour(t *testing.T) {
	tests := []struct {
		in, want time.Time
	}{
		{time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC), time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
		{time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
		{time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextHour(tt.in))
	}
}

func TestIndexTrigger_Cooldown(t *testing.T) {
	trig := NewIndexTrigger(time.Hour)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	wait, ok := trig.TryStart(start)
	assert.True(t, ok)
	assert.Zero(t, wait)

	wait, ok = trig.TryStart(start.Add(time.Second))
	assert.False(t, ok)
	assert.Equal(t, 59*time.Minute+59*time.Second, wait)
	assert.Equal(t, "59m 59s", FormatWait(wait))

	_, ok = trig.TryStart(start.Add(time.Hour))
	assert.True(t, ok, "cooldown elapsed")

	trig.Reset()
	_, ok = trig.TryStart(start.Add(time.Hour + time.Second))
	assert.True(t, ok)
}

func TestIndexTrigger_DefaultCooldown(t *testing.T) {
	trig := NewIndexTrigger(0)
	now := time.Now()
	_, ok := trig.TryStart(now)
	require.True(t, ok)
	wait, ok := trig.TryStart(now)
	assert.False(t, ok)
	assert.Equal(t, DefaultTriggerCooldown, wait)
}

func TestFormatWait(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0m 0s"},
		{-time.Second, "0m 0s"},
		{90*time.Second + 900*time.Millisecond, "1m 30s"},
		{2 * time.Hour, "120m 0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatWait(tt.in))
	}
}
