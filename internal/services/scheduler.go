package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Indexer runs one indexing pass. *IndexerService implements it.
type Indexer interface {
	IndexRepositories(ctx context.Context) *IndexStats
}

// Scheduler fires an indexing run at minute 0 of every hour and guarantees at
// most one run at a time, whether started by the clock or by RunOnce.
type Scheduler struct {
	indexer Indexer
	logger  *logrus.Logger
	running atomic.Bool
	wg      sync.WaitGroup
	now     func() time.Time

	mu      sync.Mutex // orders wg.Add in Trigger against shutdown
	stopped bool
}

func NewScheduler(indexer Indexer, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{indexer: indexer, logger: logger, now: time.Now}
}

// Start blocks until ctx is cancelled, then waits for an in-flight run.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting indexing scheduler")
	defer s.stop()

	for {
		wait := nextHour(s.now()).Sub(s.now())
		timer := time.NewTimer(wait)
		s.logger.Debugf("Next scheduled indexing run in %s", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Indexing scheduler stopped")
			return
		case <-timer.C:
			s.Trigger(ctx)
		}
	}
}

// stop refuses further triggers and waits for the in-flight run.
func (s *Scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Trigger starts a run in the background and reports whether it started.
// It returns false once Start is shutting down.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Warn("Indexing scheduler stopped, ignoring trigger")
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Indexing run already in progress, skipping")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.indexer.IndexRepositories(ctx)
	}()
	return true
}

// RunOnce runs synchronously. It returns false without running when another
// run is in progress.
func (s *Scheduler) RunOnce(ctx context.Context) (*IndexStats, bool) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, false
	}
	defer s.running.Store(false)
	return s.indexer.IndexRepositories(ctx), true
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wait blocks until background runs started by Trigger finish.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func nextHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}
