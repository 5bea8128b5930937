// Package metrics keeps process-local counters exposed on the metrics endpoint.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop counts an HTTP 429 issued by the rate limit middleware.
// Use prefix "global" for the global limiter.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the drop counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}

type indexStats struct {
	mu          sync.Mutex
	runs        uint64
	rateLimited uint64
	errors      uint64
	automations uint64
	lastRun     time.Time
}

var idx indexStats

// ObserveIndexRun records the outcome of one indexing run.
func ObserveIndexRun(rateLimited bool, errors, automations int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.runs++
	if rateLimited {
		idx.rateLimited++
	}
	if errors > 0 {
		idx.errors += uint64(errors)
	}
	if automations > 0 {
		idx.automations += uint64(automations)
	}
	idx.lastRun = time.Now().UTC()
}

// IndexSnapshot is a copy of the indexing counters.
type IndexSnapshot struct {
	Runs               uint64     `json:"runs"`
	RateLimitedRuns    uint64     `json:"rate_limited_runs"`
	Errors             uint64     `json:"errors"`
	AutomationsIndexed uint64     `json:"automations_indexed"`
	LastRunAt          *time.Time `json:"last_run_at"`
}

func IndexRunSnapshot() IndexSnapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	s := IndexSnapshot{
		Runs:               idx.runs,
		RateLimitedRuns:    idx.rateLimited,
		Errors:             idx.errors,
		AutomationsIndexed: idx.automations,
	}
	if !idx.lastRun.IsZero() {
		t := idx.lastRun
		s.LastRunAt = &t
	}
	return s
}
