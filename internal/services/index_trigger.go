package services

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTriggerCooldown is the minimum gap between manual index triggers.
const DefaultTriggerCooldown = time.Hour

// IndexTrigger enforces the cooldown between manually requested runs.
type IndexTrigger struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
}

func NewIndexTrigger(cooldown time.Duration) *IndexTrigger {
	if cooldown <= 0 {
		cooldown = DefaultTriggerCooldown
	}
	return &IndexTrigger{cooldown: cooldown}
}

// TryStart records now as the last trigger and returns true, or returns the
// remaining wait when the previous trigger is inside the cooldown window.
func (t *IndexTrigger) TryStart(now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() {
		if elapsed := now.Sub(t.last); elapsed < t.cooldown {
			return t.cooldown - elapsed, false
		}
	}
	t.last = now
	return 0, true
}

// Reset forgets the last trigger.
func (t *IndexTrigger) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}

// FormatWait renders a wait as "Xm Ys", rounding partial seconds down.
func FormatWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
