package alerting

import (
	"strings"
	"sync"
	"time"
)

// CooldownTracker remembers when each label last raised an alert
type CooldownTracker struct {
	mu       sync.RWMutex
	lastSent map[string]time.Time
}

// NewCooldownTracker creates an empty tracker; every label may fire immediately
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{lastSent: make(map[string]time.Time)}
}

// CanFire reports whether more than cooldown has elapsed since the label last fired
func (t *CooldownTracker) CanFire(label string, now time.Time, cooldown time.Duration) bool {
	t.mu.RLock()
	last, ok := t.lastSent[strings.ToLower(label)]
	t.mu.RUnlock()
	if !ok {
		return true
	}
	return now.Sub(last) > cooldown
}

// RecordFired stores now as the label's last alert time
func (t *CooldownTracker) RecordFired(label string, now time.Time) {
	t.mu.Lock()
	t.lastSent[strings.ToLower(label)] = now
	t.mu.Unlock()
}

// LastFired returns the last alert time for a label
func (t *CooldownTracker) LastFired(label string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.lastSent[strings.ToLower(label)]
	return last, ok
}
