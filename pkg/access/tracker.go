package access

import (
	"sync"
	"time"
)

// EntryExitTracker gates recording for entry/exit mode: the first scan
// of an unseen card arms the cycle without recording, and every later
// scan at least minGap after the previous recorded one is recorded.
// Scans inside the gap are treated as the same presentation bouncing
// and are absorbed.
type EntryExitTracker struct {
	mu      sync.Mutex
	enabled bool
	minGap  time.Duration
	state   map[string]time.Time // card -> last qualifying scan
	now     func() time.Time
}

// NewEntryExitTracker creates a tracker. Disabled trackers record
// every scan.
func NewEntryExitTracker(enabled bool, minGap time.Duration) *EntryExitTracker {
	return &EntryExitTracker{
		enabled: enabled,
		minGap:  minGap,
		state:   make(map[string]time.Time),
		now:     time.Now,
	}
}

// Configure updates the tracker from runtime config. Disabling clears
// all per-card state.
func (t *EntryExitTracker) Configure(enabled bool, minGap time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled && !enabled {
		t.state = make(map[string]time.Time)
	}
	t.enabled = enabled
	t.minGap = minGap
}

// ShouldRecord reports whether this scan of card should produce a
// transaction.
func (t *EntryExitTracker) ShouldRecord(card string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return true
	}

	now := t.now()
	last, seen := t.state[card]
	if !seen {
		t.state[card] = now
		return false
	}

	if now.Sub(last) < t.minGap {
		// Same presentation bouncing; keeps the armed timestamp.
		return false
	}

	t.state[card] = now
	return true
}
