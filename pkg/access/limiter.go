// Package access implements the decision pipeline between a decoded
// card frame and a recorded transaction.
package access

import (
	"sync"
	"time"
)

// ScanLimiter drops repeat scans of the same card inside a rolling
// window, so a card held against the reader produces one transaction
// instead of a burst.
type ScanLimiter struct {
	mu    sync.Mutex
	delay time.Duration
	last  map[string]time.Time
	now   func() time.Time
}

// NewScanLimiter creates a limiter with the given dedup window.
func NewScanLimiter(delay time.Duration) *ScanLimiter {
	return &ScanLimiter{
		delay: delay,
		last:  make(map[string]time.Time),
		now:   time.Now,
	}
}

// Allow reports whether a scan of card should be processed, recording
// the scan time when it is.
func (l *ScanLimiter) Allow(card string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[card]; ok && now.Sub(last) < l.delay {
		return false
	}
	l.last[card] = now

	// Opportunistic prune keeps the map bounded without a sweeper.
	if len(l.last) > 1024 {
		for c, t := range l.last {
			if now.Sub(t) >= l.delay {
				delete(l.last, c)
			}
		}
	}
	return true
}

// SetDelay changes the dedup window for subsequent scans.
func (l *ScanLimiter) SetDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = delay
}
