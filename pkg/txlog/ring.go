package txlog

import "sync"

// DefaultRingCapacity matches the dashboard's default page size.
const DefaultRingCapacity = 200

// Ring is a fixed-capacity buffer of the most recent transactions. It
// serves the fast path of transaction reads so the common dashboard
// poll never touches disk.
type Ring struct {
	mu  sync.RWMutex
	buf []Transaction
	cap int
}

// NewRing creates a ring holding up to capacity transactions.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{cap: capacity}
}

// Add appends tx, dropping the oldest entry when full.
func (r *Ring) Add(tx Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, tx)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

// Snapshot returns up to limit transactions, newest first.
func (r *Ring) Snapshot(limit int) []Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.buf)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Transaction, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[len(r.buf)-1-i]
	}
	return out
}

// Len returns the number of buffered transactions.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buf)
}
