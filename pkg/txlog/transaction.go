// Package txlog implements the durable, offline-first transaction log.
//
// Every access decision is appended as one JSON line to a per-day file
// under the transactions directory. The package also maintains the
// daily stats rollup, an in-memory ring of recent transactions for fast
// API reads, and a storage monitor that evicts the oldest day files
// when the directory outgrows its cap.
package txlog

// Access decision outcomes. These strings are part of the on-disk and
// remote document format and must not change.
const (
	StatusGranted = "Access Granted"
	StatusDenied  = "Access Denied"
	StatusBlocked = "Blocked"
)

// Transaction is a single access decision record.
//
// The JSON field set is the wire format shared by the day files, the
// failed-upload cache, the HTTP API and the remote store (which adds
// entity_id on top).
type Transaction struct {
	Name      string `json:"name"`
	Card      string `json:"card"`
	Reader    int    `json:"reader"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"` // Unix seconds, UTC
}
