package access

import (
	"time"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/txlog"
)

// Enqueuer is the uploader's intake.
type Enqueuer interface {
	Enqueue(tx txlog.Transaction)
}

// Fanout distributes a finalized transaction to every consumer: the
// durable day file first, then the stats rollup, the in-memory ring
// and the upload queue.
type Fanout struct {
	Log      *txlog.Log
	Stats    *txlog.Stats
	Ring     *txlog.Ring
	Uploader Enqueuer
}

// Record persists tx locally and queues it for upload. Local append
// failure is logged but still feeds the ring and the uploader; the
// transaction should reach the remote even when the disk is sick.
func (f *Fanout) Record(tx txlog.Transaction) {
	if err := f.Log.Append(tx); err != nil {
		logger.Error("failed to append transaction", logger.KeyCard, tx.Card, logger.Err(err))
	}
	if err := f.Stats.Record(tx.Status, timeOf(tx)); err != nil {
		logger.Warn("failed to update daily stats", logger.Err(err))
	}
	f.Ring.Add(tx)
	if f.Uploader != nil {
		f.Uploader.Enqueue(tx)
	}
}

func timeOf(tx txlog.Transaction) time.Time {
	return time.Unix(tx.Timestamp, 0).UTC()
}
