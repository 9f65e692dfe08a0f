package upload

import (
	"context"
	"time"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/metrics"
	"github.com/maxpark/accessd/pkg/txlog"
)

// Remote is the destination store. Implemented by pkg/remote; faked in
// tests.
type Remote interface {
	Insert(ctx context.Context, tx txlog.Transaction, entityID string) error
}

// OnlineChecker reports internet reachability. Implemented by
// system.Probe.
type OnlineChecker interface {
	Online() bool
}

const (
	// DefaultQueueSize bounds the in-memory upload queue. Entries in
	// the queue are lost on crash; the day file already has them.
	DefaultQueueSize = 256

	defaultUploadTimeout = 10 * time.Second
)

// Uploader drains the live upload queue. Transactions that cannot be
// delivered (offline, remote error, queue overflow) go to the cache.
type Uploader struct {
	queue    chan txlog.Transaction
	remote   Remote
	cache    *Cache
	probe    OnlineChecker
	entityID func() string
	timeout  time.Duration
	metrics  *metrics.AccessMetrics
}

// NewUploader wires the live upload path. entityID is read per upload
// so runtime config changes take effect immediately.
func NewUploader(remote Remote, cache *Cache, probe OnlineChecker, entityID func() string, m *metrics.AccessMetrics) *Uploader {
	return &Uploader{
		queue:    make(chan txlog.Transaction, DefaultQueueSize),
		remote:   remote,
		cache:    cache,
		probe:    probe,
		entityID: entityID,
		timeout:  defaultUploadTimeout,
		metrics:  m,
	}
}

// Enqueue hands tx to the uploader without blocking the scan path.
// When the queue is full the transaction goes straight to the cache.
func (u *Uploader) Enqueue(tx txlog.Transaction) {
	select {
	case u.queue <- tx:
	default:
		logger.Warn("upload queue full, caching transaction", logger.KeyCard, tx.Card)
		u.toCache(tx)
	}
}

// Run consumes the queue until ctx is cancelled.
func (u *Uploader) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-u.queue:
			u.deliver(ctx, tx)
		}
	}
}

func (u *Uploader) deliver(ctx context.Context, tx txlog.Transaction) {
	if u.remote == nil || !u.probe.Online() {
		u.toCache(tx)
		return
	}

	uctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	if err := u.remote.Insert(uctx, tx, u.entityID()); err != nil {
		logger.Warn("transaction upload failed, caching",
			logger.KeyCard, tx.Card, logger.Err(err))
		u.metrics.RecordUpload("failed")
		u.toCache(tx)
		return
	}

	u.metrics.RecordUpload("ok")
	logger.Debug("transaction uploaded", logger.KeyCard, tx.Card)
}

func (u *Uploader) toCache(tx txlog.Transaction) {
	if err := u.cache.Append(tx); err != nil {
		// Out of options: the day file still has the transaction.
		logger.Error("failed to cache transaction", logger.KeyCard, tx.Card, logger.Err(err))
		return
	}
	u.metrics.RecordUpload("cached")
	u.metrics.SetCachePending(u.cache.Len())
}
