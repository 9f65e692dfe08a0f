package upload

import (
	"context"
	"time"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/metrics"
	"github.com/maxpark/accessd/pkg/txlog"
)

// DrainerConfig sets the retry schedule for the failed-upload cache.
type DrainerConfig struct {
	// InitialDelay before the first pass, letting the daemon settle
	// after boot.
	InitialDelay time.Duration

	// OnlineInterval between passes while the uplink is up.
	OnlineInterval time.Duration

	// OfflineInterval between passes while the uplink is down.
	OfflineInterval time.Duration

	// ItemDelay paces consecutive uploads inside one pass so a large
	// backlog does not hammer the remote.
	ItemDelay time.Duration
}

func (c *DrainerConfig) applyDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Minute
	}
	if c.OnlineInterval <= 0 {
		c.OnlineInterval = 5 * time.Minute
	}
	if c.OfflineInterval <= 0 {
		c.OfflineInterval = 10 * time.Minute
	}
	if c.ItemDelay <= 0 {
		c.ItemDelay = 500 * time.Millisecond
	}
}

// Drainer retries the failed-upload cache in the background.
type Drainer struct {
	cfg      DrainerConfig
	cache    *Cache
	remote   Remote
	probe    OnlineChecker
	entityID func() string
	timeout  time.Duration
	metrics  *metrics.AccessMetrics
}

// NewDrainer wires the cache retry loop.
func NewDrainer(cfg DrainerConfig, remote Remote, cache *Cache, probe OnlineChecker, entityID func() string, m *metrics.AccessMetrics) *Drainer {
	cfg.applyDefaults()
	return &Drainer{
		cfg:      cfg,
		cache:    cache,
		remote:   remote,
		probe:    probe,
		entityID: entityID,
		timeout:  defaultUploadTimeout,
		metrics:  m,
	}
}

// Run retries cached transactions until ctx is cancelled. The first
// pass waits InitialDelay; later passes follow the online or offline
// interval depending on reachability.
func (d *Drainer) Run(ctx context.Context) {
	timer := time.NewTimer(d.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		d.DrainOnce(ctx)

		interval := d.cfg.OnlineInterval
		if !d.probe.Online() {
			interval = d.cfg.OfflineInterval
		}
		timer.Reset(interval)
	}
}

// DrainOnce attempts one pass over the cache. Uploaded transactions
// are removed; still-failing ones are kept, in order. Returns how
// many were uploaded and how many remain.
func (d *Drainer) DrainOnce(ctx context.Context) (uploaded, remaining int) {
	txs, err := d.cache.Load()
	if err != nil {
		logger.Error("failed to load upload cache", logger.Err(err))
		return 0, 0
	}
	if len(txs) == 0 {
		d.metrics.SetCachePending(0)
		return 0, 0
	}

	if d.remote == nil || !d.probe.Online() {
		logger.Debug("skipping cache drain while offline", logger.KeyPending, len(txs))
		return 0, len(txs)
	}

	logger.Info("draining failed-upload cache", logger.KeyPending, len(txs))

	var stillFailing []txlog.Transaction
	for i := 0; i < len(txs); i++ {
		if ctx.Err() != nil {
			stillFailing = append(stillFailing, txs[i:]...)
			break
		}
		tx := txs[i]

		uctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.remote.Insert(uctx, tx, d.entityID())
		cancel()

		if err != nil {
			logger.Warn("cached transaction still failing",
				logger.KeyCard, tx.Card, logger.Err(err))
			d.metrics.RecordUpload("failed")
			stillFailing = append(stillFailing, tx)
		} else {
			uploaded++
			d.metrics.RecordUpload("ok")
		}

		if i < len(txs)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(d.cfg.ItemDelay):
			}
		}
	}

	// Commit against the loaded prefix only: the uploader may have
	// appended new failures while this pass was running, and those
	// must survive for the next pass.
	if err := d.cache.CommitDrain(len(txs), stillFailing); err != nil {
		logger.Error("failed to rewrite upload cache", logger.Err(err))
	}
	remaining = d.cache.Len()
	d.metrics.SetCachePending(remaining)

	logger.Info("cache drain pass complete",
		logger.KeyUploaded, uploaded, logger.KeyPending, remaining)
	return uploaded, remaining
}
