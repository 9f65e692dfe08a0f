package txlog

import (
	"context"
	"time"

	"github.com/maxpark/accessd/internal/logger"
)

// MonitorConfig configures the storage monitor.
type MonitorConfig struct {
	// Cap is the storage budget in bytes for the transactions
	// directory. Eviction triggers when total size exceeds it.
	Cap int64

	// Fraction of the total size to free per eviction pass.
	Fraction float64

	// Interval between size checks.
	Interval time.Duration
}

// Monitor periodically checks the transaction directory size and
// evicts the oldest day files when it exceeds the cap.
type Monitor struct {
	log *Log
	cfg MonitorConfig
}

// NewMonitor creates a storage monitor for log.
func NewMonitor(log *Log, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Fraction <= 0 || cfg.Fraction > 1 {
		cfg.Fraction = 0.5
	}
	return &Monitor{log: log, cfg: cfg}
}

// Run blocks until ctx is cancelled, checking the directory size every
// interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce(time.Now())
		}
	}
}

func (m *Monitor) checkOnce(now time.Time) {
	size, err := m.log.Size()
	if err != nil {
		logger.Error("storage check failed", logger.Err(err))
		return
	}
	if m.cfg.Cap <= 0 || size <= m.cfg.Cap {
		return
	}

	logger.Warn("transaction storage over cap, evicting oldest day files",
		logger.KeySize, size, "cap", m.cfg.Cap)

	freed, removed := m.log.Evict(m.cfg.Fraction, now)
	logger.Info("storage eviction complete",
		"freed", freed, logger.KeyCount, removed)
}
