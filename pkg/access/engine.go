package access

import (
	"time"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/identity"
	"github.com/maxpark/accessd/pkg/metrics"
	"github.com/maxpark/accessd/pkg/txlog"
)

// UnknownName is recorded for cards with no enrolled user.
const UnknownName = "Unknown"

// BlockedName is recorded for blocked cards regardless of enrollment.
const BlockedName = "Blocked"

// RelayActuator is the slice of the relay driver the engine needs.
type RelayActuator interface {
	AutoPulse(n int) error
}

// Recorder receives finalized transactions. Implemented by the txlog
// fan-out in the composition root.
type Recorder interface {
	Record(tx txlog.Transaction)
}

// Engine applies the access policy to decoded card scans.
//
// Pipeline order: dedup gate, user lookup, blocked-first decision
// (with relay actuation on grant), entry/exit gate, privacy gate,
// record.
type Engine struct {
	users   *identity.Store
	relays  RelayActuator
	rec     Recorder
	limiter *ScanLimiter
	tracker *EntryExitTracker
	metrics *metrics.AccessMetrics
	now     func() time.Time
}

// NewEngine wires the policy engine.
func NewEngine(users *identity.Store, relays RelayActuator, rec Recorder,
	limiter *ScanLimiter, tracker *EntryExitTracker, m *metrics.AccessMetrics) *Engine {
	return &Engine{
		users:   users,
		relays:  relays,
		rec:     rec,
		limiter: limiter,
		tracker: tracker,
		metrics: m,
		now:     time.Now,
	}
}

// HandleScan processes one decoded card from reader. Reader N
// actuates relay N on grant.
func (e *Engine) HandleScan(card string, reader int) {
	if !e.limiter.Allow(card) {
		logger.Debug("duplicate scan ignored", logger.KeyCard, card, logger.KeyReader, reader)
		return
	}

	user, enrolled := e.users.Get(card)

	// Blocked wins over everything, enrolled or not.
	var status string
	switch {
	case e.users.IsBlocked(card):
		status = txlog.StatusBlocked
	case enrolled:
		status = txlog.StatusGranted
	default:
		status = txlog.StatusDenied
	}

	name := UnknownName
	switch {
	case status == txlog.StatusBlocked:
		// Blocked transactions carry the fixed name, never the
		// enrolled identity.
		name = BlockedName
	case enrolled:
		name = user.Name
	}

	logger.Info("access decision",
		logger.KeyCard, card,
		logger.KeyReader, reader,
		logger.KeyUserName, name,
		logger.KeyStatus, status)
	e.metrics.RecordScan(status, reader)

	if status == txlog.StatusGranted {
		if err := e.relays.AutoPulse(reader); err != nil {
			logger.Error("relay actuation failed",
				logger.KeyRelay, reader, logger.Err(err))
		}
	}

	if !e.tracker.ShouldRecord(card) {
		logger.Debug("scan absorbed by entry/exit gate", logger.KeyCard, card)
		return
	}

	if enrolled && user.PrivacyProtected {
		logger.Debug("transaction suppressed for privacy-protected user",
			logger.KeyCard, card)
		return
	}

	e.rec.Record(txlog.Transaction{
		Name:      name,
		Card:      card,
		Reader:    reader,
		Status:    status,
		Timestamp: e.now().Unix(),
	})
}
