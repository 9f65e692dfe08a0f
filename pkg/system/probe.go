// Package system wraps the host-level concerns of the appliance:
// internet reachability, CPU temperature, and the system clock.
package system

import (
	"net"
	"sync"
	"time"

	"github.com/maxpark/accessd/internal/logger"
)

const (
	// DefaultProbeTarget is a well-known public resolver; a TCP
	// connect tells us the uplink works without needing DNS.
	DefaultProbeTarget = "8.8.8.8:53"

	defaultProbeTimeout = 3 * time.Second
	defaultProbeTTL     = 30 * time.Second
)

// Probe checks internet reachability with a short TCP dial and caches
// the verdict so hot paths (upload scheduling, status endpoint) never
// block on the network.
type Probe struct {
	mu      sync.Mutex
	target  string
	timeout time.Duration
	ttl     time.Duration

	checked time.Time
	online  bool

	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
	now  func() time.Time
}

// NewProbe creates a probe against target, or DefaultProbeTarget when
// empty.
func NewProbe(target string) *Probe {
	if target == "" {
		target = DefaultProbeTarget
	}
	return &Probe{
		target:  target,
		timeout: defaultProbeTimeout,
		ttl:     defaultProbeTTL,
		dial:    net.DialTimeout,
		now:     time.Now,
	}
}

// Online returns the cached verdict, refreshing it when stale.
func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.checked.IsZero() && p.now().Sub(p.checked) < p.ttl {
		return p.online
	}
	return p.refreshLocked()
}

// Refresh forces a new check and returns the verdict.
func (p *Probe) Refresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked()
}

func (p *Probe) refreshLocked() bool {
	conn, err := p.dial("tcp", p.target, p.timeout)
	was := p.online
	p.online = err == nil
	p.checked = p.now()
	if conn != nil {
		conn.Close()
	}

	if p.online != was {
		logger.Info("internet reachability changed", logger.KeyOnline, p.online)
	}
	return p.online
}
