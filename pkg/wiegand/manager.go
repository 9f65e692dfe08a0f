package wiegand

import (
	"fmt"
	"sync"
	"time"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/board"
	"github.com/maxpark/accessd/pkg/runtimeconf"
)

// restartPause gives the GPIO driver time to release edge interrupts
// between teardown and re-init.
const restartPause = 100 * time.Millisecond

// ReaderPins names the two data lines of one reader.
type ReaderPins struct {
	D0 string
	D1 string
}

// ManagerConfig configures the decoder set.
type ManagerConfig struct {
	// Readers lists the wired readers in order; reader numbers are
	// 1-based positions in this slice.
	Readers []ReaderPins

	// OpenPin resolves a pin name. Defaults to board.InputPin.
	OpenPin func(name string) (board.EdgePin, error)

	Handler Handler
	Invalid InvalidFunc
}

// Manager owns one decoder per configured reader and supports full
// restart when decoder-affecting runtime settings change.
type Manager struct {
	mu       sync.Mutex
	cfg      ManagerConfig
	decoders []*Decoder
}

// NewManager creates a stopped manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.Readers) == 0 {
		return nil, fmt.Errorf("at least one reader must be configured")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler must be provided")
	}
	if cfg.OpenPin == nil {
		cfg.OpenPin = board.InputPin
	}
	return &Manager{cfg: cfg}, nil
}

// Start builds and starts one decoder per reader using the widths and
// timeout from rc.
func (m *Manager) Start(rc runtimeconf.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(rc)
}

func (m *Manager) startLocked(rc runtimeconf.Config) error {
	if len(m.decoders) > 0 {
		return fmt.Errorf("decoders already running")
	}

	timeout := time.Duration(rc.WiegandTimeoutMS) * time.Millisecond
	for i, pins := range m.cfg.Readers {
		reader := i + 1

		d0, err := m.cfg.OpenPin(pins.D0)
		if err != nil {
			m.stopLocked()
			return fmt.Errorf("reader %d: %w", reader, err)
		}
		d1, err := m.cfg.OpenPin(pins.D1)
		if err != nil {
			m.stopLocked()
			return fmt.Errorf("reader %d: %w", reader, err)
		}

		bits := rc.WiegandBits[fmt.Sprintf("reader_%d", reader)]
		if bits == 0 {
			bits = 26
		}

		dec, err := NewDecoder(Config{
			Reader:  reader,
			D0:      d0,
			D1:      d1,
			Bits:    bits,
			Timeout: timeout,
			Handler: m.cfg.Handler,
			Invalid: m.cfg.Invalid,
		})
		if err != nil {
			m.stopLocked()
			return fmt.Errorf("reader %d: %w", reader, err)
		}
		if err := dec.Start(); err != nil {
			m.stopLocked()
			return fmt.Errorf("reader %d: %w", reader, err)
		}
		m.decoders = append(m.decoders, dec)
	}

	logger.Info("wiegand decoders running", logger.KeyCount, len(m.decoders))
	return nil
}

// Stop tears down all decoders.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	for _, d := range m.decoders {
		d.Stop()
	}
	m.decoders = nil
}

// Restart rebuilds the decoders with new runtime settings. Used as
// the runtime config store's restart hook.
func (m *Manager) Restart(rc runtimeconf.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Info("restarting wiegand decoders")
	m.stopLocked()
	time.Sleep(restartPause)
	return m.startLocked(rc)
}

// Running reports whether the decoders are active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decoders) > 0
}

// ReaderCount returns the number of configured readers.
func (m *Manager) ReaderCount() int {
	return len(m.cfg.Readers)
}
