// Package runtimeconf manages the runtime-tunable half of the daemon
// configuration: the config.json file under the base directory that
// admins edit through the API without restarting the process.
package runtimeconf

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maxpark/accessd/internal/atomicfile"
	"github.com/maxpark/accessd/internal/logger"
)

// Config is the runtime-tunable configuration persisted as
// config.json.
type Config struct {
	// EntityID tags every uploaded transaction with the installation
	// it came from.
	EntityID string `json:"entity_id" validate:"required"`

	// WiegandBits maps reader keys (reader_1, reader_2, ...) to frame
	// widths. Only 26 and 34 bit frames are supported.
	WiegandBits map[string]int `json:"wiegand_bits" validate:"required,dive,oneof=26 34"`

	// WiegandTimeoutMS is the inter-bit gap, in milliseconds, after
	// which a partial frame is discarded.
	WiegandTimeoutMS int `json:"wiegand_timeout_ms" validate:"min=10,max=100"`

	// ScanDelaySeconds is the per-card dedup window: repeat scans of
	// the same card inside the window are ignored.
	ScanDelaySeconds int `json:"scan_delay_seconds" validate:"min=1,max=300"`

	// EntryExit configures alternating entry/exit recording.
	EntryExit EntryExitConfig `json:"entry_exit_tracking"`

	// BasicAuthEnabled allows HTTP Basic auth as an alternative to
	// session tokens on the control plane.
	BasicAuthEnabled bool `json:"basic_auth_enabled"`
}

// EntryExitConfig controls the alternating entry/exit gate.
type EntryExitConfig struct {
	Enabled       bool `json:"enabled"`
	MinGapSeconds int  `json:"min_gap_seconds" validate:"min=1,max=300"`
}

// clone returns a deep copy so callers can mutate their snapshot
// freely.
func (c Config) clone() Config {
	out := c
	out.WiegandBits = make(map[string]int, len(c.WiegandBits))
	for k, v := range c.WiegandBits {
		out.WiegandBits[k] = v
	}
	return out
}

// decoderAffecting reports whether switching from c to next requires
// a Wiegand decoder restart.
func (c Config) decoderAffecting(next Config) bool {
	if c.WiegandTimeoutMS != next.WiegandTimeoutMS {
		return true
	}
	if len(c.WiegandBits) != len(next.WiegandBits) {
		return true
	}
	for k, v := range c.WiegandBits {
		if next.WiegandBits[k] != v {
			return true
		}
	}
	return false
}

// RestartFunc is invoked after a persisted change to decoder-affecting
// settings. It receives the new configuration.
type RestartFunc func(Config) error

// Store serializes access to the runtime configuration and its disk
// backing.
type Store struct {
	mu       sync.RWMutex
	path     string
	cfg      Config
	validate *validator.Validate
	restart  RestartFunc
}

// Load reads config.json from path, creating it from defaults when
// missing. A corrupt or invalid file fails startup rather than running
// with half-applied settings.
func Load(path string, defaults Config) (*Store, error) {
	s := &Store{
		path:     path,
		cfg:      defaults.clone(),
		validate: validator.New(),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := atomicfile.WriteJSON(path, s.cfg, 0o644); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
		logger.Info("created runtime config from defaults", logger.KeyFile, path)
	case err != nil:
		return nil, fmt.Errorf("read runtime config: %w", err)
	default:
		if err := json.Unmarshal(data, &s.cfg); err != nil {
			return nil, fmt.Errorf("parse runtime config: %w", err)
		}
	}

	if err := s.validate.Struct(s.cfg); err != nil {
		return nil, fmt.Errorf("invalid runtime config: %w", err)
	}
	return s, nil
}

// SetRestartHook registers the decoder restart callback. Must be
// called before the API starts serving updates.
func (s *Store) SetRestartHook(fn RestartFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restart = fn
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// Update validates next, persists it atomically, swaps it in, and
// restarts the decoders when a decoder-affecting setting changed. The
// write lock is held across persist and restart, so concurrent updates
// cannot interleave their restarts.
//
// Returns:
//   - restartErr: non-nil when the new config was applied and
//     persisted but the decoder restart failed. The API surfaces this
//     as a warning rather than an error.
//   - err: non-nil when the update was rejected and nothing changed.
func (s *Store) Update(next Config) (restartErr error, err error) {
	if err := s.validate.Struct(next); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	needsRestart := s.cfg.decoderAffecting(next)

	if err := atomicfile.WriteJSON(s.path, next, 0o644); err != nil {
		return nil, fmt.Errorf("persist config: %w", err)
	}
	s.cfg = next.clone()

	logger.Info("runtime config updated", "decoder_restart", needsRestart)

	if needsRestart && s.restart != nil {
		if err := s.restart(next.clone()); err != nil {
			logger.Error("decoder restart after config update failed", logger.Err(err))
			return err, nil
		}
	}
	return nil, nil
}
