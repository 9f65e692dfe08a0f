// Package relay drives the door relays.
//
// Each relay is an independent state machine over {idle, held_open,
// held_closed}. Automatic pulses from card scans are suppressed while
// a hold is active; only an explicit command releases a hold. Relays
// are wired active-low by default: driving the pin low energizes the
// relay (door released), high de-energizes it.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/board"
)

// State of one relay.
type State int

const (
	Idle State = iota
	HeldOpen
	HeldClosed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HeldOpen:
		return "held_open"
	case HeldClosed:
		return "held_closed"
	default:
		return "unknown"
	}
}

// DefaultPulse is how long an access-granted pulse keeps the relay
// energized.
const DefaultPulse = time.Second

// ErrUnknownRelay is returned for out-of-range relay numbers.
var ErrUnknownRelay = fmt.Errorf("unknown relay")

// Config configures the driver.
type Config struct {
	// Pins lists the relay output pins; relay numbers are 1-based
	// positions in this slice.
	Pins []board.OutPin

	// ActiveLow inverts the drive level. Default wiring energizes on
	// low.
	ActiveLow bool

	// PulseDuration for automatic and explicit pulses. DefaultPulse
	// when zero.
	PulseDuration time.Duration

	// OnOperate is notified of every relay operation (for metrics).
	OnOperate func(relay int, action string)
}

type relayState struct {
	mu      sync.Mutex
	pin     board.OutPin
	state   State
	pulseID uint64 // invalidates in-flight pulse releases
}

// Driver owns all relays and serializes hardware writes through one
// process-wide lock, matching the single GPIO controller underneath.
type Driver struct {
	cfg    Config
	gpioMu sync.Mutex
	relays []*relayState
}

// NewDriver releases every relay and returns the driver.
func NewDriver(cfg Config) (*Driver, error) {
	if len(cfg.Pins) == 0 {
		return nil, fmt.Errorf("at least one relay pin must be configured")
	}
	if cfg.PulseDuration <= 0 {
		cfg.PulseDuration = DefaultPulse
	}

	d := &Driver{cfg: cfg}
	for _, pin := range cfg.Pins {
		d.relays = append(d.relays, &relayState{pin: pin})
	}

	// Known state on startup: everything de-energized.
	for i := range d.relays {
		if err := d.write(d.relays[i], false); err != nil {
			return nil, fmt.Errorf("release relay %d: %w", i+1, err)
		}
	}
	return d, nil
}

// Count returns the number of relays.
func (d *Driver) Count() int {
	return len(d.relays)
}

// StateOf returns the state of relay n (1-based).
func (d *Driver) StateOf(n int) (State, error) {
	r, err := d.relay(n)
	if err != nil {
		return Idle, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

// States returns the state of every relay, keyed by relay number.
func (d *Driver) States() map[int]string {
	out := make(map[int]string, len(d.relays))
	for i, r := range d.relays {
		r.mu.Lock()
		out[i+1] = r.state.String()
		r.mu.Unlock()
	}
	return out
}

// Pulse explicitly actuates relay n: any hold is released, the relay
// returns to idle and fires one timed pulse.
func (d *Driver) Pulse(n int, duration time.Duration) error {
	r, err := d.relay(n)
	if err != nil {
		return err
	}
	if duration <= 0 {
		duration = d.cfg.PulseDuration
	}

	r.mu.Lock()
	r.state = Idle
	r.pulseID++
	id := r.pulseID
	r.mu.Unlock()

	d.operate(n, "pulse")
	logger.Info("relay pulse", logger.KeyRelay, n, "duration", duration)
	return d.firePulse(r, n, id, duration)
}

// AutoPulse actuates relay n for a granted scan unless a hold is
// active, in which case the pulse is suppressed.
func (d *Driver) AutoPulse(n int) error {
	r, err := d.relay(n)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.state != Idle {
		state := r.state
		r.mu.Unlock()
		logger.Info("automatic pulse suppressed by hold",
			logger.KeyRelay, n, logger.KeyState, state.String())
		d.operate(n, "suppressed")
		return nil
	}
	r.pulseID++
	id := r.pulseID
	r.mu.Unlock()

	d.operate(n, "auto_pulse")
	return d.firePulse(r, n, id, d.cfg.PulseDuration)
}

// HoldOpen latches relay n energized until an explicit release.
func (d *Driver) HoldOpen(n int) error {
	r, err := d.relay(n)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.state = HeldOpen
	r.pulseID++ // cancel any in-flight pulse release
	r.mu.Unlock()

	d.operate(n, "open_hold")
	logger.Info("relay held open", logger.KeyRelay, n)
	return d.write(r, true)
}

// HoldClosed latches relay n de-energized until an explicit release.
func (d *Driver) HoldClosed(n int) error {
	r, err := d.relay(n)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.state = HeldClosed
	r.pulseID++
	r.mu.Unlock()

	d.operate(n, "close_hold")
	logger.Info("relay held closed", logger.KeyRelay, n)
	return d.write(r, false)
}

// Normalize releases any hold on relay n and returns it to idle
// without pulsing.
func (d *Driver) Normalize(n int) error {
	r, err := d.relay(n)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.state = Idle
	r.pulseID++
	r.mu.Unlock()

	d.operate(n, "normal")
	logger.Info("relay normalized", logger.KeyRelay, n)
	return d.write(r, false)
}

// firePulse energizes the relay, waits, and releases it unless a
// newer operation took over in the meantime.
func (d *Driver) firePulse(r *relayState, n int, id uint64, duration time.Duration) error {
	if err := d.write(r, true); err != nil {
		return fmt.Errorf("energize relay %d: %w", n, err)
	}

	go func() {
		time.Sleep(duration)

		r.mu.Lock()
		stale := r.pulseID != id
		r.mu.Unlock()
		if stale {
			return
		}
		if err := d.write(r, false); err != nil {
			logger.Error("failed to release relay after pulse",
				logger.KeyRelay, n, logger.Err(err))
		}
	}()
	return nil
}

// write drives the pin under the process-wide GPIO lock. With
// active-low wiring, energized drives the pin low.
func (d *Driver) write(r *relayState, energized bool) error {
	level := gpio.Level(energized != d.cfg.ActiveLow)

	d.gpioMu.Lock()
	defer d.gpioMu.Unlock()
	return r.pin.Out(level)
}

func (d *Driver) relay(n int) (*relayState, error) {
	if n < 1 || n > len(d.relays) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelay, n)
	}
	return d.relays[n-1], nil
}

func (d *Driver) operate(relay int, action string) {
	if d.cfg.OnOperate != nil {
		d.cfg.OnOperate(relay, action)
	}
}

// ReleaseAll de-energizes every relay. Called on shutdown.
func (d *Driver) ReleaseAll(ctx context.Context) {
	for i, r := range d.relays {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.mu.Lock()
		r.state = Idle
		r.pulseID++
		r.mu.Unlock()
		if err := d.write(r, false); err != nil {
			logger.Error("failed to release relay on shutdown",
				logger.KeyRelay, i+1, logger.Err(err))
		}
	}
}
