// Package wiegand decodes card frames from Wiegand readers wired to
// two edge-interrupt GPIO lines per reader.
//
// A falling edge on D0 contributes a 0 bit, a falling edge on D1 a 1
// bit. Bits accumulate until the line has been quiet for the inter-bit
// timeout; the buffered frame is then checked against the configured
// width and parity scheme and the card number handed to the handler.
package wiegand

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/board"
)

// DefaultTimeout is the inter-bit gap after which a frame is complete
// (or a partial frame is discarded).
const DefaultTimeout = 25 * time.Millisecond

// Handler receives decoded card numbers.
type Handler func(card string, reader int)

// InvalidFunc is notified of frames that fail width or parity checks.
type InvalidFunc func(reader, bits int, reason string)

// Config configures one reader's decoder.
type Config struct {
	Reader  int // 1-based reader number
	D0, D1  board.EdgePin
	Bits    int           // expected frame width: 26 or 34
	Timeout time.Duration // inter-bit gap, DefaultTimeout when zero
	Handler Handler
	Invalid InvalidFunc // optional
}

// Decoder reads one Wiegand reader. Watcher goroutines collect edges
// from the two data lines; a processor goroutine assembles and
// validates frames.
type Decoder struct {
	cfg     Config
	mu      sync.Mutex
	data    []byte
	lastBit time.Time
	pulse   chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDecoder validates cfg and returns a stopped decoder.
func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.D0 == nil || cfg.D1 == nil {
		return nil, errors.New("both data pins must be provided")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler must be provided")
	}
	if cfg.Bits != 26 && cfg.Bits != 34 {
		return nil, fmt.Errorf("unsupported frame width %d, want 26 or 34", cfg.Bits)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Decoder{
		cfg:   cfg,
		data:  make([]byte, 0, cfg.Bits),
		pulse: make(chan struct{}, 1),
	}, nil
}

// Start configures the pins for falling-edge interrupts and launches
// the watcher and processor goroutines.
func (d *Decoder) Start() error {
	if err := d.cfg.D0.In(gpio.PullDown, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure D0 pin %s: %w", d.cfg.D0.Name(), err)
	}
	if err := d.cfg.D1.In(gpio.PullDown, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure D1 pin %s: %w", d.cfg.D1.Name(), err)
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.wg.Add(3)
	go d.watchPin(d.cfg.D0, 0)
	go d.watchPin(d.cfg.D1, 1)
	go d.process()

	logger.Info("wiegand decoder started",
		logger.KeyReader, d.cfg.Reader,
		logger.KeyBits, d.cfg.Bits,
		"d0", d.cfg.D0.Name(), "d1", d.cfg.D1.Name())
	return nil
}

// Stop halts the pins and waits for the goroutines to exit.
func (d *Decoder) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.cfg.D0.Halt()
	d.cfg.D1.Halt()
	d.wg.Wait()
}

// watchPin records one bit value per falling edge on pin.
func (d *Decoder) watchPin(pin board.EdgePin, bit byte) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if pin.WaitForEdge(time.Second) && pin.Read() == gpio.Low {
				d.mu.Lock()
				d.data = append(d.data, bit)
				d.lastBit = time.Now()
				d.mu.Unlock()
				select {
				case d.pulse <- struct{}{}:
				default:
				}
			}
		}
	}
}

// process waits for the line to go quiet after a burst of pulses, then
// validates and emits the buffered frame.
func (d *Decoder) process() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.pulse:
			for {
				d.mu.Lock()
				elapsed := time.Since(d.lastBit)
				d.mu.Unlock()
				if elapsed >= d.cfg.Timeout {
					break
				}
				select {
				case <-d.pulse:
					// more bits arriving, keep waiting
				case <-d.ctx.Done():
					return
				case <-time.After(d.cfg.Timeout - elapsed):
				}
			}

			d.mu.Lock()
			frame := make([]byte, len(d.data))
			copy(frame, d.data)
			d.data = d.data[:0]
			d.mu.Unlock()

			if len(frame) == 0 {
				continue
			}
			d.emit(frame)
		}
	}
}

// emit validates width and parity, extracts the card number and calls
// the handler.
func (d *Decoder) emit(frame []byte) {
	if len(frame) != d.cfg.Bits {
		logger.Warn("discarding frame with unexpected width",
			logger.KeyReader, d.cfg.Reader,
			logger.KeyBits, len(frame),
			"expected", d.cfg.Bits)
		d.invalid(len(frame), "width")
		return
	}

	half := len(frame) / 2
	if !checkParity(frame, 0, half, true) || !checkParity(frame, half, half, false) {
		logger.Warn("discarding frame with bad parity",
			logger.KeyReader, d.cfg.Reader, logger.KeyBits, len(frame))
		d.invalid(len(frame), "parity")
		return
	}

	card := cardNumber(frame)
	logger.Debug("decoded card frame",
		logger.KeyReader, d.cfg.Reader,
		logger.KeyCard, card,
		logger.KeyBits, len(frame))
	d.cfg.Handler(card, d.cfg.Reader)
}

func (d *Decoder) invalid(bits int, reason string) {
	if d.cfg.Invalid != nil {
		d.cfg.Invalid(d.cfg.Reader, bits, reason)
	}
}

// checkParity verifies parity over frame[start:start+length]. The
// parity bit itself is inside the range, so an even half must have an
// even popcount and an odd half an odd one.
func checkParity(frame []byte, start, length int, even bool) bool {
	if start+length > len(frame) {
		return false
	}
	ones := 0
	for i := start; i < start+length; i++ {
		if frame[i] == 1 {
			ones++
		}
	}
	if even {
		return ones%2 == 0
	}
	return ones%2 == 1
}

// cardNumber drops the leading and trailing parity bits and renders
// the middle bits as a big-endian decimal string.
func cardNumber(frame []byte) string {
	var num uint64
	for _, bit := range frame[1 : len(frame)-1] {
		num = num<<1 | uint64(bit)
	}
	return strconv.FormatUint(num, 10)
}
