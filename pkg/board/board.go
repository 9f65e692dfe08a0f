// Package board is the thin hardware layer over periph.io. It owns
// host initialization and pin lookup, and defines the narrow pin
// interfaces the decoder and relay driver are written against so both
// can be tested without hardware.
package board

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// EdgePin is the input surface the Wiegand decoder needs. gpio.PinIO
// satisfies it.
type EdgePin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
	Halt() error
	Name() string
}

// OutPin is the output surface the relay driver needs. gpio.PinIO
// satisfies it.
type OutPin interface {
	Out(l gpio.Level) error
	Name() string
}

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers. Safe to call multiple times.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return fmt.Errorf("initialize periph host: %w", initErr)
	}
	return nil
}

// InputPin resolves a GPIO pin by name (e.g. "GPIO18") for edge input.
func InputPin(name string) (EdgePin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	return p, nil
}

// OutputPin resolves a GPIO pin by name for output.
func OutputPin(name string) (OutPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	return p, nil
}

// NoopPin satisfies both pin interfaces without touching hardware.
// Used when the daemon runs with GPIO disabled.
type NoopPin struct {
	PinName string
}

func (n NoopPin) In(gpio.Pull, gpio.Edge) error     { return nil }
func (n NoopPin) WaitForEdge(t time.Duration) bool  { time.Sleep(t); return false }
func (n NoopPin) Read() gpio.Level                  { return gpio.High }
func (n NoopPin) Out(gpio.Level) error              { return nil }
func (n NoopPin) Halt() error                       { return nil }
func (n NoopPin) Name() string                      { return n.PinName }
