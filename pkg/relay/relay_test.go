package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/maxpark/accessd/pkg/board"
)

type fakeOutPin struct {
	mu     sync.Mutex
	name   string
	levels []gpio.Level
}

func (p *fakeOutPin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, l)
	return nil
}

func (p *fakeOutPin) Name() string { return p.name }

func (p *fakeOutPin) last() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.levels) == 0 {
		return gpio.Low
	}
	return p.levels[len(p.levels)-1]
}

func (p *fakeOutPin) writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.levels)
}

func newTestDriver(t *testing.T, pulse time.Duration) (*Driver, []*fakeOutPin) {
	t.Helper()

	pins := []*fakeOutPin{{name: "GPIO25"}, {name: "GPIO26"}}
	d, err := NewDriver(Config{
		Pins:          []board.OutPin{pins[0], pins[1]},
		ActiveLow:     true,
		PulseDuration: pulse,
	})
	require.NoError(t, err)
	return d, pins
}

func TestNewDriverReleasesAllRelays(t *testing.T) {
	_, pins := newTestDriver(t, time.Hour)

	// Active-low: released means driven high.
	for _, p := range pins {
		assert.Equal(t, gpio.High, p.last())
	}
}

func TestPulseEnergizesThenReleases(t *testing.T) {
	d, pins := newTestDriver(t, time.Hour)

	require.NoError(t, d.Pulse(1, 20*time.Millisecond))
	assert.Equal(t, gpio.Low, pins[0].last(), "energized drives low")

	require.Eventually(t, func() bool {
		return pins[0].last() == gpio.High
	}, time.Second, 5*time.Millisecond)

	state, err := d.StateOf(1)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)
}

func TestAutoPulseSuppressedWhileHeld(t *testing.T) {
	d, pins := newTestDriver(t, 20*time.Millisecond)

	require.NoError(t, d.HoldOpen(1))
	writesAfterHold := pins[0].writes()

	require.NoError(t, d.AutoPulse(1))
	assert.Equal(t, writesAfterHold, pins[0].writes(), "no pin writes while held")

	state, _ := d.StateOf(1)
	assert.Equal(t, HeldOpen, state)
}

func TestAutoPulseWhenIdle(t *testing.T) {
	d, pins := newTestDriver(t, 20*time.Millisecond)

	require.NoError(t, d.AutoPulse(1))
	assert.Equal(t, gpio.Low, pins[0].last())

	require.Eventually(t, func() bool {
		return pins[0].last() == gpio.High
	}, time.Second, 5*time.Millisecond)
}

func TestHoldOpenSurvivesPulseRelease(t *testing.T) {
	d, pins := newTestDriver(t, 20*time.Millisecond)

	require.NoError(t, d.AutoPulse(1))
	require.NoError(t, d.HoldOpen(1))

	// The in-flight pulse release must not undo the hold.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, gpio.Low, pins[0].last(), "still energized")

	state, _ := d.StateOf(1)
	assert.Equal(t, HeldOpen, state)
}

func TestHoldClosed(t *testing.T) {
	d, pins := newTestDriver(t, time.Hour)

	require.NoError(t, d.HoldClosed(2))
	assert.Equal(t, gpio.High, pins[1].last(), "de-energized drives high")

	state, _ := d.StateOf(2)
	assert.Equal(t, HeldClosed, state)
}

func TestNormalizeReleasesHold(t *testing.T) {
	d, pins := newTestDriver(t, time.Hour)

	require.NoError(t, d.HoldOpen(1))
	require.NoError(t, d.Normalize(1))

	assert.Equal(t, gpio.High, pins[0].last())
	state, _ := d.StateOf(1)
	assert.Equal(t, Idle, state)
}

func TestExplicitPulseClearsHold(t *testing.T) {
	d, pins := newTestDriver(t, 20*time.Millisecond)

	require.NoError(t, d.HoldClosed(1))
	require.NoError(t, d.Pulse(1, 0))

	assert.Equal(t, gpio.Low, pins[0].last(), "pulse fired despite prior hold")
	state, _ := d.StateOf(1)
	assert.Equal(t, Idle, state)
}

func TestRelaysAreIndependent(t *testing.T) {
	d, pins := newTestDriver(t, time.Hour)

	require.NoError(t, d.HoldOpen(1))
	require.NoError(t, d.AutoPulse(2))

	assert.Equal(t, gpio.Low, pins[0].last())
	assert.Equal(t, gpio.Low, pins[1].last())

	states := d.States()
	assert.Equal(t, "held_open", states[1])
	assert.Equal(t, "idle", states[2])
}

func TestUnknownRelay(t *testing.T) {
	d, _ := newTestDriver(t, time.Hour)

	assert.ErrorIs(t, d.Pulse(0, 0), ErrUnknownRelay)
	assert.ErrorIs(t, d.AutoPulse(3), ErrUnknownRelay)
	assert.ErrorIs(t, d.HoldOpen(-1), ErrUnknownRelay)
	_, err := d.StateOf(99)
	assert.ErrorIs(t, err, ErrUnknownRelay)
}

func TestOnOperateCallback(t *testing.T) {
	var mu sync.Mutex
	var ops []string

	pin := &fakeOutPin{name: "GPIO25"}
	d, err := NewDriver(Config{
		Pins:          []board.OutPin{pin},
		ActiveLow:     true,
		PulseDuration: 10 * time.Millisecond,
		OnOperate: func(relay int, action string) {
			mu.Lock()
			defer mu.Unlock()
			ops = append(ops, action)
		},
	})
	require.NoError(t, err)

	require.NoError(t, d.HoldOpen(1))
	require.NoError(t, d.AutoPulse(1))
	require.NoError(t, d.Normalize(1))
	require.NoError(t, d.AutoPulse(1))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"open_hold", "suppressed", "normal", "auto_pulse"}, ops)
}
