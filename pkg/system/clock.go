package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/maxpark/accessd/internal/logger"
)

// ErrClockUnsupported is returned when the host has no supported way
// to set the clock. The API maps it to 501.
var ErrClockUnsupported = errors.New("system clock management not available on this host")

const clockCmdTimeout = 5 * time.Second

// execCommand is swapped out in tests.
var execCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

// TimeInfo is the system clock snapshot served by the API.
type TimeInfo struct {
	ISO      string `json:"iso"`
	Epoch    int64  `json:"epoch"`
	Timezone string `json:"timezone"`
}

// CurrentTime returns the clock snapshot for now.
func CurrentTime() TimeInfo {
	now := time.Now()
	zone, _ := now.Zone()
	return TimeInfo{
		ISO:      now.Format(time.RFC3339),
		Epoch:    now.Unix(),
		Timezone: zone,
	}
}

// SetClock sets the system time, preferring timedatectl and falling
// back to date(1). Returns ErrClockUnsupported when neither tool
// exists.
func SetClock(ctx context.Context, t time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, clockCmdTimeout)
	defer cancel()

	stamp := t.Format("2006-01-02 15:04:05")
	if _, err := lookPath("timedatectl"); err == nil {
		out, err := execCommand(ctx, "timedatectl", "set-time", stamp)
		if err == nil {
			logger.Info("system time set", "time", stamp)
			return nil
		}
		logger.Warn("timedatectl set-time failed, trying date",
			logger.Err(err), "output", strings.TrimSpace(string(out)))
	}

	if _, err := lookPath("date"); err == nil {
		out, err := execCommand(ctx, "date", "-s", stamp)
		if err != nil {
			return fmt.Errorf("date -s failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
		logger.Info("system time set via date", "time", stamp)
		return nil
	}

	return ErrClockUnsupported
}

// SetNTP enables or disables NTP synchronization via timedatectl.
// Returns ErrClockUnsupported when timedatectl does not exist.
func SetNTP(ctx context.Context, enabled bool) error {
	if _, err := lookPath("timedatectl"); err != nil {
		return ErrClockUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, clockCmdTimeout)
	defer cancel()

	arg := "false"
	if enabled {
		arg = "true"
	}
	out, err := execCommand(ctx, "timedatectl", "set-ntp", arg)
	if err != nil {
		return fmt.Errorf("timedatectl set-ntp failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	logger.Info("ntp synchronization set", "enabled", enabled)
	return nil
}
