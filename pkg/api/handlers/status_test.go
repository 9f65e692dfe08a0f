package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpark/accessd/pkg/identity"
	"github.com/maxpark/accessd/pkg/runtimeconf"
	"github.com/maxpark/accessd/pkg/system"
	"github.com/maxpark/accessd/pkg/txlog"
	"github.com/maxpark/accessd/pkg/upload"
)

type fixedRelays map[int]string

func (f fixedRelays) States() map[int]string { return f }

func newStatusFixture(t *testing.T) *StatusHandler {
	t.Helper()
	dir := t.TempDir()

	users, err := identity.Open(dir)
	require.NoError(t, err)

	log, err := txlog.Open(filepath.Join(dir, "transactions"))
	require.NoError(t, err)

	runtime, err := runtimeconf.Load(filepath.Join(dir, "config.json"), runtimeconf.Config{
		EntityID:         "site-1",
		WiegandBits:      map[string]int{"reader_1": 26},
		WiegandTimeoutMS: 25,
		ScanDelaySeconds: 60,
		EntryExit:        runtimeconf.EntryExitConfig{MinGapSeconds: 5},
	})
	require.NoError(t, err)

	h := NewStatusHandler(StatusDeps{
		Probe:   system.NewProbe("127.0.0.1:1"),
		Relays:  fixedRelays{1: "idle"},
		Users:   users,
		Stats:   txlog.OpenStats(filepath.Join(dir, "daily_stats.json")),
		Log:     log,
		Cache:   upload.NewCache(filepath.Join(dir, upload.CacheFileName)),
		Runtime: runtime,
		Readers: func() int { return 1 },
		Version: "1.2.3",
		Started: time.Now().Add(-time.Minute),
	})
	h.temperature = func() (float64, error) { return 47.2, nil }
	return h
}

func TestStatusPayload(t *testing.T) {
	h := newStatusFixture(t)

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "site-1", resp.Device.EntityID)
	assert.Equal(t, "1.2.3", resp.Device.Version)
	assert.Equal(t, 1, resp.Device.Readers)
	assert.Equal(t, map[int]string{1: "idle"}, resp.Device.Relays)
	assert.GreaterOrEqual(t, resp.Device.UptimeSeconds, int64(59))
	require.NotNil(t, resp.Device.CPUTempC)
	assert.InDelta(t, 47.2, *resp.Device.CPUTempC, 0.01)
}

func TestStatusOmitsTemperatureWhenUnavailable(t *testing.T) {
	h := newStatusFixture(t)
	h.temperature = func() (float64, error) { return 0, assert.AnError }

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "cpu_temp_c")
}

func TestSetSystemTimeFromEpoch(t *testing.T) {
	h := newStatusFixture(t)

	var got time.Time
	h.setClock = func(_ context.Context, target time.Time) error {
		got = target
		return nil
	}

	body := `{"epoch": 1767225600}`
	req := httptest.NewRequest(http.MethodPost, "/set_system_time", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.SetSystemTime(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1767225600), got.Unix())
}

func TestSetSystemTimeFromISO(t *testing.T) {
	h := newStatusFixture(t)

	var got time.Time
	h.setClock = func(_ context.Context, target time.Time) error {
		got = target
		return nil
	}

	body := `{"iso": "2026-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/set_system_time", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.SetSystemTime(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2026, got.UTC().Year())
}

func TestSetSystemTimeValidation(t *testing.T) {
	h := newStatusFixture(t)
	h.setClock = func(context.Context, time.Time) error { return nil }

	req := httptest.NewRequest(http.MethodPost, "/set_system_time", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.SetSystemTime(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/set_system_time", strings.NewReader(`{"iso":"yesterday"}`))
	w = httptest.NewRecorder()
	h.SetSystemTime(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetSystemTimeUnsupportedHost(t *testing.T) {
	h := newStatusFixture(t)
	h.setClock = func(context.Context, time.Time) error { return system.ErrClockUnsupported }

	req := httptest.NewRequest(http.MethodPost, "/set_system_time", strings.NewReader(`{"epoch": 1}`))
	w := httptest.NewRecorder()
	h.SetSystemTime(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestEnableNTP(t *testing.T) {
	h := newStatusFixture(t)

	var got bool
	h.setNTP = func(_ context.Context, enabled bool) error {
		got = enabled
		return nil
	}

	req := httptest.NewRequest(http.MethodPost, "/enable_ntp", strings.NewReader(`{"enabled": true}`))
	w := httptest.NewRecorder()
	h.EnableNTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, got)
}
