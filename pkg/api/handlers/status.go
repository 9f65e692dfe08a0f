package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/identity"
	"github.com/maxpark/accessd/pkg/runtimeconf"
	"github.com/maxpark/accessd/pkg/system"
	"github.com/maxpark/accessd/pkg/txlog"
	"github.com/maxpark/accessd/pkg/upload"
)

// RelayStates reports the current state of every relay.
type RelayStates interface {
	States() map[int]string
}

// StatusDeps carries everything the status endpoints read.
type StatusDeps struct {
	Probe   *system.Probe
	Relays  RelayStates
	Users   *identity.Store
	Stats   *txlog.Stats
	Log     *txlog.Log
	Cache   *upload.Cache
	Runtime *runtimeconf.Store
	Readers func() int
	Version string
	Started time.Time

	// GPIO reports whether readers and relays run on real hardware.
	GPIO bool
	// Remote reports whether a remote upload target is configured.
	Remote bool
}

// StatusHandler serves the device status, health and system clock
// endpoints.
type StatusHandler struct {
	deps StatusDeps
	now  func() time.Time

	// Seams for hosts without thermal zones or timedatectl.
	temperature func() (float64, error)
	setClock    func(context.Context, time.Time) error
	setNTP      func(context.Context, bool) error
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(deps StatusDeps) *StatusHandler {
	return &StatusHandler{
		deps:        deps,
		now:         time.Now,
		temperature: system.CPUTemperature,
		setClock:    system.SetClock,
		setNTP:      system.SetNTP,
	}
}

// DeviceStatus is the payload of GET /status.
type DeviceStatus struct {
	EntityID       string           `json:"entity_id"`
	Version        string           `json:"version"`
	Time           string           `json:"time"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	Online         bool             `json:"online"`
	CPUTempC       *float64         `json:"cpu_temp_c,omitempty"`
	StorageBytes   int64            `json:"storage_bytes"`
	PendingUploads int              `json:"pending_uploads"`
	Users          int              `json:"users"`
	Readers        int              `json:"readers"`
	Relays         map[int]string   `json:"relays"`
	Today          txlog.TodayStats `json:"today"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Status string       `json:"status"`
	Device DeviceStatus `json:"device"`
}

// Status handles GET /status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	device := DeviceStatus{
		EntityID:      h.deps.Runtime.Get().EntityID,
		Version:       h.deps.Version,
		Time:          now.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(now.Sub(h.deps.Started).Seconds()),
		Online:        h.deps.Probe.Online(),
		Users:         h.deps.Users.Count(),
		Readers:       h.deps.Readers(),
		Relays:        h.deps.Relays.States(),
		Today:         h.deps.Stats.Today(now),
	}

	if size, err := h.deps.Log.Size(); err == nil {
		device.StorageBytes = size
	}
	device.PendingUploads = h.deps.Cache.Len()
	if temp, err := h.temperature(); err == nil {
		device.CPUTempC = &temp
	}

	JSON(w, http.StatusOK, StatusResponse{Status: "success", Device: device})
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Internet bool   `json:"internet"`
	Remote   bool   `json:"remote"`
	GPIO     bool   `json:"gpio"`
}

// Health handles GET /health. Unauthenticated liveness probe.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	online := h.deps.Probe.Online()
	JSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Time:     h.now().UTC().Format(time.RFC3339),
		Internet: online,
		Remote:   h.deps.Remote && online,
		GPIO:     h.deps.GPIO,
	})
}

// SystemTimeResponse is the response body for GET /get_system_time.
type SystemTimeResponse struct {
	Status string          `json:"status"`
	Time   system.TimeInfo `json:"time"`
}

// GetSystemTime handles GET /get_system_time.
func (h *StatusHandler) GetSystemTime(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, SystemTimeResponse{Status: "success", Time: system.CurrentTime()})
}

// SetSystemTimeRequest is the request body for POST /set_system_time.
// Either an epoch timestamp or an RFC 3339 string is accepted.
type SetSystemTimeRequest struct {
	Epoch *int64 `json:"epoch,omitempty"`
	ISO   string `json:"iso,omitempty"`
}

// SetSystemTime handles POST /set_system_time.
func (h *StatusHandler) SetSystemTime(w http.ResponseWriter, r *http.Request) {
	var req SetSystemTimeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var target time.Time
	switch {
	case req.Epoch != nil:
		target = time.Unix(*req.Epoch, 0)
	case req.ISO != "":
		parsed, err := time.Parse(time.RFC3339, req.ISO)
		if err != nil {
			BadRequest(w, "iso must be an RFC 3339 timestamp")
			return
		}
		target = parsed
	default:
		BadRequest(w, "epoch or iso is required")
		return
	}

	if err := h.setClock(r.Context(), target); err != nil {
		if errors.Is(err, system.ErrClockUnsupported) {
			NotImplemented(w, "System clock management is not available on this host")
			return
		}
		logger.Error("failed to set system clock", logger.Err(err))
		InternalServerError(w, "Failed to set system time")
		return
	}

	logger.Info("system clock set", "target", target.UTC().Format(time.RFC3339))
	Success(w, "System time updated")
}

// EnableNTPRequest is the request body for POST /enable_ntp.
type EnableNTPRequest struct {
	Enabled bool `json:"enabled"`
}

// EnableNTP handles POST /enable_ntp.
func (h *StatusHandler) EnableNTP(w http.ResponseWriter, r *http.Request) {
	var req EnableNTPRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.setNTP(r.Context(), req.Enabled); err != nil {
		if errors.Is(err, system.ErrClockUnsupported) {
			NotImplemented(w, "NTP management is not available on this host")
			return
		}
		logger.Error("failed to toggle NTP", logger.Err(err))
		InternalServerError(w, "Failed to update NTP setting")
		return
	}

	if req.Enabled {
		Success(w, "NTP enabled")
		return
	}
	Success(w, "NTP disabled")
}
