package handlers

import (
	"net/http"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/runtimeconf"
)

// ConfigHandler serves the runtime configuration endpoints.
type ConfigHandler struct {
	runtime *runtimeconf.Store
	applied func(runtimeconf.Config)
}

// NewConfigHandler creates a ConfigHandler. applied, if non-nil, runs
// after every accepted update so the composition root can push the new
// settings into the scan limiter and entry/exit tracker.
func NewConfigHandler(runtime *runtimeconf.Store, applied func(runtimeconf.Config)) *ConfigHandler {
	return &ConfigHandler{runtime: runtime, applied: applied}
}

// ConfigResponse is the response body for GET /get_config.
type ConfigResponse struct {
	Status string             `json:"status"`
	Config runtimeconf.Config `json:"config"`
}

// Get handles GET /get_config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, ConfigResponse{Status: "success", Config: h.runtime.Get()})
}

// UpdateConfigRequest is the request body for POST /update_config:
// the full runtime configuration under a "config" key, mirroring the
// GET /get_config payload.
type UpdateConfigRequest struct {
	Config runtimeconf.Config `json:"config"`
}

// Update handles POST /update_config. A validation failure leaves the
// current config untouched. A persisted update whose decoder restart
// failed comes back with warning status, since the settings are saved
// and will apply on the next process start.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	restartErr, err := h.runtime.Update(req.Config)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if h.applied != nil {
		h.applied(h.runtime.Get())
	}

	if restartErr != nil {
		logger.Warn("config saved but decoder restart failed", logger.Err(restartErr))
		Warning(w, "Configuration saved, but reader restart failed; new reader settings apply after the next restart")
		return
	}
	Success(w, "Configuration updated")
}
