package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/relay"
)

// RelayController is the slice of the relay driver the API needs.
type RelayController interface {
	Pulse(n int, duration time.Duration) error
	HoldOpen(n int) error
	HoldClosed(n int) error
	Normalize(n int) error
	States() map[int]string
}

// RelayHandler handles manual relay control.
type RelayHandler struct {
	relays RelayController
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(relays RelayController) *RelayHandler {
	return &RelayHandler{relays: relays}
}

// RelayRequest is the request body for POST /relay.
type RelayRequest struct {
	Relay  int    `json:"relay"`
	Action string `json:"action"`

	// DurationMS overrides the configured pulse length for the
	// pulse action only.
	DurationMS int `json:"duration_ms,omitempty"`
}

// RelayResponse is the response body for POST /relay.
type RelayResponse struct {
	Status string         `json:"status"`
	States map[int]string `json:"states"`
}

// Operate handles POST /relay with actions pulse, open_hold,
// close_hold and normal.
func (h *RelayHandler) Operate(w http.ResponseWriter, r *http.Request) {
	var req RelayRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var err error
	switch req.Action {
	case "pulse":
		err = h.relays.Pulse(req.Relay, time.Duration(req.DurationMS)*time.Millisecond)
	case "open_hold":
		err = h.relays.HoldOpen(req.Relay)
	case "close_hold":
		err = h.relays.HoldClosed(req.Relay)
	case "normal":
		err = h.relays.Normalize(req.Relay)
	default:
		BadRequest(w, "action must be one of pulse, open_hold, close_hold, normal")
		return
	}

	if err != nil {
		if errors.Is(err, relay.ErrUnknownRelay) {
			NotFound(w, "Unknown relay")
			return
		}
		logger.Error("relay operation failed",
			logger.KeyRelay, req.Relay, logger.KeyAction, req.Action, logger.Err(err))
		InternalServerError(w, "Relay operation failed")
		return
	}

	logger.Info("manual relay operation",
		logger.KeyRelay, req.Relay, logger.KeyAction, req.Action)
	JSON(w, http.StatusOK, RelayResponse{Status: "success", States: h.relays.States()})
}

// States handles GET /relay_states.
func (h *RelayHandler) StatesEndpoint(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, RelayResponse{Status: "success", States: h.relays.States()})
}
