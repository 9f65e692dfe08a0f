// Package handlers implements the control-plane endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
)

// Response is the standard envelope. Status is "success", "error" or
// "warning"; warning marks a request that was applied but left
// something degraded (for example a config update whose decoder
// restart failed).
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error","message":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Success writes a plain success envelope.
func Success(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, Response{Status: "success", Message: message})
}

// Warning writes a 200 with warning status.
func Warning(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, Response{Status: "warning", Message: message})
}

// BadRequest writes a 400 error envelope.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, Response{Status: "error", Message: message})
}

// Unauthorized writes a 401 error envelope.
func Unauthorized(w http.ResponseWriter, message string) {
	JSON(w, http.StatusUnauthorized, Response{Status: "error", Message: message})
}

// Forbidden writes a 403 error envelope.
func Forbidden(w http.ResponseWriter, message string) {
	JSON(w, http.StatusForbidden, Response{Status: "error", Message: message})
}

// NotFound writes a 404 error envelope.
func NotFound(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotFound, Response{Status: "error", Message: message})
}

// Conflict writes a 409 error envelope.
func Conflict(w http.ResponseWriter, message string) {
	JSON(w, http.StatusConflict, Response{Status: "error", Message: message})
}

// NotImplemented writes a 501 error envelope.
func NotImplemented(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotImplemented, Response{Status: "error", Message: message})
}

// InternalServerError writes a 500 error envelope.
func InternalServerError(w http.ResponseWriter, message string) {
	JSON(w, http.StatusInternalServerError, Response{Status: "error", Message: message})
}

// decodeJSONBody decodes the request body into v, writing a 400 and
// returning false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}
