package handlers

import (
	"errors"
	"net/http"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/session"
)

// AuthHandler handles login, logout and credential rotation.
type AuthHandler struct {
	sessions *session.Store
	creds    *session.Credentials
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(sessions *session.Store, creds *session.Credentials) *AuthHandler {
	return &AuthHandler{sessions: sessions, creds: creds}
}

// LoginRequest is the request body for POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for POST /login.
type LoginResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

// Login handles POST /login. Successful authentication issues a
// session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		BadRequest(w, "Username and password are required")
		return
	}

	if !h.creds.Verify(req.Username, req.Password) {
		logger.Warn("login rejected",
			logger.KeyUsername, req.Username,
			logger.KeyClientIP, r.RemoteAddr)
		Unauthorized(w, "Invalid username or password")
		return
	}

	token, err := h.sessions.Issue(req.Username)
	if err != nil {
		InternalServerError(w, "Failed to create session")
		return
	}

	logger.Info("login", logger.KeyUsername, req.Username, logger.KeyClientIP, r.RemoteAddr)
	JSON(w, http.StatusOK, LoginResponse{Status: "success", Token: token})
}

// Logout handles POST /logout. The presented token is revoked; a
// missing or unknown token still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) {
		h.sessions.Revoke(header[len(prefix):])
	}
	Success(w, "Logged out")
}

// UpdateSecurityRequest is the request body for POST /update_security.
type UpdateSecurityRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password,omitempty"`
	NewAPIKey       string `json:"new_api_key,omitempty"`
}

// UpdateSecurity handles POST /update_security. The current password
// is always re-verified; password and API key can be rotated together
// or independently.
func (h *AuthHandler) UpdateSecurity(w http.ResponseWriter, r *http.Request) {
	var req UpdateSecurityRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.NewPassword == "" && req.NewAPIKey == "" {
		BadRequest(w, "Nothing to update")
		return
	}

	if !h.creds.VerifyPassword(req.CurrentPassword) {
		Unauthorized(w, "Current password is incorrect")
		return
	}

	if req.NewPassword != "" {
		if err := h.creds.SetPassword(req.NewPassword); err != nil {
			if errors.Is(err, session.ErrWeakPassword) {
				BadRequest(w, "New password is too short")
				return
			}
			InternalServerError(w, "Failed to update password")
			return
		}
	}
	if req.NewAPIKey != "" {
		if err := h.creds.SetAPIKey(req.NewAPIKey); err != nil {
			if errors.Is(err, session.ErrWeakAPIKey) {
				BadRequest(w, "New API key is too short")
				return
			}
			InternalServerError(w, "Failed to update API key")
			return
		}
	}

	// Old sessions die with the old credentials.
	h.sessions.RevokeAll()
	logger.Info("security settings updated", logger.KeyClientIP, r.RemoteAddr)
	Success(w, "Security settings updated")
}
