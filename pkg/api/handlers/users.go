package handlers

import (
	"errors"
	"net/http"

	"github.com/maxpark/accessd/internal/logger"
	"github.com/maxpark/accessd/pkg/identity"
	"github.com/maxpark/accessd/pkg/session"
)

// UserHandler handles user and blocklist management.
type UserHandler struct {
	users *identity.Store
	creds *session.Credentials
}

// NewUserHandler creates a UserHandler. creds is needed for the
// password re-check on privacy toggles.
func NewUserHandler(users *identity.Store, creds *session.Credentials) *UserHandler {
	return &UserHandler{users: users, creds: creds}
}

// UsersResponse is the response body for GET /get_users.
type UsersResponse struct {
	Status string              `json:"status"`
	Users  []identity.UserInfo `json:"users"`
}

// List handles GET /get_users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, UsersResponse{Status: "success", Users: h.users.List()})
}

// AddUserRequest is the request body for POST /add_user.
type AddUserRequest struct {
	CardNumber string `json:"card_number"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	RefID      string `json:"ref_id,omitempty"`
}

// Add handles POST /add_user.
func (h *UserHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := h.users.Add(identity.User{
		CardNumber: req.CardNumber,
		ID:         req.ID,
		Name:       req.Name,
		RefID:      req.RefID,
	})
	switch {
	case err == nil:
		logger.Info("user added", logger.KeyCard, req.CardNumber, logger.KeyUserName, req.Name)
		Success(w, "User added")
	case errors.Is(err, identity.ErrMissingFields), errors.Is(err, identity.ErrInvalidCard):
		BadRequest(w, err.Error())
	default:
		InternalServerError(w, "Failed to add user")
	}
}

// CardRequest is the request body for endpoints addressed by card
// number alone.
type CardRequest struct {
	CardNumber string `json:"card_number"`
}

// Delete handles POST /delete_user. The card's blocklist entry, if
// any, is intentionally kept.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req CardRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := h.users.Delete(req.CardNumber)
	switch {
	case err == nil:
		logger.Info("user deleted", logger.KeyCard, req.CardNumber)
		Success(w, "User deleted")
	case errors.Is(err, identity.ErrUserNotFound):
		NotFound(w, "User not found")
	default:
		InternalServerError(w, "Failed to delete user")
	}
}

// Block handles POST /block_user. Works for unenrolled cards too.
func (h *UserHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true, "Card blocked")
}

// Unblock handles POST /unblock_user.
func (h *UserHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false, "Card unblocked")
}

func (h *UserHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool, message string) {
	var req CardRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := h.users.SetBlocked(req.CardNumber, blocked)
	switch {
	case err == nil:
		logger.Info("blocklist updated", logger.KeyCard, req.CardNumber, "blocked", blocked)
		Success(w, message)
	case errors.Is(err, identity.ErrInvalidCard):
		BadRequest(w, err.Error())
	default:
		InternalServerError(w, "Failed to update blocklist")
	}
}

// TogglePrivacyRequest is the request body for POST /toggle_privacy.
// Privacy changes affect what gets recorded about a person, so the
// admin password is re-verified even on an authenticated session.
type TogglePrivacyRequest struct {
	CardNumber string `json:"card_number"`
	Enable     bool   `json:"enable"`
	Password   string `json:"password"`
}

// TogglePrivacy handles POST /toggle_privacy.
func (h *UserHandler) TogglePrivacy(w http.ResponseWriter, r *http.Request) {
	var req TogglePrivacyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if !h.creds.VerifyPassword(req.Password) {
		Unauthorized(w, "Password verification failed")
		return
	}

	if _, ok := h.users.Get(req.CardNumber); !ok {
		NotFound(w, "User not found")
		return
	}

	if err := h.users.SetPrivacy(req.CardNumber, req.Enable); err != nil {
		InternalServerError(w, "Failed to update privacy setting")
		return
	}

	logger.Info("privacy protection updated",
		logger.KeyCard, req.CardNumber, "protected", req.Enable)
	if req.Enable {
		Success(w, "Privacy protection enabled")
		return
	}
	Success(w, "Privacy protection disabled")
}
