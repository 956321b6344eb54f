package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appctx "github.com/welldanyogia/newsroom-auth/internal/context"
)

// APIResponse mirrors the standard response envelope
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RevokeRequest carries the optional reason for a revocation
type RevokeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Handler handles HTTP requests for session administration
type Handler struct {
	service *Service
}

// NewHandler creates a new session Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListMine lists the calling user's active sessions
// GET /api/v1/sessions/me
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "SESSION_INVALID", "Invalid or expired session")
		return
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "SESSION_INVALID", "Invalid or expired session")
		return
	}

	sessions, err := h.service.ListByUser(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.writeSuccess(w, http.StatusOK, sessions)
}

// ListByUser lists a user's active sessions
// GET /api/v1/sessions/user/{userID}
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user ID")
		return
	}

	sessions, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.writeSuccess(w, http.StatusOK, sessions)
}

// Revoke blacklists a single session
// DELETE /api/v1/sessions/{sessionID}
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid session ID")
		return
	}

	var req RevokeRequest
	// Body is optional
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.service.Revoke(r.Context(), sessionID, adminID(r), req.Reason); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			h.writeError(w, http.StatusNotFound, CodeSessionNotFound, "Session not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}

// Ban revokes all of a user's sessions and deactivates the account
// POST /api/v1/sessions/user/{userID}/ban
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user ID")
		return
	}

	var req RevokeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	revoked, err := h.service.RevokeAllAndBan(r.Context(), userID, adminID(r), req.Reason)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message":          "User banned",
		"sessions_revoked": revoked,
	})
}

// Suspicious returns the flagged-account listing and count
// GET /api/v1/sessions/suspicious
func (h *Handler) Suspicious(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.CountSuspiciousUsers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	flagged, err := h.service.ListSuspiciousUsers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"count": count,
		"users": flagged,
	})
}

// adminID resolves the acting administrator from the request context, nil
// when unknown (system-initiated)
func adminID(r *http.Request) *uuid.UUID {
	userID, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		return nil
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &id
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}
