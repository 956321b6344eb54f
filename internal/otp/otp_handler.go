package otp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// RequestCodeRequest asks for a fresh code to be mailed
type RequestCodeRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=login reset_password"`
}

// VerifyCodeRequest checks a code without consuming a login
type VerifyCodeRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
	Purpose string `json:"purpose" validate:"required,oneof=login register reset_password"`
}

// APIResponse mirrors the standard response envelope
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// Handler handles HTTP requests for OTP endpoints
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler creates a new OTP Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// RequestCode issues and mails a fresh code
// POST /api/v1/otp/request
// Purpose "register" is excluded here: registration codes are only issued by
// the registration flow itself, so a banned account cannot mint one.
func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if details := h.validateRequest(req); details != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	if err := h.service.Issue(r.Context(), req.Email, repository.OTPPurpose(req.Purpose)); err != nil {
		if errors.Is(err, ErrMailDispatch) {
			h.writeError(w, http.StatusBadGateway, CodeMailFailure, "Could not deliver the verification code", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	// The response is identical whether or not the address is registered
	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "If the address is valid, a verification code has been sent",
	})
}

// VerifyCode consumes a code
// POST /api/v1/otp/verify
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if details := h.validateRequest(req); details != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	if err := h.service.Verify(r.Context(), req.Email, req.Code, repository.OTPPurpose(req.Purpose)); err != nil {
		switch {
		case errors.Is(err, ErrCodeInvalid), errors.Is(err, ErrCodeAlreadyUsed), errors.Is(err, ErrCodeExpired):
			// Coarsened: the caller learns only that the code did not work
			h.writeError(w, http.StatusUnauthorized, CodeOTPInvalid, "Invalid or expired code", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{"message": "Code verified"})
}

// validateRequest runs struct-tag validation, returning per-field details
func (h *Handler) validateRequest(req interface{}) map[string][]string {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	details := make(map[string][]string)
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			field := strings.ToLower(fe.Field())
			details[field] = append(details[field], "failed on "+fe.Tag()+" validation")
		}
	} else {
		details["request"] = append(details["request"], "invalid request")
	}
	return details
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
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	})
}
