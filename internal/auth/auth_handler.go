package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// APIResponse represents the standard API response format
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

// AuthHandler handles HTTP requests for authentication endpoints
type AuthHandler struct {
	authService *AuthService
	validate    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authService *AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
	}
}

// Login handles password authentication
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if details := h.validateRequest(req); details != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	response, err := h.authService.Login(r.Context(), req, clientInfoFromRequest(r, req.DeviceInfo, req.Location))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// LoginOTP handles passwordless authentication with a login code
// POST /api/v1/auth/login/otp
func (h *AuthHandler) LoginOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if details := h.validateRequest(req); details != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	response, err := h.authService.LoginWithOTP(r.Context(), req, clientInfoFromRequest(r, req.DeviceInfo, req.Location))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// Register handles account creation
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	response, validationErrors, err := h.authService.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			h.writeError(w, http.StatusConflict, CodeEmailExists, "An account with this email already exists", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	if len(validationErrors) > 0 {
		details := make(map[string][]string)
		for _, ve := range validationErrors {
			details[ve.Field] = append(details[ve.Field], ve.Message)
		}
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	h.writeSuccess(w, http.StatusCreated, response)
}

// VerifyRegistration activates a pending account with its register code
// POST /api/v1/auth/register/verify
func (h *AuthHandler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req VerifyRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if details := h.validateRequest(req); details != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	if err := h.authService.VerifyRegistration(r.Context(), req); err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{"message": "Account verified"})
}

// Logout revokes the presented session
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenMissing, "Authorization header is required", nil)
		return
	}

	if err := h.authService.Logout(r.Context(), token); err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// writeAuthError maps service errors onto HTTP responses. Credential and OTP
// failures stay deliberately coarse.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password", nil)
	case errors.Is(err, ErrAccountInactive):
		h.writeError(w, http.StatusForbidden, CodeAccountInactive, "Account is inactive", nil)
	case errors.Is(err, ErrLockedOut):
		h.writeError(w, http.StatusTooManyRequests, CodeLockedOut, "Too many attempts, try again later", nil)
	case errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrSessionNotFound):
		h.writeError(w, http.StatusUnauthorized, CodeSessionInvalid, "Invalid or expired session", nil)
	case errors.Is(err, ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "Service temporarily unavailable", nil)
	case isOTPError(err):
		// All OTP failures share one externally visible message
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid or expired code", nil)
	default:
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// validateRequest runs struct-tag validation, returning per-field details
func (h *AuthHandler) validateRequest(req interface{}) map[string][]string {
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
func (h *AuthHandler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *AuthHandler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// clientInfoFromRequest assembles the per-request client metadata
func clientInfoFromRequest(r *http.Request, deviceInfo, location string) ClientInfo {
	return ClientInfo{
		IPAddress:  GetClientIP(r),
		UserAgent:  r.UserAgent(),
		DeviceInfo: deviceInfo,
		Location:   location,
	}
}

// bearerToken extracts the bearer token from the Authorization header
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// GetClientIP extracts the client IP address from the request
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
