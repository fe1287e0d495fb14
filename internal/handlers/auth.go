package handlers

import (
	"net/http"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/middleware"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/services"
	"go.uber.org/zap"
)

// SendOTPRequest asks for a login code.
type SendOTPRequest struct {
	Email string `json:"email"`
}

type SendOTPResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyOTPRequest carries the code plus the signup details used for new emails.
type VerifyOTPRequest struct {
	Email             string `json:"email"`
	OTP               string `json:"otp"`
	Name              string `json:"name,omitempty"`
	Phone             string `json:"phone,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
}

// AuthResponse is returned after a successful verification.
type AuthResponse struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	User      models.Identity     `json:"user"`
	Token     string              `json:"token"`
	IsNewUser bool                `json:"is_new_user"`
	Context   *models.UserContext `json:"context"`
}

// SendOTP handles POST /api/auth/otp/send
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	expiresAt, err := h.auth.SendCode(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SendOTPResponse{
		Success:   true,
		Message:   "Verification code sent",
		ExpiresAt: expiresAt,
	})
}

// VerifyOTP handles POST /api/auth/otp/verify
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.auth.VerifyAndLogin(r.Context(), req.Email, req.OTP, services.SignupDetails{
		Name:              req.Name,
		Phone:             req.Phone,
		PreferredLanguage: req.PreferredLanguage,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, message := http.StatusOK, "Signed in successfully"
	if res.IsNewUser {
		status, message = http.StatusCreated, "Account created successfully"
	}
	writeJSON(w, status, AuthResponse{
		Success:   true,
		Message:   message,
		User:      res.Identity,
		Token:     res.Token,
		IsNewUser: res.IsNewUser,
		Context:   res.Context,
	})
}

// Logout handles POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Invalidate(r.Context(), middleware.BearerToken(r)); err != nil {
		h.logger.Warn("Failed to invalidate session", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Signed out"})
}
