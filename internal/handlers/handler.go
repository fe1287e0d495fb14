package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/services"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/weather"
	"github.com/AnshRaj112/krishi-advisor-backend/pkg/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Authenticator issues and verifies login codes.
type Authenticator interface {
	SendCode(ctx context.Context, email string) (time.Time, error)
	VerifyAndLogin(ctx context.Context, email, code string, details services.SignupDetails) (*services.AuthResult, error)
}

// SessionRevoker ends a bearer session.
type SessionRevoker interface {
	Invalidate(ctx context.Context, token string) error
}

// ContextManager reads and writes user context aggregates.
type ContextManager interface {
	Fetch(ctx context.Context, userID string) (*models.UserContext, error)
	EnsureExists(ctx context.Context, userID string, profile models.Profile) (*models.UserContext, error)
	UpdateLocationAndWeather(ctx context.Context, userID string, update services.LocationUpdate) (*models.UserContext, error)
	AppendChatMessages(ctx context.Context, userID string, inputs []models.ChatInput) (*models.UserContext, error)
	Delete(ctx context.Context, userID string) error
}

type WeatherSource interface {
	Get(ctx context.Context, lat, lon float64) (weather.Result, error)
}

type AdviceGiver interface {
	Ask(ctx context.Context, userID, question string) (*services.Advice, error)
}

// IPBlocklist is the rate limiter's list of blocked clients, keyed by limiter key.
type IPBlocklist interface {
	IsBlocked(ctx context.Context, key string) (bool, error)
	Unblock(ctx context.Context, key string) error
}

// Handler serves the HTTP API.
type Handler struct {
	auth      Authenticator
	sessions  SessionRevoker
	contexts  ContextManager
	weather   WeatherSource
	advisor   AdviceGiver
	blocklist IPBlocklist
	logger    *zap.Logger
}

func New(auth Authenticator, sessions SessionRevoker, contexts ContextManager, ws WeatherSource, advisor AdviceGiver, blocklist IPBlocklist, logger *zap.Logger) *Handler {
	return &Handler{
		auth:      auth,
		sessions:  sessions,
		contexts:  contexts,
		weather:   ws,
		advisor:   advisor,
		blocklist: blocklist,
		logger:    logger,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	Code              string `json:"code"`
	Field             string `json:"field,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// ContextResponse wraps a user context.
type ContextResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Context *models.UserContext `json:"context"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindInvalidCode:
		return http.StatusUnauthorized
	case apperr.KindAttemptsExhausted:
		return http.StatusTooManyRequests
	case apperr.KindTransient, apperr.KindRateLimited, apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindDelivery:
		return http.StatusBadGateway
	case apperr.KindConcurrency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	resp := ErrorResponse{Success: false, Code: string(kind), Message: "Internal server error"}

	var verr *utils.ValidationError
	var aerr *apperr.Error
	switch {
	case errors.As(err, &verr):
		resp.Message = verr.Message
		resp.Field = verr.Field
	case errors.As(err, &aerr):
		resp.Message = aerr.Message
		if n, ok := apperr.RemainingAttempts(err); ok {
			resp.RemainingAttempts = &n
		}
	}

	status := statusFor(kind)
	if apperr.IsRetryable(err) {
		w.Header().Set("Retry-After", "5")
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body. Numbers are kept as json.Number so
// loosely typed payloads reach the normalizers intact.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("body", "Request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("body", "Request body is too large")
		}
		return apperr.Validation("body", "Invalid request body")
	}
	return nil
}
