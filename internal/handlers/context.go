package handlers

import (
	"net/http"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/middleware"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/services"
)

// AppendChatsRequest is the body of POST /api/context/chats
type AppendChatsRequest struct {
	Messages []models.ChatInput `json:"messages"`
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Success: false, Message: "Authentication required", Code: "unauthorized"})
	}
	return id, ok
}

// GetContext handles GET /api/context
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	doc, err := h.contexts.Fetch(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Success: true, Context: doc})
}

// UpdateProfile handles PUT /api/context/profile. Only supplied fields change.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var profile models.Profile
	if err := decodeJSON(w, r, &profile); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.contexts.EnsureExists(r.Context(), userID, profile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Success: true, Message: "Profile updated", Context: doc})
}

// UpdateLocation handles POST /api/context/location
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req services.LocationUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.contexts.UpdateLocationAndWeather(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Success: true, Message: "Location updated", Context: doc})
}

// AppendChats handles POST /api/context/chats
func (h *Handler) AppendChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req AppendChatsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.contexts.AppendChatMessages(r.Context(), userID, req.Messages)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Success: true, Context: doc})
}

// DeleteContext handles DELETE /api/admin/context?user_id=
func (h *Handler) DeleteContext(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, r, apperr.Validation("user_id", "user_id query parameter is required"))
		return
	}
	if err := h.contexts.Delete(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "User context deleted"})
}
