package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/pkg/clientip"
)

// UnblockIP handles PUT /api/admin/unblock-ip?ip=
func (h *Handler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ip")
	if raw == "" {
		h.writeError(w, r, apperr.Validation("ip", "ip query parameter is required"))
		return
	}
	key, ok := clientip.ParseKey(raw)
	if !ok {
		h.writeError(w, r, apperr.Validation("ip", "ip must be an IP address or an IPv6 /64 prefix"))
		return
	}

	// Check if IP is actually blocked before unblocking
	blocked, err := h.blocklist.IsBlocked(r.Context(), key)
	if err != nil {
		h.writeError(w, r, apperr.Transient("failed to check block status", err))
		return
	}
	if !blocked {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"message":    "IP address is not currently blocked",
			"ip_address": key,
		})
		return
	}

	if err := h.blocklist.Unblock(r.Context(), key); err != nil {
		h.writeError(w, r, apperr.Transient("failed to unblock IP", err))
		return
	}
	h.logger.Info("IP unblocked by admin", zap.String("ip", key))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "IP address unblocked successfully",
		"ip_address": key,
	})
}
