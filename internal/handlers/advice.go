package handlers

import (
	"net/http"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/weather"
)

type AdviceRequest struct {
	Question string `json:"question"`
}

type AdviceResponse struct {
	Success  bool                `json:"success"`
	Answer   string              `json:"answer"`
	Advisory *weather.Advisory   `json:"advisory,omitempty"`
	Weather  *weather.Result     `json:"weather,omitempty"`
	Context  *models.UserContext `json:"context"`
}

// Ask handles POST /api/advice
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req AdviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	advice, err := h.advisor.Ask(r.Context(), userID, req.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdviceResponse{
		Success:  true,
		Answer:   advice.Answer,
		Advisory: advice.Advisory,
		Weather:  advice.Weather,
		Context:  advice.Context,
	})
}
