package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/weather"
)

// WeatherResponse is the body of GET /api/weather
type WeatherResponse struct {
	Success   bool             `json:"success"`
	Payload   weather.Reading  `json:"payload"`
	Advisory  weather.Advisory `json:"advisory"`
	Cached    bool             `json:"cached"`
	Stale     bool             `json:"stale"`
	Fallback  bool             `json:"fallback"`
	FetchedAt *time.Time       `json:"fetched_at,omitempty"`
}

// GetWeather handles GET /api/weather?lat=&lon=
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	lat, err := parseCoordinate(r, "lat")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lon, err := parseCoordinate(r, "lon")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.weather.Get(r.Context(), lat, lon)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := WeatherResponse{
		Success:  true,
		Payload:  res.Payload,
		Advisory: weather.Advise(res.Payload),
		Cached:   res.Cached,
		Stale:    res.Stale,
		Fallback: res.Fallback,
	}
	if !res.FetchedAt.IsZero() {
		resp.FetchedAt = &res.FetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseCoordinate(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, apperr.Validation(name, name+" query parameter is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation(name, name+" must be a number")
	}
	return v, nil
}
