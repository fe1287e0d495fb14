package routes

import (
	"net/http"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/handlers"
	"github.com/go-chi/chi/v5"
)

// Guards are the per-route middlewares.
type Guards struct {
	Session func(http.Handler) http.Handler
	Admin   func(http.Handler) http.Handler
}

func SetupRoutes(r chi.Router, h *handlers.Handler, guards Guards) {
	// Health check
	r.Get("/health", h.Health)

	// OTP auth routes
	r.Post("/api/auth/otp/send", h.SendOTP)
	r.Post("/api/auth/otp/verify", h.VerifyOTP)
	r.Post("/api/auth/logout", h.Logout)

	// Weather (public; cached per coordinate bucket)
	r.Get("/api/weather", h.GetWeather)

	// Per-user context routes
	r.Group(func(r chi.Router) {
		r.Use(guards.Session)
		r.Get("/api/context", h.GetContext)
		r.Put("/api/context/profile", h.UpdateProfile)
		r.Post("/api/context/location", h.UpdateLocation)
		r.Post("/api/context/chats", h.AppendChats)
		r.Post("/api/advice", h.Ask)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(guards.Admin)
		r.Delete("/api/admin/context", h.DeleteContext)
		r.Put("/api/admin/unblock-ip", h.UnblockIP)
	})
}
