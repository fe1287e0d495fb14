package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/AnshRaj112/krishi-advisor-backend/pkg/clientip"
)

// Advice rate limit: per-IP, different limits for auth vs anonymous.
// Every call costs a language model request.
// Auth: 30 req/min, burst 10. Anonymous: 10 req/min, burst 3.

const (
	adviceAuthRPS   = 0.5 // 30/min
	adviceAuthBurst = 10
	adviceAnonRPS   = 0.17 // ~10/min
	adviceAnonBurst = 3
)

// hasBearer checks for a Bearer token in the Authorization header.
func hasBearer(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && len(strings.TrimPrefix(auth, "Bearer ")) > 0
}

// Advice applies rate limiting only to POST /api/advice and reports the
// bucket size in X-RateLimit-Limit.
func (l *RateLimits) Advice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/advice" {
			next.ServeHTTP(w, r)
			return
		}

		key := clientip.LimiterKey(r)
		reg, limit := l.adviceAnon, adviceAnonBurst
		if hasBearer(r) {
			reg, limit = l.adviceAuth, adviceAuthBurst
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))

		if !reg.allow(key) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			writeTooManyRequests(w, "Too many advice requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
