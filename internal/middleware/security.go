package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/pkg/clientip"
	"golang.org/x/time/rate"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerXXSSProtection          = "X-XSS-Protection"
	headerContentSecurityPolicy   = "Content-Security-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerXContentTypeOptions, "nosniff")
		w.Header().Set(headerXFrameOptions, "DENY")
		w.Header().Set(headerXXSSProtection, "1; mode=block")
		w.Header().Set(headerContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// HostCheck returns 403 when r.Host does not match allowedHost (e.g. api.krishi.example).
// allowedHost should be the bare hostname without scheme or port.
func HostCheck(allowedHost string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedHost == "" {
				next.ServeHTTP(w, r)
				return
			}
			reqHost := r.Host
			if host, _, err := net.SplitHostPort(reqHost); err == nil {
				reqHost = host
			}
			if !strings.EqualFold(strings.TrimSpace(reqHost), strings.TrimSpace(allowedHost)) {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte("Forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterTTL             = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// limiterRegistry hands out one token bucket per key and forgets idle keys.
type limiterRegistry struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func newLimiterRegistry(limit rate.Limit, burst int) *limiterRegistry {
	return &limiterRegistry{
		entries: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
	}
}

func (reg *limiterRegistry) allow(key string) bool {
	reg.mu.Lock()
	e, ok := reg.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(reg.limit, reg.burst)}
		reg.entries[key] = e
	}
	now := reg.now()
	e.lastUse = now
	reg.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// cleanup drops keys idle for longer than limiterTTL.
func (reg *limiterRegistry) cleanup() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	now := reg.now()
	removed := 0
	for key, e := range reg.entries {
		if now.Sub(e.lastUse) > limiterTTL {
			delete(reg.entries, key)
			removed++
		}
	}
	return removed
}

func (reg *limiterRegistry) size() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.entries)
}

// --- Global rate limiting (per-IP, 1/s, burst 10) ---

const (
	globalRateLimitRPS   = 1
	globalRateLimitBurst = 10
)

// --- OTP route rate limiting (1 req/5s, burst 2) ---

const (
	otpRateLimitEvery = 5 * time.Second
	otpRateLimitBurst = 2
)

var otpPaths = map[string]bool{
	"/api/auth/otp/send":   true,
	"/api/auth/otp/verify": true,
}

// RateLimits holds the in-process per-IP limiters used in production.
type RateLimits struct {
	global     *limiterRegistry
	otp        *limiterRegistry
	adviceAuth *limiterRegistry
	adviceAnon *limiterRegistry
}

func NewRateLimits() *RateLimits {
	return &RateLimits{
		global:     newLimiterRegistry(rate.Limit(globalRateLimitRPS), globalRateLimitBurst),
		otp:        newLimiterRegistry(rate.Every(otpRateLimitEvery), otpRateLimitBurst),
		adviceAuth: newLimiterRegistry(rate.Limit(adviceAuthRPS), adviceAuthBurst),
		adviceAnon: newLimiterRegistry(rate.Limit(adviceAnonRPS), adviceAnonBurst),
	}
}

// RunCleanup forgets idle clients every few minutes until ctx is done.
func (l *RateLimits) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *RateLimits) cleanup() {
	for _, reg := range []*limiterRegistry{l.global, l.otp, l.adviceAuth, l.adviceAnon} {
		reg.cleanup()
	}
}

// Global limits each IP to 1 req/s, burst 10. Returns 429 when exceeded.
func (l *RateLimits) Global(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.global.allow(clientip.LimiterKey(r)) {
			writeTooManyRequests(w, "Too many requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OtpRoutes applies a stricter limit to the code send/verify routes only. Use after Global.
func (l *RateLimits) OtpRoutes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !otpPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !l.otp.allow(clientip.LimiterKey(r)) {
			writeTooManyRequests(w, "Too many verification attempts. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ProductionSecurity returns middlewares for production: SecurityHeaders → HostCheck → Global → OtpRoutes → Advice.
func ProductionSecurity(allowedHost string, limits *RateLimits) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders,
		HostCheck(allowedHost),
		limits.Global,
		limits.OtpRoutes,
		limits.Advice,
	}
}

func writeTooManyRequests(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}
