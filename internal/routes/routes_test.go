package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/handlers"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/middleware"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/services"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/store"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/weather"
)

const adminToken = "admin-secret"

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendOTP(_ context.Context, email, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
	return nil
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) Fetch(context.Context, float64, float64) (weather.Reading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return weather.Reading{Temperature: 29, Humidity: 70, Condition: "Clouds", WindSpeed: 8, PrecipitationProbability: 80, Source: "test"}, nil
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type echoModel struct{}

func (echoModel) Generate(context.Context, string) (string, error) {
	return "Hold off on spraying until the rain passes.", nil
}

type app struct {
	router   http.Handler
	redis    *miniredis.Miniredis
	mailer   *captureMailer
	provider *countingProvider
}

func newApp(t *testing.T) *app {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	a := &app{
		redis:    mr,
		mailer:   &captureMailer{codes: make(map[string]string)},
		provider: &countingProvider{},
	}

	contexts := services.NewContextService(store.NewMemoryDocumentStore(), logger)
	otp := services.NewOtpAuthenticator(store.NewMemoryOtpStore(time.Now), a.mailer, services.OtpSettings{
		TTL:         10 * time.Minute,
		MaxAttempts: 3,
		Secret:      []byte("routes-test"),
	}, logger)
	sessions := services.NewSessionStore(client, time.Hour)
	auth := services.NewAuthService(otp, store.NewMemoryUserDirectory(), contexts, sessions, logger)
	cache := weather.NewCache(a.provider, logger)
	advisor := services.NewAdvisor(contexts, cache, echoModel{}, logger)

	r := chi.NewRouter()
	limiter := middleware.NewRedisRateLimiter(client, logger)
	SetupRoutes(r, handlers.New(auth, sessions, contexts, cache, advisor, limiter, logger), Guards{
		Session: middleware.RequireSession(sessions, logger),
		Admin:   middleware.RequireAdminToken(adminToken),
	})
	a.router = r
	return a
}

func (a *app) do(t *testing.T, method, target, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (a *app) login(t *testing.T, email string) (string, string) {
	t.Helper()
	status, _ := a.do(t, http.MethodPost, "/api/auth/otp/send", `{"email":"`+email+`"}`, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := a.do(t, http.MethodPost, "/api/auth/otp/verify",
		`{"email":"`+email+`","otp":"`+a.mailer.code(email)+`","name":"Ravi","preferred_language":"hi"}`, nil)
	require.Equal(t, http.StatusCreated, status)

	user := body["user"].(map[string]any)
	return body["token"].(string), user["id"].(string)
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	status, body := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestFarmerJourney(t *testing.T) {
	a := newApp(t)
	token, userID := a.login(t, "ravi@example.com")

	status, _ := a.do(t, http.MethodGet, "/api/context", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := a.do(t, http.MethodGet, "/api/context", "", bearer(token))
	require.Equal(t, http.StatusOK, status)
	ctxDoc := body["context"].(map[string]any)
	assert.Equal(t, userID, ctxDoc["user_id"])
	assert.Equal(t, "Ravi", ctxDoc["profile"].(map[string]any)["name"])

	status, body = a.do(t, http.MethodPost, "/api/context/location",
		`{"location":{"lat":18.5204,"lng":73.8567,"address":"Pune"}}`, bearer(token))
	require.Equal(t, http.StatusOK, status)
	loc := body["context"].(map[string]any)["location"].(map[string]any)
	assert.Equal(t, "Pune", loc["address"])

	status, body = a.do(t, http.MethodPost, "/api/advice", `{"question":"Can I spray pesticide tomorrow?"}`, bearer(token))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hold off on spraying until the rain passes.", body["answer"])
	assert.Equal(t, weather.CategoryPostponeSpraying, body["advisory"].(map[string]any)["category"])
	chats := body["context"].(map[string]any)["chats"].([]any)
	assert.Len(t, chats, 2)

	// Same bucket as the stored location, so the advice fetch is reused.
	status, body = a.do(t, http.MethodGet, "/api/weather?lat=18.5199&lon=73.8601", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, 1, a.provider.count())

	status, _ = a.do(t, http.MethodPost, "/api/auth/logout", "", bearer(token))
	require.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodGet, "/api/context", "", bearer(token))
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestChatWindowOverHTTP(t *testing.T) {
	a := newApp(t)
	token, _ := a.login(t, "meena@example.com")

	for _, msg := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"} {
		status, _ := a.do(t, http.MethodPost, "/api/context/chats",
			`{"messages":[{"role":"user","message":"`+msg+`"}]}`, bearer(token))
		require.Equal(t, http.StatusOK, status)
	}

	_, body := a.do(t, http.MethodGet, "/api/context", "", bearer(token))
	chats := body["context"].(map[string]any)["chats"].([]any)
	require.Len(t, chats, 5)
	assert.Equal(t, "m3", chats[0].(map[string]any)["message"])
	assert.Equal(t, "m7", chats[4].(map[string]any)["message"])
}

func TestAdminDelete(t *testing.T) {
	a := newApp(t)
	token, userID := a.login(t, "kiran@example.com")

	status, _ := a.do(t, http.MethodDelete, "/api/admin/context?user_id="+userID, "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = a.do(t, http.MethodDelete, "/api/admin/context?user_id="+userID, "",
		map[string]string{"X-Admin-Token": adminToken})
	require.Equal(t, http.StatusOK, status)

	status, body := a.do(t, http.MethodGet, "/api/context", "", bearer(token))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])
}

func TestWrongCodeOverHTTP(t *testing.T) {
	a := newApp(t)
	status, _ := a.do(t, http.MethodPost, "/api/auth/otp/send", `{"email":"sita@example.com"}`, nil)
	require.Equal(t, http.StatusOK, status)

	wrong := "000000"
	if a.mailer.code("sita@example.com") == wrong {
		wrong = "111111"
	}
	status, body := a.do(t, http.MethodPost, "/api/auth/otp/verify",
		`{"email":"sita@example.com","otp":"`+wrong+`","name":"Sita"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, float64(2), body["remaining_attempts"])
}

func TestAdminUnblockIP(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.redis.Set(middleware.BlockedIPKeyPrefix+"203.0.113.7", "1"))
	a.redis.SetTTL(middleware.BlockedIPKeyPrefix+"203.0.113.7", middleware.BlockedIPDuration)

	status, _ := a.do(t, http.MethodPut, "/api/admin/unblock-ip?ip=203.0.113.7", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.True(t, a.redis.Exists(middleware.BlockedIPKeyPrefix+"203.0.113.7"))

	status, body := a.do(t, http.MethodPut, "/api/admin/unblock-ip?ip=203.0.113.7", "",
		map[string]string{"X-Admin-Token": adminToken})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "IP address unblocked successfully", body["message"])
	assert.False(t, a.redis.Exists(middleware.BlockedIPKeyPrefix+"203.0.113.7"))

	// A blocked client gets through again once unblocked.
	client := redis.NewClient(&redis.Options{Addr: a.redis.Addr()})
	defer client.Close()
	r := chi.NewRouter()
	r.Use(middleware.NewRedisRateLimiter(client, zap.NewNop()).Middleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
