package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeMailer records the last code sent per address.
type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
	err   error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{codes: make(map[string]string)}
}

func (m *fakeMailer) SendOTP(_ context.Context, email, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	m.codes[email] = code
	return m.err
}

func (m *fakeMailer) lastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

func newContextService(clock *fakeClock) *ContextService {
	return NewContextService(store.NewMemoryDocumentStore(), zap.NewNop(), WithContextClock(clock.Now))
}

func newOtp(clock *fakeClock, mailer Mailer) *OtpAuthenticator {
	return NewOtpAuthenticator(
		store.NewMemoryOtpStore(clock.Now),
		mailer,
		OtpSettings{TTL: 10 * time.Minute, MaxAttempts: 3, Secret: []byte("test-secret")},
		zap.NewNop(),
		WithOtpClock(clock.Now),
	)
}

func newRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func strPtr(s string) *string { return &s }
