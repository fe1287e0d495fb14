package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/pkg/clientip"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// RateLimitWindow is 120 seconds
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the maximum number of requests allowed in the window
	RateLimitMaxRequests = 25
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked
	BlockedIPDuration = 24 * time.Hour
)

// RedisRateLimiter is a fixed-window limiter shared by all instances through
// Redis. Clients exceeding the window are blocked for BlockedIPDuration.
type RedisRateLimiter struct {
	client      *redis.Client
	logger      *zap.Logger
	window      time.Duration
	maxRequests int
	blockFor    time.Duration
}

func NewRedisRateLimiter(client *redis.Client, logger *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		logger:      logger,
		window:      RateLimitWindow,
		maxRequests: RateLimitMaxRequests,
		blockFor:    BlockedIPDuration,
	}
}

// Middleware provides rate limiting with IP blocking. Redis errors fail open.
func (l *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientip.LimiterKey(r)

		blocked, err := l.IsBlocked(ctx, ip)
		if err == nil && blocked {
			writeTooManyRequests(w, "Your IP has been temporarily blocked due to excessive requests. Please try again later.")
			return
		}

		count, err := l.hit(ctx, ip)
		if err != nil {
			l.logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(l.maxRequests) {
			if err := l.client.Set(ctx, BlockedIPKeyPrefix+ip, "1", l.blockFor).Err(); err != nil {
				l.logger.Warn("Failed to block IP", zap.String("ip", ip), zap.Error(err))
			} else {
				l.logger.Warn("IP blocked for excessive requests", zap.String("ip", ip), zap.Int64("count", count))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(fmt.Sprintf(`{"success":false,"message":"Rate limit exceeded. Your IP has been temporarily blocked. Please try again later.","retry_after":%d}`, int(l.window.Seconds()))))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.maxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(l.maxRequests)-count, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(l.window).Unix(), 10))

		next.ServeHTTP(w, r)
	})
}

// hitScript increments the window counter and starts the window on the first hit.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// hit counts one request in the current window. The window is not extended by later requests.
func (l *RedisRateLimiter) hit(ctx context.Context, ip string) (int64, error) {
	return hitScript.Run(ctx, l.client, []string{RateLimitKeyPrefix + ip}, l.window.Milliseconds()).Int64()
}

// Unblock removes a limiter key from the blocked list (admin function)
func (l *RedisRateLimiter) Unblock(ctx context.Context, key string) error {
	return l.client.Del(ctx, BlockedIPKeyPrefix+key).Err()
}

// IsBlocked checks if a limiter key is currently blocked
func (l *RedisRateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	count, err := l.client.Exists(ctx, BlockedIPKeyPrefix+key).Result()
	return count > 0, err
}
