package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL     = 10 * time.Minute
	DefaultTimeout = 5 * time.Second
)

// Result is what Get hands back. Cached is set when the payload did not come
// from an upstream call made for this request.
type Result struct {
	Payload   Reading   `json:"payload"`
	Cached    bool      `json:"cached"`
	Stale     bool      `json:"stale"`
	Fallback  bool      `json:"fallback"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

type entry struct {
	reading   Reading
	fetchedAt time.Time
}

// Cache keeps the last good reading per 0.01 degree bucket. It never fails
// for valid coordinates: upstream trouble is answered with the previous
// reading, or FallbackReading when there is none.
type Cache struct {
	provider Provider
	logger   *zap.Logger
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithTimeout bounds each upstream call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Cache) { c.timeout = timeout }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(provider Provider, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		logger:   logger,
		ttl:      DefaultTTL,
		timeout:  DefaultTimeout,
		now:      time.Now,
		entries:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bucket rounds coordinates to two decimals and returns the cache key with the
// rounded values. The upstream is always asked for the rounded point.
func Bucket(lat, lon float64) (string, float64, float64) {
	blat, blon := round2(lat), round2(lon)
	return fmt.Sprintf("%.2f,%.2f", blat, blon), blat, blon
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // no "-0.00" keys
	}
	return r
}

func (c *Cache) Get(ctx context.Context, lat, lon float64) (Result, error) {
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return Result{}, err
	}
	key, blat, blon := Bucket(lat, lon)

	if res, ok := c.fresh(key); ok {
		return res, nil
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		// A flight that finished just before this one may have refilled the bucket.
		if res, ok := c.fresh(key); ok {
			return res, nil
		}
		return c.refresh(ctx, key, blat, blon), nil
	})
	return v.(Result), nil
}

func (c *Cache) fresh(key string) (Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return Result{}, false
	}
	return Result{Payload: e.reading, Cached: true, FetchedAt: e.fetchedAt}, true
}

func (c *Cache) refresh(ctx context.Context, key string, lat, lon float64) Result {
	// Callers going away must not abort a fetch other callers are waiting on.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	reading, err := c.provider.Fetch(fetchCtx, lat, lon)
	cancel()

	if err == nil {
		now := c.now()
		c.mu.Lock()
		c.entries[key] = entry{reading: reading, fetchedAt: now}
		c.mu.Unlock()
		return Result{Payload: reading, FetchedAt: now}
	}

	if errors.Is(err, apperr.ErrNotConfigured) {
		c.logger.Error("Weather provider is not configured, serving cached or fallback data", zap.String("bucket", key))
	} else {
		c.logger.Warn("Weather refresh failed",
			zap.String("bucket", key),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
	}

	c.mu.RLock()
	prev, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return Result{Payload: prev.reading, Cached: true, Stale: true, FetchedAt: prev.fetchedAt}
	}
	return Result{Payload: FallbackReading(), Fallback: true}
}

// Sweep drops entries fetched more than maxAge ago and reports how many went.
func (c *Cache) Sweep(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.fetchedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (c *Cache) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(maxAge); n > 0 {
				c.logger.Debug("Swept weather cache", zap.Int("removed", n))
			}
		}
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
