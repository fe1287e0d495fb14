package weather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
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

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	reading  Reading
	err      error
	lastLat  float64
	lastLon  float64
	started  chan struct{}
	release  chan struct{}
	fetchCtx func(ctx context.Context) error
}

func (p *fakeProvider) Fetch(ctx context.Context, lat, lon float64) (Reading, error) {
	p.mu.Lock()
	p.calls++
	p.lastLat, p.lastLon = lat, lon
	reading, err, started, release, hook := p.reading, p.err, p.started, p.release, p.fetchCtx
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return Reading{}, herr
		}
	}
	return reading, err
}

func (p *fakeProvider) set(reading Reading, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reading, p.err = reading, err
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var punePayload = Reading{
	Temperature:              29.5,
	Humidity:                 55,
	Condition:                "scattered clouds",
	WindSpeed:                12.6,
	PrecipitationProbability: 20,
	Source:                   "openweathermap",
}

func newTestCache(t *testing.T, p Provider, clock *fakeClock, opts ...Option) *Cache {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewCache(p, zaptest.NewLogger(t), opts...)
}

func TestCacheServesFreshEntries(t *testing.T) {
	clock := newFakeClock()
	p := &fakeProvider{reading: punePayload}
	c := newTestCache(t, p, clock)
	ctx := context.Background()

	first, err := c.Get(ctx, 18.5204, 73.8567)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, punePayload, first.Payload)

	clock.Advance(5 * time.Minute)
	second, err := c.Get(ctx, 18.5196, 73.8553)
	require.NoError(t, err)
	assert.True(t, second.Cached, "same bucket within TTL")
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, 1, p.callCount())
}

func TestCacheQueriesBucketCoordinates(t *testing.T) {
	p := &fakeProvider{reading: punePayload}
	c := newTestCache(t, p, newFakeClock())

	_, err := c.Get(context.Background(), 18.5204, 73.8567)
	require.NoError(t, err)
	assert.Equal(t, 18.52, p.lastLat)
	assert.Equal(t, 73.86, p.lastLon)
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	clock := newFakeClock()
	p := &fakeProvider{reading: punePayload}
	c := newTestCache(t, p, clock)
	ctx := context.Background()

	_, err := c.Get(ctx, 18.52, 73.85)
	require.NoError(t, err)

	updated := punePayload
	updated.Temperature = 31
	p.set(updated, nil)
	clock.Advance(DefaultTTL)

	res, err := c.Get(ctx, 18.52, 73.85)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.False(t, res.Stale)
	assert.Equal(t, 31.0, res.Payload.Temperature)
	assert.Equal(t, 2, p.callCount())
}

func TestCacheServesStaleOnFailure(t *testing.T) {
	clock := newFakeClock()
	p := &fakeProvider{reading: punePayload}
	c := newTestCache(t, p, clock)
	ctx := context.Background()

	_, err := c.Get(ctx, 18.52, 73.85)
	require.NoError(t, err)

	for _, failure := range []error{
		apperr.Transient("upstream down", errors.New("status 500")),
		apperr.RateLimited("slow down", errors.New("status 429")),
		apperr.ErrNotConfigured,
	} {
		p.set(Reading{}, failure)
		clock.Advance(DefaultTTL + time.Second)

		res, err := c.Get(ctx, 18.52, 73.85)
		require.NoError(t, err)
		assert.True(t, res.Cached)
		assert.True(t, res.Stale)
		assert.False(t, res.Fallback)
		assert.Equal(t, punePayload, res.Payload)
	}
}

func TestCacheFallsBackWithoutHistory(t *testing.T) {
	p := &fakeProvider{err: apperr.ErrNotConfigured}
	c := newTestCache(t, p, newFakeClock())

	res, err := c.Get(context.Background(), 12.97, 77.59)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.False(t, res.Stale)
	assert.Equal(t, FallbackReading(), res.Payload)
	assert.Equal(t, 0, c.Len(), "fallback payloads are not cached")
}

func TestCacheRejectsBadCoordinates(t *testing.T) {
	p := &fakeProvider{reading: punePayload}
	c := newTestCache(t, p, newFakeClock())

	for _, tc := range []struct{ lat, lon float64 }{{91, 0}, {-90.5, 0}, {0, 180.01}, {0, -181}} {
		_, err := c.Get(context.Background(), tc.lat, tc.lon)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "lat=%v lon=%v", tc.lat, tc.lon)
	}
	assert.Equal(t, 0, p.callCount())
}

func TestCacheCoalescesConcurrentRefreshes(t *testing.T) {
	p := &fakeProvider{
		reading: punePayload,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := newTestCache(t, p, newFakeClock())

	var wg sync.WaitGroup
	results := make([]Result, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Get(context.Background(), 18.52, 73.85)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	<-p.started
	time.Sleep(20 * time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.Equal(t, 1, p.callCount())
	for _, res := range results {
		assert.Equal(t, punePayload, res.Payload)
	}
}

func TestCacheFetchOutlivesCaller(t *testing.T) {
	p := &fakeProvider{
		reading: punePayload,
		fetchCtx: func(ctx context.Context) error {
			return ctx.Err()
		},
	}
	c := newTestCache(t, p, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Get(ctx, 18.52, 73.85)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, punePayload, res.Payload)
}

func TestCacheBoundsUpstreamCalls(t *testing.T) {
	p := &fakeProvider{
		fetchCtx: func(ctx context.Context) error {
			<-ctx.Done()
			return apperr.Transient("weather provider unreachable", ctx.Err())
		},
	}
	c := newTestCache(t, p, newFakeClock(), WithTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := c.Get(context.Background(), 18.52, 73.85)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	p := &fakeProvider{reading: punePayload}
	c := newTestCache(t, p, clock)
	ctx := context.Background()

	_, err := c.Get(ctx, 18.52, 73.85)
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = c.Get(ctx, 19.07, 72.87)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Sweep(time.Hour))
	assert.Equal(t, 1, c.Len())
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	c := newTestCache(t, &fakeProvider{}, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestBucket(t *testing.T) {
	key, lat, lon := Bucket(18.5204, 73.8567)
	assert.Equal(t, "18.52,73.86", key)
	assert.Equal(t, 18.52, lat)
	assert.Equal(t, 73.86, lon)

	key, _, _ = Bucket(-0.001, 0.004)
	assert.Equal(t, "0.00,0.00", key)
}
