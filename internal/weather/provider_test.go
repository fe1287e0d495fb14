package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forecastBody = `{
  "cod": "200",
  "list": [{
    "main": {"temp": 31.2, "humidity": 48},
    "weather": [{"main": "Clouds", "description": "broken clouds"}],
    "wind": {"speed": 5},
    "pop": 0.35
  }]
}`

func TestOpenWeatherProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "18.52", q.Get("lat"))
		assert.Equal(t, "73.86", q.Get("lon"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "1", q.Get("cnt"))
		assert.Equal(t, "test-key", q.Get("appid"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider("test-key", srv.URL+"/", srv.Client())
	got, err := p.Fetch(context.Background(), 18.52, 73.86)
	require.NoError(t, err)

	assert.Equal(t, 31.2, got.Temperature)
	assert.Equal(t, 48.0, got.Humidity)
	assert.Equal(t, "broken clouds", got.Condition)
	assert.InDelta(t, 18.0, got.WindSpeed, 1e-9)
	assert.InDelta(t, 35.0, got.PrecipitationProbability, 1e-9)
	assert.Equal(t, "openweathermap", got.Source)
}

func TestOpenWeatherProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, apperr.KindRateLimited},
		{"server error", http.StatusBadGateway, `{}`, apperr.KindTransient},
		{"bad key", http.StatusUnauthorized, `{"cod":401}`, apperr.KindTransient},
		{"garbage", http.StatusOK, `not json`, apperr.KindTransient},
		{"empty list", http.StatusOK, `{"list":[]}`, apperr.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenWeatherProvider("k", srv.URL, srv.Client()).Fetch(context.Background(), 1, 2)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestOpenWeatherProviderUnreachableHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	client := srv.Client()
	srv.Close()

	_, err := NewOpenWeatherProvider("secret-key", url, client).Fetch(context.Background(), 1, 2)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTransient))
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestOpenWeatherProviderNotConfigured(t *testing.T) {
	_, err := NewOpenWeatherProvider("", "http://unused", nil).Fetch(context.Background(), 1, 2)
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)
}
