package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
)

// Provider fetches the current reading for a coordinate pair.
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64) (Reading, error)
}

// OpenWeatherProvider reads the first slot of the OpenWeatherMap forecast API.
type OpenWeatherProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenWeatherProvider returns a provider whose Fetch fails with
// apperr.ErrNotConfigured when apiKey is empty.
func NewOpenWeatherProvider(apiKey, baseURL string, client *http.Client) *OpenWeatherProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenWeatherProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type forecastResponse struct {
	List []struct {
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, lat, lon float64) (Reading, error) {
	if p.apiKey == "" {
		return Reading{}, apperr.ErrNotConfigured
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("units", "metric")
	q.Set("cnt", "1")
	q.Set("appid", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/data/2.5/forecast?"+q.Encode(), nil)
	if err != nil {
		return Reading{}, apperr.Transient("failed to build weather request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Do returns *url.Error, whose message repeats the URL and with it the key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return Reading{}, apperr.Transient("weather provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Reading{}, apperr.RateLimited("weather provider rate limit reached", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reading{}, apperr.Transient("weather provider returned an error", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Reading{}, apperr.Transient("failed to decode weather response", err)
	}
	if len(body.List) == 0 {
		return Reading{}, apperr.Transient("weather response has no forecast", nil)
	}

	slot := body.List[0]
	condition := ""
	if len(slot.Weather) > 0 {
		condition = slot.Weather[0].Description
		if condition == "" {
			condition = slot.Weather[0].Main
		}
	}
	return Reading{
		Temperature:              slot.Main.Temp,
		Humidity:                 slot.Main.Humidity,
		Condition:                condition,
		WindSpeed:                slot.Wind.Speed * 3.6,
		PrecipitationProbability: slot.Pop * 100,
		Source:                   "openweathermap",
	}, nil
}
