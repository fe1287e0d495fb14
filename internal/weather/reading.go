// Package weather serves current conditions per coordinate bucket from a TTL
// cache in front of an upstream provider.
package weather

import (
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
)

// Reading is a normalized weather payload. Wind speed is km/h and
// precipitation probability is a percentage.
type Reading struct {
	Temperature              float64 `json:"temperature"`
	Humidity                 float64 `json:"humidity"`
	Condition                string  `json:"condition"`
	WindSpeed                float64 `json:"wind_speed"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	Source                   string  `json:"source"`
}

// FallbackReading is served when no upstream value has ever been obtained.
func FallbackReading() Reading {
	return Reading{
		Temperature:              25,
		Humidity:                 60,
		Condition:                "Clear",
		WindSpeed:                5,
		PrecipitationProbability: 10,
		Source:                   "fallback",
	}
}

// Snapshot converts the reading into the shape stored on a user context.
func (r Reading) Snapshot(at time.Time) *models.WeatherSnapshot {
	temp, hum, wind, pop := r.Temperature, r.Humidity, r.WindSpeed, r.PrecipitationProbability
	snap := &models.WeatherSnapshot{
		Temperature:              &temp,
		Humidity:                 &hum,
		WindSpeed:                &wind,
		PrecipitationProbability: &pop,
		UpdatedAt:                at,
	}
	if r.Condition != "" {
		cond := r.Condition
		snap.Condition = &cond
	}
	if r.Source != "" {
		src := r.Source
		snap.Source = &src
	}
	return snap
}
