package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/pkg/utils"
)

// Accepted spellings per canonical field. Callers send whichever their client library produces.
var (
	locationAddressKeys   = []string{"address"}
	locationLatitudeKeys  = []string{"latitude", "lat"}
	locationLongitudeKeys = []string{"longitude", "lon", "lng"}
	locationPrecisionKeys = []string{"precisionLabel", "precision_label", "precision"}
	locationRawTextKeys   = []string{"rawText", "raw_text", "raw"}

	weatherTemperatureKeys = []string{"temperature", "temp"}
	weatherHumidityKeys    = []string{"humidity"}
	weatherConditionKeys   = []string{"condition", "description"}
	weatherWindKeys        = []string{"windSpeed", "wind_speed", "wind"}
	weatherPrecipKeys      = []string{"precipitationProbability", "precipitation_probability", "precipitation", "pop"}
	weatherSourceKeys      = []string{"source"}
)

// SanitizeProfile trims every supplied field, turns blanks into nil and validates the rest.
func SanitizeProfile(p Profile) (Profile, error) {
	out := Profile{
		Name:              trimmedOrNil(p.Name),
		Email:             trimmedOrNil(p.Email),
		Phone:             trimmedOrNil(p.Phone),
		PreferredLanguage: trimmedOrNil(p.PreferredLanguage),
	}
	if out.Name != nil {
		if err := utils.ValidateName(*out.Name); err != nil {
			return Profile{}, err
		}
	}
	if out.Email != nil {
		if err := utils.ValidateEmail(*out.Email); err != nil {
			return Profile{}, err
		}
	}
	if out.Phone != nil {
		if err := utils.ValidatePhone(*out.Phone); err != nil {
			return Profile{}, err
		}
	}
	if out.PreferredLanguage != nil {
		lang, err := utils.NormalizeLanguage(*out.PreferredLanguage)
		if err != nil {
			return Profile{}, err
		}
		out.PreferredLanguage = &lang
	}
	return out, nil
}

// NormalizeLocation maps a loosely shaped payload onto Location.
// It returns (nil, nil) when the payload carries nothing meaningful so the stored value is kept.
func NormalizeLocation(raw map[string]any, now time.Time) (*Location, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var (
		loc Location
		err error
	)
	if loc.Address, err = pickString(raw, "address", locationAddressKeys); err != nil {
		return nil, err
	}
	if loc.Latitude, err = pickFloat(raw, "latitude", locationLatitudeKeys); err != nil {
		return nil, err
	}
	if loc.Longitude, err = pickFloat(raw, "longitude", locationLongitudeKeys); err != nil {
		return nil, err
	}
	if loc.PrecisionLabel, err = pickString(raw, "precision_label", locationPrecisionKeys); err != nil {
		return nil, err
	}
	if loc.RawText, err = pickString(raw, "raw_text", locationRawTextKeys); err != nil {
		return nil, err
	}

	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		return nil, &utils.ValidationError{Field: "location", Message: "Latitude and longitude must be supplied together"}
	}
	if loc.Latitude != nil {
		if err := ValidateCoordinates(*loc.Latitude, *loc.Longitude); err != nil {
			return nil, err
		}
	}

	// Precision alone describes nothing.
	if loc.Address == nil && loc.Latitude == nil && loc.RawText == nil {
		return nil, nil
	}
	loc.UpdatedAt = now
	return &loc, nil
}

// NormalizeWeather maps a loosely shaped payload onto WeatherSnapshot.
// It returns (nil, nil) when no reading is present.
func NormalizeWeather(raw map[string]any, now time.Time) (*WeatherSnapshot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var (
		w   WeatherSnapshot
		err error
	)
	if w.Temperature, err = pickFloat(raw, "temperature", weatherTemperatureKeys); err != nil {
		return nil, err
	}
	if w.Humidity, err = pickFloat(raw, "humidity", weatherHumidityKeys); err != nil {
		return nil, err
	}
	if w.Condition, err = pickString(raw, "condition", weatherConditionKeys); err != nil {
		return nil, err
	}
	if w.WindSpeed, err = pickFloat(raw, "wind_speed", weatherWindKeys); err != nil {
		return nil, err
	}
	if w.PrecipitationProbability, err = pickFloat(raw, "precipitation_probability", weatherPrecipKeys); err != nil {
		return nil, err
	}
	if w.Source, err = pickString(raw, "source", weatherSourceKeys); err != nil {
		return nil, err
	}

	if w.Humidity != nil && (*w.Humidity < 0 || *w.Humidity > 100) {
		return nil, &utils.ValidationError{Field: "humidity", Message: "Humidity must be between 0 and 100"}
	}
	if w.PrecipitationProbability != nil && (*w.PrecipitationProbability < 0 || *w.PrecipitationProbability > 100) {
		return nil, &utils.ValidationError{Field: "precipitation_probability", Message: "Precipitation probability must be between 0 and 100"}
	}
	if w.WindSpeed != nil && *w.WindSpeed < 0 {
		return nil, &utils.ValidationError{Field: "wind_speed", Message: "Wind speed must not be negative"}
	}

	if w.Temperature == nil && w.Humidity == nil && w.Condition == nil &&
		w.WindSpeed == nil && w.PrecipitationProbability == nil {
		return nil, nil
	}
	w.UpdatedAt = now
	return &w, nil
}

// ValidateCoordinates checks latitude and longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &utils.ValidationError{Field: "latitude", Message: "Latitude must be between -90 and 90"}
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return &utils.ValidationError{Field: "longitude", Message: "Longitude must be between -180 and 180"}
	}
	return nil
}

// NormalizeRole maps anything other than "assistant" to the user role.
func NormalizeRole(role string) ChatRole {
	if strings.EqualFold(strings.TrimSpace(role), string(RoleAssistant)) {
		return RoleAssistant
	}
	return RoleUser
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// pickString reads the first present alias. Two aliases with different values are rejected.
func pickString(raw map[string]any, field string, keys []string) (*string, error) {
	var out *string
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, &utils.ValidationError{Field: field, Message: fmt.Sprintf("%s must be a string", field)}
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if out != nil && *out != s {
			return nil, ambiguous(field)
		}
		out = &s
	}
	return out, nil
}

func pickFloat(raw map[string]any, field string, keys []string) (*float64, error) {
	var out *float64
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		f, present, err := toFloat(v)
		if err != nil {
			return nil, &utils.ValidationError{Field: field, Message: fmt.Sprintf("%s must be a number", field)}
		}
		if !present {
			continue
		}
		if out != nil && *out != f {
			return nil, ambiguous(field)
		}
		out = &f
	}
	return out, nil
}

func toFloat(v any) (float64, bool, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false, err
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, err
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("not a finite number")
	}
	return f, true, nil
}

func ambiguous(field string) error {
	return &utils.ValidationError{Field: field, Message: fmt.Sprintf("%s was supplied more than once with different values", field)}
}
