package weather

// Advisory categories, checked in this order.
const (
	CategoryPostponeSpraying   = "postpone_spraying"
	CategoryIrrigationPlanning = "irrigation_planning"
	CategoryHeatStress         = "heat_stress"
	CategoryFrostWatch         = "frost_watch"
	CategoryWindHazard         = "wind_hazard"
	CategoryFavorable          = "favorable"
)

// Advisory is a short field-work recommendation derived from a reading.
type Advisory struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Advise classifies a reading. The first matching rule wins.
func Advise(r Reading) Advisory {
	switch {
	case r.PrecipitationProbability > 70:
		return Advisory{CategoryPostponeSpraying, "Rain is likely. Postpone spraying and fertilizer application."}
	case r.PrecipitationProbability >= 40:
		return Advisory{CategoryIrrigationPlanning, "Rain is possible. Plan irrigation around the forecast."}
	case r.Temperature > 35:
		return Advisory{CategoryHeatStress, "High heat expected. Irrigate early or late in the day and watch for crop stress."}
	case r.Temperature < 15:
		return Advisory{CategoryFrostWatch, "Cool conditions. Protect sensitive seedlings from cold."}
	case r.WindSpeed > 20:
		return Advisory{CategoryWindHazard, "Strong wind. Avoid spraying and secure young plants."}
	default:
		return Advisory{CategoryFavorable, "Conditions are favorable for regular field work."}
	}
}
