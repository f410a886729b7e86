package models

import (
	"time"
)

// WeatherForecast is the forecast for a single hour at a station location
type WeatherForecast struct {
	Timestamp          time.Time `json:"timestamp"`
	TemperatureCelsius float64   `json:"temperature_celsius"`
	PrecipitationMM    float64   `json:"precipitation_mm"`
	SunshineHours      float64   `json:"sunshine_hours"`
	WindSpeedMS        float64   `json:"wind_speed_ms"`
	Source             string    `json:"source,omitempty"`
}
