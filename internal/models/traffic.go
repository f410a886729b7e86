package models

import (
	"time"
)

// DateLayout is the DD.MM.YYYY layout used by counter export headers
const DateLayout = "02.01.2006"

// TimestampLayout is the layout of the timestamp column in the combined series
const TimestampLayout = "2006-01-02 15:04:05"

// Station represents a permanent traffic counting station (Zählstelle)
type Station struct {
	StationID string    `json:"station_id" db:"station_id"`
	Alias     string    `json:"alias" db:"alias"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
}

// CounterRecord is a single hourly row extracted from a counter export.
// Date keeps the DD.MM.YYYY form of the table header it belongs to.
type CounterRecord struct {
	StationID      string
	Date           string
	HourBucket     string
	PassengerCount int
	FreightCount   int
	TotalCount     int
	Line           int // 1-based source line, for diagnostics
}

// Observation is a counter record placed on the midpoint of its hour bucket
type Observation struct {
	StationID      string    `json:"station_id" db:"station_id"`
	Timestamp      time.Time `json:"timestamp" db:"observed_at"`
	PassengerCount int       `json:"passenger_count" db:"passenger_count"`
	FreightCount   int       `json:"freight_count" db:"freight_count"`
	TotalCount     int       `json:"total_count" db:"total_count"`
}

// DailyPoint is the total traffic of one station on one calendar date
type DailyPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// DailySeries is a date-ordered daily series for one station
type DailySeries struct {
	StationID string       `json:"station_id"`
	Points    []DailyPoint `json:"points"`
}

// Dates returns the first and last date of the series
func (s DailySeries) Dates() (first, last time.Time, ok bool) {
	if len(s.Points) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Points[0].Date, s.Points[len(s.Points)-1].Date, true
}

// ForecastRecord joins a predicted value with the observed one, when known
type ForecastRecord struct {
	StationID  string    `json:"station_id"`
	CutoffDate time.Time `json:"cutoff_date"`
	TargetDate time.Time `json:"target_date"`
	Actual     *float64  `json:"actual,omitempty"`
	Predicted  float64   `json:"predicted"`
}

// CutoffMetrics holds the error metrics of one cross-validation cutoff
type CutoffMetrics struct {
	Cutoff time.Time `json:"cutoff"`
	RMSE   float64   `json:"rmse"`
	MAPE   float64   `json:"mape"`
}

// CrossValidationResult is the output of a baseline cross-validation run
type CrossValidationResult struct {
	StationID string           `json:"station_id"`
	Horizon   int              `json:"horizon"`
	Records   []ForecastRecord `json:"records"`
	Metrics   []CutoffMetrics  `json:"metrics"`
	MeanRMSE  float64          `json:"mean_rmse"`
	MeanMAPE  float64          `json:"mean_mape"`
}

// Indicator compares a prediction against the same weekday in the past year
type Indicator struct {
	Percent   int     `json:"percent"`
	Reference float64 `json:"reference"`
	Level     string  `json:"level"`
	Text      string  `json:"text"`
}

// StationPrediction is what the dashboard shows for one station and date
type StationPrediction struct {
	Station   Station          `json:"station"`
	Date      time.Time        `json:"date"`
	Predicted float64          `json:"predicted"`
	History   []ForecastRecord `json:"history"`
	Indicator Indicator        `json:"indicator"`
}
