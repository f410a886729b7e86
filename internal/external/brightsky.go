package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"traffic-platform/internal/models"
)

// kelvinOffset converts Bright Sky SI temperatures to Celsius
const kelvinOffset = 273.15

// WeatherProvider returns the forecast nearest to a point in time for a location
type WeatherProvider interface {
	Forecast(ctx context.Context, lat, lon float64, at time.Time) (*models.WeatherForecast, error)
}

// BrightSkyClient reads DWD forecasts through the Bright Sky API
type BrightSkyClient struct {
	base    *BaseClient
	baseURL string
}

// NewBrightSkyClient creates a client for the Bright Sky API at baseURL
func NewBrightSkyClient(base *BaseClient, baseURL string) *BrightSkyClient {
	return &BrightSkyClient{base: base, baseURL: baseURL}
}

type brightSkyRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	SourceID      int       `json:"source_id"`
	Temperature   *float64  `json:"temperature"`
	Precipitation *float64  `json:"precipitation"`
	Sunshine      *float64  `json:"sunshine"`
	WindSpeed     *float64  `json:"wind_speed"`
}

type brightSkySource struct {
	ID          int    `json:"id"`
	StationName string `json:"station_name"`
}

type brightSkyResponse struct {
	Weather []brightSkyRecord `json:"weather"`
	Sources []brightSkySource `json:"sources"`
}

// Forecast fetches the hours around at and returns the record closest to it
func (c *BrightSkyClient) Forecast(ctx context.Context, lat, lon float64, at time.Time) (*models.WeatherForecast, error) {
	hour := at.UTC().Truncate(time.Hour)

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("date", hour.Add(-time.Hour).Format(time.RFC3339))
	q.Set("last_date", hour.Add(2*time.Hour).Format(time.RFC3339))
	q.Set("units", "si")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &models.UpstreamError{
			Service: c.base.service,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%s", body),
		}
	}

	var payload brightSkyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &models.UpstreamError{Service: c.base.service, Status: resp.StatusCode, Err: fmt.Errorf("invalid weather payload: %w", err)}
	}

	return nearestForecast(payload, at)
}

func nearestForecast(payload brightSkyResponse, at time.Time) (*models.WeatherForecast, error) {
	if len(payload.Weather) == 0 {
		return nil, &models.NotFoundError{Resource: "weather forecast", ID: at.UTC().Format(time.RFC3339)}
	}

	best := payload.Weather[0]
	for _, rec := range payload.Weather[1:] {
		if absDuration(rec.Timestamp.Sub(at)) < absDuration(best.Timestamp.Sub(at)) {
			best = rec
		}
	}

	source := "DWD"
	for _, s := range payload.Sources {
		if s.ID == best.SourceID && s.StationName != "" {
			source = "DWD " + s.StationName
			break
		}
	}

	forecast := &models.WeatherForecast{Timestamp: best.Timestamp.UTC(), Source: source}
	if best.Temperature != nil {
		forecast.TemperatureCelsius = *best.Temperature - kelvinOffset
	}
	if best.Precipitation != nil {
		forecast.PrecipitationMM = *best.Precipitation
	}
	if best.Sunshine != nil {
		forecast.SunshineHours = *best.Sunshine / 3600
	}
	if best.WindSpeed != nil {
		forecast.WindSpeedMS = *best.WindSpeed
	}

	return forecast, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
