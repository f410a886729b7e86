package services

import (
	"context"
	"time"

	"traffic-platform/internal/external"
	"traffic-platform/internal/models"
	"traffic-platform/internal/stations"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

// WeatherService looks up the forecast at a station's location
type WeatherService struct {
	provider external.WeatherProvider
	stations *stations.Directory
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewWeatherService creates a new weather service
func NewWeatherService(provider external.WeatherProvider, directory *stations.Directory, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		provider: provider,
		stations: directory,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// StationForecast returns the weather at the station for the hour nearest at
func (s *WeatherService) StationForecast(ctx context.Context, stationID string, at time.Time) (*models.WeatherForecast, error) {
	station, err := s.stations.Get(stationID)
	if err != nil {
		return nil, err
	}

	forecast, err := s.provider.Forecast(ctx, station.Latitude, station.Longitude, at)
	if err != nil {
		s.metrics.RecordWeatherRequest("error")
		s.logger.Error(logging.WithStationID(ctx, stationID), "[WEATHER_ERROR] Weather lookup failed", logging.Fields{
			"latitude":  station.Latitude,
			"longitude": station.Longitude,
			"at":        at.Format(time.RFC3339),
		}, err)
		return nil, err
	}

	s.metrics.RecordWeatherRequest("success")
	return forecast, nil
}
