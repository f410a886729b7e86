package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"traffic-platform/internal/forecast"
	"traffic-platform/internal/models"
	"traffic-platform/internal/repository"
	"traffic-platform/internal/stations"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

// ErrNotLoaded is returned while no combined series has been loaded yet
var ErrNotLoaded = errors.New("combined series not loaded")

// SeriesSource loads the whole combined hourly series
type SeriesSource interface {
	LoadObservations(ctx context.Context) ([]models.Observation, error)
}

// observationQuerier is implemented by sources that can page through
// observations themselves, such as the Postgres repository
type observationQuerier interface {
	GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]models.Observation, int, error)
}

// PredictionOptions tunes the prediction service
type PredictionOptions struct {
	// HistoryDays is the number of one-day-ahead backtests shown before the prediction
	HistoryDays int
	// Interpolate fills missing days before forecasting
	Interpolate bool
}

// snapshot is an immutable view of the loaded series
type snapshot struct {
	observations []models.Observation
	daily        map[string]models.DailySeries
	lastDate     time.Time
	loadedAt     time.Time
}

// PredictionService keeps the daily series in memory and answers forecasts.
// Reload swaps the snapshot under a write lock; readers never see a partial load.
type PredictionService struct {
	source   SeriesSource
	stations *stations.Directory
	opts     PredictionOptions
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector

	mu   sync.RWMutex
	snap *snapshot
}

// NewPredictionService creates a prediction service; call Reload before use
func NewPredictionService(source SeriesSource, directory *stations.Directory, opts PredictionOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PredictionService {
	if opts.HistoryDays < 1 {
		opts.HistoryDays = 7
	}
	return &PredictionService{
		source:   source,
		stations: directory,
		opts:     opts,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Reload reads the combined series from the source and rebuilds the daily totals
func (s *PredictionService) Reload(ctx context.Context, trigger string) error {
	start := time.Now()

	observations, err := s.source.LoadObservations(ctx)
	if err != nil {
		s.metrics.RecordSeriesReload(trigger, "error")
		s.logger.Error(ctx, "[SERIES_RELOAD_ERROR] Failed to load combined series", logging.Fields{
			"trigger": trigger,
		}, err)
		return fmt.Errorf("failed to reload series: %w", err)
	}

	daily := forecast.DailyTotals(observations)
	if s.opts.Interpolate {
		for id, series := range daily {
			filled, err := forecast.Interpolate(series)
			if err != nil {
				s.metrics.RecordSeriesReload(trigger, "error")
				return fmt.Errorf("failed to interpolate station %s: %w", id, err)
			}
			daily[id] = filled
		}
	}

	next := &snapshot{
		observations: observations,
		daily:        daily,
		loadedAt:     time.Now().UTC(),
	}
	for _, series := range daily {
		if _, last, ok := series.Dates(); ok && last.After(next.lastDate) {
			next.lastDate = last
		}
	}

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	s.metrics.RecordSeriesReload(trigger, "success")
	s.metrics.SeriesObservations.Set(float64(len(observations)))

	s.logger.Info(ctx, "[SERIES_RELOAD] Combined series loaded", logging.Fields{
		"trigger":      trigger,
		"observations": len(observations),
		"stations":     len(daily),
		"last_date":    next.lastDate.Format("2006-01-02"),
		"duration_ms":  time.Since(start).Milliseconds(),
	})

	return nil
}

func (s *PredictionService) current() (*snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrNotLoaded
	}
	return s.snap, nil
}

// Loaded reports whether a series has been loaded
func (s *PredictionService) Loaded() bool {
	_, err := s.current()
	return err == nil
}

// LastDate is the latest observed day across all stations
func (s *PredictionService) LastDate() time.Time {
	snap, err := s.current()
	if err != nil {
		return time.Time{}
	}
	return snap.lastDate
}

// Stations returns the station directory
func (s *PredictionService) Stations() *stations.Directory {
	return s.stations
}

// StationIDs lists the stations with a loaded series in ascending order
func (s *PredictionService) StationIDs() []string {
	snap, err := s.current()
	if err != nil {
		return nil
	}
	return forecast.StationIDs(snap.daily)
}

// StationSeries returns the daily series of one station
func (s *PredictionService) StationSeries(stationID string) (models.DailySeries, error) {
	snap, err := s.current()
	if err != nil {
		return models.DailySeries{}, err
	}
	series, ok := snap.daily[stationID]
	if !ok || len(series.Points) == 0 {
		return models.DailySeries{}, &models.NotFoundError{Resource: "station series", ID: stationID}
	}
	return series, nil
}

// StationForecast predicts the total traffic of a station on date, together
// with one-day-ahead backtests for the preceding days and the weekday indicator.
// A zero date means the day after the last observation.
func (s *PredictionService) StationForecast(ctx context.Context, stationID string, date time.Time) (*models.StationPrediction, error) {
	station, err := s.stations.Get(stationID)
	if err != nil {
		return nil, err
	}
	series, err := s.StationSeries(stationID)
	if err != nil {
		return nil, err
	}
	_, last, _ := series.Dates()

	if date.IsZero() {
		date = last.AddDate(0, 0, 1)
	}
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	// forecast from the last known day when the target lies in the future
	cutoff := date.AddDate(0, 0, -1)
	if cutoff.After(last) {
		cutoff = last
	}
	horizon := int(date.Sub(cutoff).Hours() / 24)

	records, err := forecast.Predict(series, cutoff, horizon)
	if err != nil {
		return nil, err
	}
	predicted := records[len(records)-1].Predicted

	prediction := &models.StationPrediction{
		Station:   station,
		Date:      date,
		Predicted: predicted,
		History:   s.backtest(ctx, series, date),
		Indicator: forecast.NewIndicator(series, date, predicted),
	}

	s.logger.Debug(logging.WithStationID(ctx, stationID), "[PREDICT] Station forecast computed", logging.Fields{
		"date":      date.Format("2006-01-02"),
		"horizon":   horizon,
		"predicted": predicted,
		"percent":   prediction.Indicator.Percent,
	})

	return prediction, nil
}

// backtest runs one-day-ahead forecasts for the days before date that have actuals
func (s *PredictionService) backtest(ctx context.Context, series models.DailySeries, date time.Time) []models.ForecastRecord {
	first, last, _ := series.Dates()

	var cutoffs []time.Time
	for d := date.AddDate(0, 0, -s.opts.HistoryDays); d.Before(date); d = d.AddDate(0, 0, 1) {
		cutoff := d.AddDate(0, 0, -1)
		if d.After(last) || cutoff.Before(first.AddDate(0, 0, 6)) {
			continue
		}
		cutoffs = append(cutoffs, cutoff)
	}
	if len(cutoffs) == 0 {
		return []models.ForecastRecord{}
	}

	result, err := forecast.CrossValidate(series, cutoffs, 1)
	if err != nil {
		s.logger.Warn(ctx, "[BACKTEST_SKIPPED] One-day-ahead backtest failed", logging.Fields{
			"station_id": series.StationID,
			"error":      err.Error(),
		})
		return []models.ForecastRecord{}
	}
	return result.Records
}

// CutoffRange fills in missing cutoff bounds for a station. The default last
// cutoff leaves a full horizon of actuals; the default first cutoff lies window
// days earlier but not before the first day with enough history to copy from.
func (s *PredictionService) CutoffRange(stationID string, horizon, window int, start, end time.Time) (time.Time, time.Time, error) {
	if !start.IsZero() && !end.IsZero() {
		return start, end, nil
	}

	series, err := s.StationSeries(stationID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	first, last, _ := series.Dates()

	if end.IsZero() {
		end = last.AddDate(0, 0, -horizon)
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -window)
		if earliest := first.AddDate(0, 0, 7*forecast.WeeksBack(horizon)-1); start.Before(earliest) {
			start = earliest
		}
	}
	return start, end, nil
}

// CrossValidate evaluates the baseline for one station over cutoffs from first
// to last every step days
func (s *PredictionService) CrossValidate(ctx context.Context, stationID string, horizon int, first, last time.Time, step int) (*models.CrossValidationResult, error) {
	series, err := s.StationSeries(stationID)
	if err != nil {
		return nil, err
	}

	cutoffs, err := forecast.Cutoffs(first, last, step)
	if err != nil {
		return nil, err
	}

	timer := s.metrics.NewTimer(s.metrics.CrossValidationDuration)
	result, err := forecast.CrossValidate(series, cutoffs, horizon)
	if err != nil {
		return nil, err
	}
	duration := timer.ObserveDuration()

	s.metrics.RecordForecastError(stationID, result.MeanRMSE, result.MeanMAPE)
	s.logger.Info(logging.WithStationID(ctx, stationID), "[CV_COMPLETE] Cross-validation finished", logging.Fields{
		"horizon":     horizon,
		"cutoffs":     len(cutoffs),
		"mean_rmse":   result.MeanRMSE,
		"mean_mape":   result.MeanMAPE,
		"duration_ms": duration.Milliseconds(),
	})

	return result, nil
}

// Observations pages through the hourly observations of a station
func (s *PredictionService) Observations(ctx context.Context, filter repository.ObservationFilter) ([]models.Observation, int, error) {
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, 0, &models.ValidationError{
			Field:   "offset",
			Value:   fmt.Sprintf("offset=%d limit=%d", filter.Offset, filter.Limit),
			Message: "offset and limit must not be negative",
		}
	}
	if q, ok := s.source.(observationQuerier); ok {
		return q.GetObservations(ctx, filter)
	}

	snap, err := s.current()
	if err != nil {
		return nil, 0, err
	}

	var matched []models.Observation
	for _, obs := range snap.observations {
		if filter.StationID != nil && obs.StationID != *filter.StationID {
			continue
		}
		if filter.StartDate != nil && obs.Timestamp.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && !obs.Timestamp.Before(*filter.EndDate) {
			continue
		}
		matched = append(matched, obs)
	}

	total := len(matched)
	if filter.Offset >= total {
		return []models.Observation{}, total, nil
	}
	end := total
	if filter.Limit > 0 {
		end = min(filter.Offset+filter.Limit, total)
	}
	return matched[filter.Offset:end], total, nil
}
