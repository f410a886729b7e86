package forecast

import (
	"fmt"
	"time"

	"traffic-platform/internal/models"
)

const day = 24 * time.Hour

// WeeksBack is the number of whole weeks copied to cover the horizon
func WeeksBack(horizon int) int {
	return (horizon-1)/7 + 1
}

// contiguous checks that every point is exactly one day after the previous
// one. The copy regressor indexes by position, so a missing day inside the
// copied window would silently shift every copied value.
func contiguous(stationID string, points []models.DailyPoint) error {
	for i := 1; i < len(points); i++ {
		prev, next := points[i-1].Date, points[i].Date
		if !next.Equal(prev.Add(day)) {
			return &models.GapError{StationID: stationID, After: prev, Next: next}
		}
	}
	return nil
}

// CopyRegressor predicts each day by copying the value seen on the same
// weekday WeeksBack(horizon) weeks earlier.
type CopyRegressor struct {
	horizon int
	copied  []float64
}

// NewCopyRegressor creates a regressor for the given horizon in days
func NewCopyRegressor(horizon int) (*CopyRegressor, error) {
	if horizon < 1 {
		return nil, models.ErrInvalidHorizon
	}
	return &CopyRegressor{horizon: horizon}, nil
}

// window is the number of trailing training days the fit reads
func (r *CopyRegressor) window() int {
	return 7 * WeeksBack(r.horizon)
}

// Fit keeps the horizon values starting 7*WeeksBack days before the end of train
func (r *CopyRegressor) Fit(train []models.DailyPoint) error {
	window := r.window()
	if len(train) < window {
		return fmt.Errorf("%w: need %d days, have %d", models.ErrInsufficientHistory, window, len(train))
	}

	start := len(train) - window
	r.copied = make([]float64, r.horizon)
	for i := range r.copied {
		r.copied[i] = train[start+i].Value
	}
	return nil
}

// Predict returns the fitted values, one per horizon day
func (r *CopyRegressor) Predict() []float64 {
	out := make([]float64, len(r.copied))
	copy(out, r.copied)
	return out
}

// Horizon returns the number of predicted days
func (r *CopyRegressor) Horizon() int {
	return r.horizon
}

// trainingWindow returns the points dated on or before cutoff
func trainingWindow(points []models.DailyPoint, cutoff time.Time) []models.DailyPoint {
	n := 0
	for n < len(points) && !points[n].Date.After(cutoff) {
		n++
	}
	return points[:n]
}

// fitThrough fits model on the points up to and including cutoff. Only the
// copied window has to be gap free and it must end on the cutoff itself;
// history before it and data after the cutoff are not inspected.
func fitThrough(model *CopyRegressor, series models.DailySeries, cutoff time.Time) ([]models.DailyPoint, error) {
	train := trainingWindow(series.Points, cutoff)
	if err := model.Fit(train); err != nil {
		return nil, err
	}
	if last := train[len(train)-1].Date; !last.Equal(cutoff) {
		return nil, &models.GapError{StationID: series.StationID, After: last, Next: cutoff.Add(day)}
	}
	if err := contiguous(series.StationID, train[len(train)-model.window():]); err != nil {
		return nil, err
	}
	return train, nil
}

// Predict forecasts the horizon days following cutoff. Target dates that are
// present in the series carry their observed value as Actual.
func Predict(series models.DailySeries, cutoff time.Time, horizon int) ([]models.ForecastRecord, error) {
	model, err := NewCopyRegressor(horizon)
	if err != nil {
		return nil, err
	}

	cutoff = dayOf(cutoff)
	train, err := fitThrough(model, series, cutoff)
	if err != nil {
		return nil, err
	}

	actuals := make(map[time.Time]float64)
	for _, p := range series.Points[len(train):] {
		actuals[p.Date] = p.Value
	}

	predicted := model.Predict()
	records := make([]models.ForecastRecord, horizon)
	for i, value := range predicted {
		target := cutoff.AddDate(0, 0, i+1)
		rec := models.ForecastRecord{
			StationID:  series.StationID,
			CutoffDate: cutoff,
			TargetDate: target,
			Predicted:  value,
		}
		if actual, ok := actuals[target]; ok {
			rec.Actual = &actual
		}
		records[i] = rec
	}

	return records, nil
}
