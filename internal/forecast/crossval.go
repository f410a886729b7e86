package forecast

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"traffic-platform/internal/models"
)

// Cutoffs enumerates cutoff dates from first to last, inclusive, every step days
func Cutoffs(first, last time.Time, step int) ([]time.Time, error) {
	if step < 1 {
		return nil, &models.ValidationError{
			Field:   "step",
			Value:   fmt.Sprint(step),
			Message: "cutoff step must be at least one day",
		}
	}
	first, last = dayOf(first), dayOf(last)
	if last.Before(first) {
		return nil, &models.ValidationError{
			Field:   "end",
			Value:   last.Format("2006-01-02"),
			Message: "last cutoff is before the first one",
		}
	}

	var cutoffs []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, step) {
		cutoffs = append(cutoffs, d)
	}
	return cutoffs, nil
}

// evaluateCutoff fits on everything up to cutoff and scores the next horizon days
func evaluateCutoff(series models.DailySeries, cutoff time.Time, horizon int) ([]models.ForecastRecord, models.CutoffMetrics, error) {
	cutoff = dayOf(cutoff)
	train := trainingWindow(series.Points, cutoff)
	test := series.Points[len(train):]
	if len(test) < horizon {
		return nil, models.CutoffMetrics{}, fmt.Errorf("%w: need %d days, have %d", models.ErrInsufficientActuals, horizon, len(test))
	}
	test = test[:horizon]

	model, err := NewCopyRegressor(horizon)
	if err != nil {
		return nil, models.CutoffMetrics{}, err
	}
	if _, err := fitThrough(model, series, cutoff); err != nil {
		return nil, models.CutoffMetrics{}, err
	}

	// scored days must be exactly the horizon days after the cutoff
	prev := cutoff
	for _, p := range test {
		if !p.Date.Equal(prev.Add(day)) {
			return nil, models.CutoffMetrics{}, &models.GapError{StationID: series.StationID, After: prev, Next: p.Date}
		}
		prev = p.Date
	}

	predicted := model.Predict()

	actual := make([]float64, horizon)
	records := make([]models.ForecastRecord, horizon)
	for i, p := range test {
		value := p.Value
		actual[i] = value
		records[i] = models.ForecastRecord{
			StationID:  series.StationID,
			CutoffDate: cutoff,
			TargetDate: p.Date,
			Actual:     &value,
			Predicted:  predicted[i],
		}
	}

	return records, models.CutoffMetrics{
		Cutoff: cutoff,
		RMSE:   RMSE(actual, predicted),
		MAPE:   MAPE(actual, predicted),
	}, nil
}

// CrossValidate replays the baseline over every cutoff. Cutoffs are evaluated
// independently against the read-only series; records and metrics come back in
// cutoff input order.
func CrossValidate(series models.DailySeries, cutoffs []time.Time, horizon int) (*models.CrossValidationResult, error) {
	if horizon < 1 {
		return nil, models.ErrInvalidHorizon
	}
	if len(cutoffs) == 0 {
		return nil, &models.ValidationError{Field: "cutoffs", Message: "at least one cutoff is required"}
	}
	result := &models.CrossValidationResult{
		StationID: series.StationID,
		Horizon:   horizon,
		Records:   make([]models.ForecastRecord, 0, len(cutoffs)*horizon),
		Metrics:   make([]models.CutoffMetrics, 0, len(cutoffs)),
	}

	rmse := make([]float64, 0, len(cutoffs))
	mape := make([]float64, 0, len(cutoffs))
	for _, cutoff := range cutoffs {
		records, m, err := evaluateCutoff(series, cutoff, horizon)
		if err != nil {
			return nil, fmt.Errorf("cutoff %s: %w", cutoff.Format("2006-01-02"), err)
		}
		result.Records = append(result.Records, records...)
		result.Metrics = append(result.Metrics, m)
		rmse = append(rmse, m.RMSE)
		mape = append(mape, m.MAPE)
	}

	result.MeanRMSE = stat.Mean(rmse, nil)
	result.MeanMAPE = stat.Mean(mape, nil)

	return result, nil
}
