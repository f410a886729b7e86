package forecast

import (
	"math"

	"traffic-platform/internal/models"
)

// Interpolate returns a copy of the series covering every day from its first
// to its last date. Missing days and NaN values are filled by linear
// interpolation in time, the edges take the nearest known value, and every
// value is rounded half to even.
func Interpolate(series models.DailySeries) (models.DailySeries, error) {
	first, last, ok := series.Dates()
	if !ok {
		return series, nil
	}

	days := int(last.Sub(first)/day) + 1
	values := make([]float64, days)
	for i := range values {
		values[i] = math.NaN()
	}
	for _, p := range series.Points {
		values[int(p.Date.Sub(first)/day)] = p.Value
	}

	known := make([]int, 0, len(series.Points))
	for i, v := range values {
		if !math.IsNaN(v) {
			known = append(known, i)
		}
	}
	if len(known) == 0 {
		return models.DailySeries{}, &models.ValidationError{
			Field:   "points",
			Value:   series.StationID,
			Message: "series has no values to interpolate from",
		}
	}

	k := 0
	for i := range values {
		for k+1 < len(known) && known[k+1] <= i {
			k++
		}
		switch {
		case i <= known[0]:
			values[i] = values[known[0]]
		case i >= known[len(known)-1]:
			values[i] = values[known[len(known)-1]]
		case math.IsNaN(values[i]):
			lo, hi := known[k], known[k+1]
			frac := float64(i-lo) / float64(hi-lo)
			values[i] = values[lo] + frac*(values[hi]-values[lo])
		}
	}

	out := models.DailySeries{StationID: series.StationID, Points: make([]models.DailyPoint, days)}
	for i, v := range values {
		out.Points[i] = models.DailyPoint{Date: first.AddDate(0, 0, i), Value: math.RoundToEven(v)}
	}
	return out, nil
}
