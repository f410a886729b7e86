// Package forecast implements the copy-same-weekday baseline, its
// cross-validation loop and the helpers that feed it daily series.
package forecast

import (
	"sort"
	"time"

	"traffic-platform/internal/models"
	"traffic-platform/internal/wrangling"
)

// dayOf truncates a timestamp to its calendar date
func dayOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyTotals sums total_count per station and calendar date. The input is
// not modified.
func DailyTotals(observations []models.Observation) map[string]models.DailySeries {
	sorted := make([]models.Observation, len(observations))
	copy(sorted, observations)
	wrangling.SortObservations(sorted)

	result := make(map[string]models.DailySeries)
	for _, obs := range sorted {
		series := result[obs.StationID]
		series.StationID = obs.StationID

		day := dayOf(obs.Timestamp)
		n := len(series.Points)
		if n > 0 && series.Points[n-1].Date.Equal(day) {
			series.Points[n-1].Value += float64(obs.TotalCount)
		} else {
			series.Points = append(series.Points, models.DailyPoint{Date: day, Value: float64(obs.TotalCount)})
		}
		result[obs.StationID] = series
	}

	return result
}

// StationIDs returns the keys of a daily series map in sorted order
func StationIDs(series map[string]models.DailySeries) []string {
	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
