package wrangling

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"traffic-platform/internal/models"
)

// endOfDayBucket is how some exports label the last hour of the day
const endOfDayBucket = "24:00:00"

var bucketPattern = regexp.MustCompile(`^(\d{1,2}):00(?::00)?$`)

// Midpoint places an hour bucket on the middle of the hour it closes.
// "HH:00" becomes (HH-1):30 on the same date; "24:00:00" is read as "24:00" and
// therefore lands on 23:30 of the same date, never the next day.
func Midpoint(date, bucket string) (time.Time, error) {
	if bucket == endOfDayBucket {
		bucket = "24:00"
	}

	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return time.Time{}, &models.ValidationError{
			Field:   "date",
			Value:   date,
			Message: "invalid date format, expected DD.MM.YYYY",
		}
	}

	match := bucketPattern.FindStringSubmatch(bucket)
	if match == nil {
		return time.Time{}, &models.ValidationError{
			Field:   "hour_bucket",
			Value:   bucket,
			Message: fmt.Sprintf("unsupported hour bucket %q", bucket),
		}
	}

	hour, _ := strconv.Atoi(match[1])
	if hour < 1 || hour > 24 {
		return time.Time{}, &models.ValidationError{
			Field:   "hour_bucket",
			Value:   bucket,
			Message: fmt.Sprintf("hour bucket %q out of range 1:00-24:00", bucket),
		}
	}

	return day.Add(time.Duration(hour-1)*time.Hour + 30*time.Minute), nil
}

// Normalize converts a counter record into an observation at its bucket midpoint
func Normalize(rec models.CounterRecord) (models.Observation, error) {
	ts, err := Midpoint(rec.Date, rec.HourBucket)
	if err != nil {
		return models.Observation{}, err
	}

	return models.Observation{
		StationID:      rec.StationID,
		Timestamp:      ts,
		PassengerCount: rec.PassengerCount,
		FreightCount:   rec.FreightCount,
		TotalCount:     rec.TotalCount,
	}, nil
}

// NormalizeAll normalizes records in order. A record that cannot be placed
// is reported as a *models.ParseError on its source line.
func NormalizeAll(records []models.CounterRecord) ([]models.Observation, error) {
	observations := make([]models.Observation, 0, len(records))

	for _, rec := range records {
		obs, err := Normalize(rec)
		if err != nil {
			return nil, &models.ParseError{Line: rec.Line, Text: rec.HourBucket, Reason: err.Error()}
		}
		observations = append(observations, obs)
	}

	if err := ValidateUnique(observations); err != nil {
		return nil, err
	}

	return observations, nil
}

// ValidateUnique reports the first (station, timestamp) pair that occurs twice
func ValidateUnique(observations []models.Observation) error {
	type key struct {
		station string
		ts      int64
	}

	seen := make(map[key]struct{}, len(observations))
	for _, obs := range observations {
		k := key{station: obs.StationID, ts: obs.Timestamp.Unix()}
		if _, dup := seen[k]; dup {
			return &models.ValidationError{
				Field:   "timestamp",
				Value:   obs.Timestamp.Format(models.TimestampLayout),
				Message: fmt.Sprintf("station %s has more than one observation at %s", obs.StationID, obs.Timestamp.Format(models.TimestampLayout)),
			}
		}
		seen[k] = struct{}{}
	}

	return nil
}

// SortObservations orders observations by station, then timestamp.
// Callers whose results depend on chronological order must sort first.
func SortObservations(observations []models.Observation) {
	sort.SliceStable(observations, func(i, j int) bool {
		a, b := observations[i], observations[j]
		if a.StationID != b.StationID {
			return a.StationID < b.StationID
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}
