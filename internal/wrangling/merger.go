package wrangling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"traffic-platform/internal/models"
)

// Fragment is the normalized content of one counter export file
type Fragment struct {
	Path         string
	Records      int
	Observations []models.Observation
}

// ReadFragment extracts and normalizes a single counter export file
func ReadFragment(path string) (*Fragment, error) {
	records, err := ExtractFile(path)
	if err != nil {
		return nil, err
	}

	observations, err := NormalizeAll(records)
	if err != nil {
		var perr *models.ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, fmt.Errorf("failed to normalize %s: %w", path, err)
	}

	return &Fragment{
		Path:         path,
		Records:      len(records),
		Observations: observations,
	}, nil
}

// span returns the first and last timestamp per station within the fragment
func (f *Fragment) span() map[string][2]time.Time {
	spans := make(map[string][2]time.Time)
	for _, obs := range f.Observations {
		s, ok := spans[obs.StationID]
		if !ok {
			spans[obs.StationID] = [2]time.Time{obs.Timestamp, obs.Timestamp}
			continue
		}
		if obs.Timestamp.Before(s[0]) {
			s[0] = obs.Timestamp
		}
		if obs.Timestamp.After(s[1]) {
			s[1] = obs.Timestamp
		}
		spans[obs.StationID] = s
	}
	return spans
}

// Combiner concatenates fragments in the order they are appended. It never
// re-sorts or deduplicates; instead it rejects a fragment whose data for a
// station does not start after everything seen for that station so far.
type Combiner struct {
	last         map[string]time.Time
	observations []models.Observation
}

// NewCombiner creates an empty combiner
func NewCombiner() *Combiner {
	return &Combiner{last: make(map[string]time.Time)}
}

// Append checks the non-overlap precondition and adds the fragment
func (c *Combiner) Append(f *Fragment) error {
	spans := f.span()

	for station, s := range spans {
		if prev, ok := c.last[station]; ok && !s[0].After(prev) {
			return &models.OverlapError{
				Path:      f.Path,
				StationID: station,
				Previous:  prev,
				Next:      s[0],
			}
		}
	}

	for station, s := range spans {
		c.last[station] = s[1]
	}
	c.observations = append(c.observations, f.Observations...)

	return nil
}

// Observations returns the combined series in append order
func (c *Combiner) Observations() []models.Observation {
	return c.observations
}

// FileFunc is told about every file Merge attempts. fragment is nil when
// err is set.
type FileFunc func(path string, fragment *Fragment, err error)

// Merge reads every file in order and combines them into one series. Any
// failing file aborts the merge and no partial series is returned. onFile
// may be nil.
func Merge(ctx context.Context, paths []string, onFile FileFunc) ([]models.Observation, error) {
	if onFile == nil {
		onFile = func(string, *Fragment, error) {}
	}
	combiner := NewCombiner()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fragment, err := ReadFragment(path)
		if err == nil {
			err = combiner.Append(fragment)
		}
		if err != nil {
			onFile(path, nil, err)
			return nil, err
		}
		onFile(path, fragment, nil)
	}

	observations := combiner.Observations()
	if err := ValidateUnique(observations); err != nil {
		return nil, err
	}
	return observations, nil
}
