package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"traffic-platform/internal/models"
	"traffic-platform/internal/repository"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

func newTestLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func newTestMetrics() *metrics.Collector {
	return metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
}

// writeExport writes a counter export holding full days for one station
func writeExport(t *testing.T, dir, name, station string, days ...time.Time) string {
	t.Helper()
	var b strings.Builder
	for _, day := range days {
		fmt.Fprintf(&b, "Zählstelle %s,Mo,%d.%d,%d\n", station, day.Day(), int(day.Month()), day.Year())
		for h := 1; h <= 24; h++ {
			fmt.Fprintf(&b, "%d:00,%d,1,%d\n", h, h, h+1)
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// hourlySeries spreads each daily total evenly over 24 hourly observations
func hourlySeries(station string, start time.Time, dailyTotals []int) []models.Observation {
	var obs []models.Observation
	for d, total := range dailyTotals {
		day := start.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			count := total / 24
			if h == 0 {
				count += total % 24
			}
			obs = append(obs, models.Observation{
				StationID:  station,
				Timestamp:  day.Add(time.Duration(h)*time.Hour + 30*time.Minute),
				TotalCount: count,
			})
		}
	}
	return obs
}

type staticSource struct {
	observations []models.Observation
	err          error
	calls        int
}

func (s *staticSource) LoadObservations(ctx context.Context) ([]models.Observation, error) {
	s.calls++
	return s.observations, s.err
}

// fakeRepository records what is written to it
type fakeRepository struct {
	stations []models.Station
	batches  [][]models.Observation
	failAt   int
}

func (r *fakeRepository) CreateStation(ctx context.Context, station *models.Station) error {
	r.stations = append(r.stations, *station)
	return nil
}

func (r *fakeRepository) ListStations(ctx context.Context) ([]models.Station, error) {
	return r.stations, nil
}

func (r *fakeRepository) CreateObservationsBatch(ctx context.Context, observations []models.Observation) error {
	if r.failAt > 0 && len(r.batches)+1 == r.failAt {
		return fmt.Errorf("batch %d failed", r.failAt)
	}
	batch := make([]models.Observation, len(observations))
	copy(batch, observations)
	r.batches = append(r.batches, batch)
	return nil
}

func (r *fakeRepository) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]models.Observation, int, error) {
	return []models.Observation{{StationID: "db"}}, 1, nil
}

func (r *fakeRepository) LoadObservations(ctx context.Context) ([]models.Observation, error) {
	var all []models.Observation
	for _, b := range r.batches {
		all = append(all, b...)
	}
	return all, nil
}

func (r *fakeRepository) HealthCheck(ctx context.Context) error {
	return nil
}
