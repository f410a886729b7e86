// Package repository provides Postgres access to stations and hourly observations.
package repository

import (
	"context"
	"fmt"
	"time"

	"traffic-platform/internal/models"
	"traffic-platform/pkg/database"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

// TrafficRepository provides data access for traffic data
type TrafficRepository interface {
	// Station operations
	CreateStation(ctx context.Context, station *models.Station) error
	ListStations(ctx context.Context) ([]models.Station, error)

	// Observation operations
	CreateObservationsBatch(ctx context.Context, observations []models.Observation) error
	GetObservations(ctx context.Context, filter ObservationFilter) ([]models.Observation, int, error)
	LoadObservations(ctx context.Context) ([]models.Observation, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// ObservationFilter defines filters for querying observations
type ObservationFilter struct {
	StationID *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

type trafficRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewTrafficRepository creates a new traffic repository
func NewTrafficRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) TrafficRepository {
	return &trafficRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const upsertStationQuery = `
		INSERT INTO traffic_stations (station_id, alias, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (station_id) DO UPDATE SET
			alias = EXCLUDED.alias,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = NOW()
	`

// CreateStation inserts a station or refreshes its metadata
func (r *trafficRepository) CreateStation(ctx context.Context, station *models.Station) error {
	_, err := r.db.ExecContext(ctx, "upsert_station", upsertStationQuery,
		station.StationID,
		station.Alias,
		station.Latitude,
		station.Longitude,
	)
	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}

	return nil
}

// ListStations returns every station ordered by alias
func (r *trafficRepository) ListStations(ctx context.Context) ([]models.Station, error) {
	query := `
		SELECT station_id, alias, latitude, longitude, created_at
		FROM traffic_stations
		ORDER BY alias, station_id
	`

	var stations []models.Station
	if err := r.db.SelectContext(ctx, "list_stations", &stations, query); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, nil
}

const upsertObservationQuery = `
		INSERT INTO traffic_observations (
			station_id, observed_at, passenger_count, freight_count, total_count
		)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (station_id, observed_at) DO UPDATE SET
			passenger_count = EXCLUDED.passenger_count,
			freight_count = EXCLUDED.freight_count,
			total_count = EXCLUDED.total_count
	`

// CreateObservationsBatch upserts observations in a single transaction
func (r *trafficRepository) CreateObservationsBatch(ctx context.Context, observations []models.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	timer := time.Now()
	r.metrics.IngestionBatchSize.Observe(float64(len(observations)))

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertObservationQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, obs := range observations {
		_, err := stmt.ExecContext(ctx,
			obs.StationID,
			obs.Timestamp,
			obs.PassengerCount,
			obs.FreightCount,
			obs.TotalCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert observation for station %s at %s: %w",
				obs.StationID, obs.Timestamp.Format(models.TimestampLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(observations)))
	r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
		"count":       len(observations),
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return nil
}

const observationColumns = `station_id, observed_at, passenger_count, freight_count, total_count`

// GetObservations retrieves observations with filtering and pagination
func (r *trafficRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]models.Observation, int, error) {
	query := `SELECT ` + observationColumns + ` FROM traffic_observations WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND observed_at >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND observed_at < $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_observations", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	query += " ORDER BY observed_at, station_id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var observations []models.Observation
	if err := r.db.SelectContext(ctx, "get_observations", &observations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get observations: %w", err)
	}

	return observations, totalCount, nil
}

// LoadObservations reads the whole combined series ordered by station and time
func (r *trafficRepository) LoadObservations(ctx context.Context) ([]models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM traffic_observations ORDER BY station_id, observed_at`

	var observations []models.Observation
	if err := r.db.SelectContext(ctx, "load_observations", &observations, query); err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	return observations, nil
}

// HealthCheck performs a health check on the repository
func (r *trafficRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
