package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-platform/internal/models"
	"traffic-platform/pkg/database"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

func newMockRepository(t *testing.T) (TrafficRepository, sqlmock.Sqlmock) {
	t.Helper()
	return newLoggedMockRepository(t, io.Discard, logging.ErrorLevel)
}

func newLoggedMockRepository(t *testing.T, out io.Writer, level logging.LogLevel) (TrafficRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := logging.NewStructuredLogger("test", "test", level)
	logger.SetOutput(out)
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())

	db := database.Wrap(sqlx.NewDb(sqlDB, "postgres"), nil, logger, collector)
	return NewTrafficRepository(db, logger, collector), mock
}

func TestCreateStation(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO traffic_stations")).
		WithArgs("1001", "Kennedybrücke", 53.56, 10.005).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateStation(context.Background(), &models.Station{
		StationID: "1001", Alias: "Kennedybrücke", Latitude: 53.56, Longitude: 10.005,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStations(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"station_id", "alias", "latitude", "longitude", "created_at"}).
		AddRow("0101", "Elbbrücken", 53.535, 10.028, created).
		AddRow("1001", "Kennedybrücke", 53.56, 10.005, created)
	mock.ExpectQuery(regexp.QuoteMeta("FROM traffic_stations")).WillReturnRows(rows)

	stations, err := repo.ListStations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "0101", stations[0].StationID)
	assert.Equal(t, "Kennedybrücke", stations[1].Alias)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateObservationsBatch(t *testing.T) {
	repo, mock := newMockRepository(t)
	ts := time.Date(2015, 1, 1, 0, 30, 0, 0, time.UTC)
	observations := []models.Observation{
		{StationID: "1001", Timestamp: ts, PassengerCount: 10, FreightCount: 2, TotalCount: 12},
		{StationID: "1001", Timestamp: ts.Add(time.Hour), PassengerCount: 8, FreightCount: 1, TotalCount: 9},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO traffic_observations"))
	prep.ExpectExec().WithArgs("1001", ts, 10, 2, 12).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("1001", ts.Add(time.Hour), 8, 1, 9).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateObservationsBatch(context.Background(), observations))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateObservationsBatch_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)
	ts := time.Date(2015, 1, 1, 0, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO traffic_observations"))
	prep.ExpectExec().WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.CreateObservationsBatch(context.Background(), []models.Observation{{StationID: "1001", Timestamp: ts}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateObservationsBatch_LogsOnlyCommittedBatches(t *testing.T) {
	var buf bytes.Buffer
	repo, mock := newLoggedMockRepository(t, &buf, logging.DebugLevel)
	ts := time.Date(2015, 1, 1, 0, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO traffic_observations")).
		ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	require.Error(t, repo.CreateObservationsBatch(context.Background(), []models.Observation{{StationID: "1001", Timestamp: ts}}))
	assert.NotContains(t, buf.String(), "[REPO_BATCH_INSERT]")

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO traffic_observations")).
		ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateObservationsBatch(context.Background(), []models.Observation{{StationID: "1001", Timestamp: ts}}))
	assert.Contains(t, buf.String(), "[REPO_BATCH_INSERT]")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateObservationsBatch_Empty(t *testing.T) {
	repo, mock := newMockRepository(t)
	require.NoError(t, repo.CreateObservationsBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetObservations(t *testing.T) {
	repo, mock := newMockRepository(t)
	station := "1001"
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (SELECT station_id, observed_at")).
		WithArgs(station, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(24))

	rows := sqlmock.NewRows([]string{"station_id", "observed_at", "passenger_count", "freight_count", "total_count"}).
		AddRow("1001", start.Add(30*time.Minute), 10, 2, 12)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY observed_at, station_id LIMIT $4 OFFSET $5")).
		WithArgs(station, start, end, 1, 0).
		WillReturnRows(rows)

	observations, total, err := repo.GetObservations(context.Background(), ObservationFilter{
		StationID: &station,
		StartDate: &start,
		EndDate:   &end,
		Limit:     1,
		Offset:    0,
	})
	require.NoError(t, err)
	assert.Equal(t, 24, total)
	require.Len(t, observations, 1)
	assert.Equal(t, 12, observations[0].TotalCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadObservations(t *testing.T) {
	repo, mock := newMockRepository(t)
	ts := time.Date(2015, 1, 1, 0, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"station_id", "observed_at", "passenger_count", "freight_count", "total_count"}).
		AddRow("1001", ts, 10, 2, 12).
		AddRow("1001", ts.Add(time.Hour), 8, 1, 9)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY station_id, observed_at")).WillReturnRows(rows)

	observations, err := repo.LoadObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, observations, 2)
	assert.Equal(t, ts.Add(time.Hour), observations[1].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadObservations_Error(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM traffic_observations")).WillReturnError(errors.New("connection reset"))

	_, err := repo.LoadObservations(context.Background())
	assert.Error(t, err)
}
