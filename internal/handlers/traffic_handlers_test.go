package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-platform/internal/models"
	"traffic-platform/internal/services"
	"traffic-platform/internal/stations"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

var firstDay = time.Date(2015, 1, 5, 0, 0, 0, 0, time.UTC)

type staticSource struct {
	observations []models.Observation
}

func (s staticSource) LoadObservations(ctx context.Context) ([]models.Observation, error) {
	return s.observations, nil
}

type fakeWeatherProvider struct {
	err error
}

func (p *fakeWeatherProvider) Forecast(ctx context.Context, lat, lon float64, at time.Time) (*models.WeatherForecast, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &models.WeatherForecast{Timestamp: at, TemperatureCelsius: 21.5, Source: "test"}, nil
}

// dailyObservations puts each daily total on a single noon observation
func dailyObservations(station string, totals []int, skip int) []models.Observation {
	var obs []models.Observation
	for d, total := range totals {
		if d == skip {
			continue
		}
		obs = append(obs, models.Observation{
			StationID:  station,
			Timestamp:  firstDay.AddDate(0, 0, d).Add(12*time.Hour + 30*time.Minute),
			TotalCount: total,
		})
	}
	return obs
}

func weeklyTotals(days int) []int {
	totals := make([]int, days)
	for i := range totals {
		totals[i] = (i%7 + 1) * 100
	}
	return totals
}

type testServer struct {
	router   *mux.Router
	metrics  *metrics.Collector
	provider *fakeWeatherProvider
}

func newTestServer(t *testing.T, load bool) *testServer {
	t.Helper()

	logger := logging.NewStructuredLogger("test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	m := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())

	directory := stations.NewDirectory([]models.Station{
		{StationID: "1001", Alias: "Hauptbahnhof", Latitude: 50.1, Longitude: 8.6},
		{StationID: "1002", Alias: "Ostend", Latitude: 50.2, Longitude: 8.7},
		{StationID: "1003", Alias: "Nordring", Latitude: 50.3, Longitude: 8.8},
	})

	observations := append(dailyObservations("1001", weeklyTotals(28), -1), dailyObservations("1002", weeklyTotals(28), 24)...)
	predictions := services.NewPredictionService(staticSource{observations: observations}, directory, services.PredictionOptions{HistoryDays: 7}, logger, m)
	if load {
		require.NoError(t, predictions.Reload(context.Background(), "test"))
	}

	provider := &fakeWeatherProvider{}
	weather := services.NewWeatherService(provider, directory, logger, m)

	h := NewTrafficHandler(predictions, weather, Options{Horizon: 1}, logger, m)
	h.now = func() time.Time { return time.Date(2016, 6, 1, 8, 0, 0, 0, time.UTC) }

	return &testServer{router: NewRouter(h, logger, m), metrics: m, provider: provider}
}

func (s *testServer) get(t *testing.T, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestListStations(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/api/stations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StationsResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Stations, 3)
	assert.Equal(t, "Hauptbahnhof", resp.Stations[0].Alias)
	assert.Equal(t, "2015-02-01", resp.LastDate)
}

func TestGetPrediction(t *testing.T) {
	srv := newTestServer(t, true)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		check      func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:       "default date",
			url:        "/api/stations/1001/prediction",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var p models.StationPrediction
				decode(t, rec, &p)
				assert.Equal(t, "2015-02-02", p.Date.Format("2006-01-02"))
				assert.Equal(t, 100.0, p.Predicted)
				assert.Len(t, p.History, 7)
				assert.Equal(t, "similar", p.Indicator.Level)
			},
		},
		{
			name:       "explicit date",
			url:        "/api/stations/1001/prediction?date=2015-02-05",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var p models.StationPrediction
				decode(t, rec, &p)
				assert.Equal(t, 400.0, p.Predicted)
			},
		},
		{name: "invalid date", url: "/api/stations/1001/prediction?date=05.02.2015", wantStatus: http.StatusBadRequest},
		{name: "unknown station", url: "/api/stations/9999/prediction", wantStatus: http.StatusNotFound},
		{name: "station without data", url: "/api/stations/1003/prediction", wantStatus: http.StatusNotFound},
		{name: "series with a gap", url: "/api/stations/1002/prediction", wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.get(t, tt.url)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusOK {
				var errResp ErrorResponse
				decode(t, rec, &errResp)
				assert.Equal(t, tt.wantStatus, errResp.Code)
				assert.NotEmpty(t, errResp.Message)
			}
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(srv.metrics.APIRequestsTotal.WithLabelValues("/api/stations/{id}/prediction", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.APIErrorsTotal.WithLabelValues("forecast_error", "/api/stations/{id}/prediction")))
}

func TestNotLoaded(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.get(t, "/api/stations/1001/prediction")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = srv.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status map[string]string
	decode(t, rec, &status)
	assert.Equal(t, "loading", status["status"])
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]string
	decode(t, rec, &status)
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, "2015-02-01", status["last_date"])
}

func TestGetWeather(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/api/stations/1001/weather")
	require.Equal(t, http.StatusOK, rec.Code)
	var weather models.WeatherForecast
	decode(t, rec, &weather)
	assert.Equal(t, time.Date(2016, 6, 2, 12, 0, 0, 0, time.UTC), weather.Timestamp)

	rec = srv.get(t, "/api/stations/1001/weather?date=2016-07-01")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &weather)
	assert.Equal(t, time.Date(2016, 7, 1, 12, 0, 0, 0, time.UTC), weather.Timestamp)

	srv.provider.err = &models.UpstreamError{Service: "brightsky", Status: 503, Err: errors.New("unavailable")}
	rec = srv.get(t, "/api/stations/1001/weather")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv.provider.err = &models.UpstreamError{Service: "brightsky", Status: 400, Err: errors.New("bad request")}
	rec = srv.get(t, "/api/stations/1001/weather")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetDashboard(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/api/stations/1001/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DashboardResponse
	decode(t, rec, &resp)
	require.NotNil(t, resp.Prediction)
	require.NotNil(t, resp.Weather)
	assert.Equal(t, 100.0, resp.Prediction.Predicted)
	assert.Equal(t, time.Date(2015, 2, 2, 12, 0, 0, 0, time.UTC), resp.Weather.Timestamp)
	assert.Empty(t, resp.WeatherError)

	srv.provider.err = errors.New("boom")
	rec = srv.get(t, "/api/stations/1001/dashboard?date=2015-02-03")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = DashboardResponse{}
	decode(t, rec, &resp)
	require.NotNil(t, resp.Prediction)
	assert.Nil(t, resp.Weather)
	assert.NotEmpty(t, resp.WeatherError)

	rec = srv.get(t, "/api/stations/9999/dashboard")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetObservations(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/api/stations/1001/observations?limit=10&page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []models.Observation `json:"data"`
		Total      int                  `json:"total"`
		Page       int                  `json:"page"`
		Limit      int                  `json:"limit"`
		TotalPages int                  `json:"total_pages"`
	}
	decode(t, rec, &page)
	assert.Equal(t, 28, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Data, 10)
	assert.Equal(t, "2015-01-15", page.Data[0].Timestamp.Format("2006-01-02"))

	rec = srv.get(t, "/api/stations/1001/observations?start_date=2015-01-05&end_date=2015-01-11")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Equal(t, 7, page.Total)

	rec = srv.get(t, "/api/stations/1001/observations?start_date=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.get(t, "/api/stations/1001/observations?page=100000000000000000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "page out of range")

	rec = srv.get(t, "/api/stations/1001/observations?page=3&limit=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Empty(t, page.Data)

	rec = srv.get(t, "/api/stations/9999/observations")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCrossValidation(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/api/stations/1001/crossval")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.CrossValidationResult
	decode(t, rec, &result)
	assert.Equal(t, 1, result.Horizon)
	assert.Len(t, result.Metrics, 3)
	assert.Zero(t, result.MeanRMSE)

	rec = srv.get(t, "/api/stations/1001/crossval?horizon=7&start=2015-01-18&end=2015-01-25&step=7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.Len(t, result.Metrics, 2)
	assert.Len(t, result.Records, 14)

	for _, url := range []string{
		"/api/stations/1001/crossval?horizon=0",
		"/api/stations/1001/crossval?step=x",
		"/api/stations/1001/crossval?start=2015-13-01",
		"/api/stations/1001/crossval?start=2015-01-25&end=2015-01-18",
	} {
		rec = srv.get(t, url)
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}

	rec = srv.get(t, "/api/stations/1001/crossval?horizon=7&start=2015-01-30&end=2015-01-30")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/health")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := logging.NewStructuredLogger("test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)

	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(logger))
	router.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, 500, errResp.Code)
}

func TestDashboardPage(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/?station=1002")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Hauptbahnhof (1001)")
	assert.Contains(t, body, `<option value="1002" selected>`)
	assert.Contains(t, body, `value="2015-02-02"`)
}

func TestDocs(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.get(t, "/api/docs/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	decode(t, rec, &spec)
	assert.Equal(t, "3.0.0", spec.OpenAPI)
	assert.Contains(t, spec.Paths, "/api/stations/{id}/dashboard")
	assert.Contains(t, spec.Paths, "/api/stations/{id}/crossval")

	rec = srv.get(t, "/api/docs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "swagger-ui"))
}
