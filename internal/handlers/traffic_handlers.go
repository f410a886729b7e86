package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"traffic-platform/internal/models"
	"traffic-platform/internal/repository"
	"traffic-platform/internal/services"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

const dateLayout = "2006-01-02"

// maxOffset bounds (page-1)*limit so the row offset cannot overflow
const maxOffset = math.MaxInt32

// TrafficHandler handles the station, prediction and weather API endpoints
type TrafficHandler struct {
	predictions *services.PredictionService
	weather     *services.WeatherService
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
	options     Options
	now         func() time.Time
}

// Options holds request defaults
type Options struct {
	// DefaultDate is used when a request names no date; zero means the day after the last observation
	DefaultDate time.Time
	// Horizon is the default cross-validation horizon in days
	Horizon int
}

// NewTrafficHandler creates a new traffic handler
func NewTrafficHandler(
	predictions *services.PredictionService,
	weather *services.WeatherService,
	options Options,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *TrafficHandler {
	if options.Horizon < 1 {
		options.Horizon = 1
	}
	return &TrafficHandler{
		predictions: predictions,
		weather:     weather,
		logger:      logger,
		metrics:     metricsCollector,
		options:     options,
		now:         time.Now,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// StationsResponse lists the stations together with the last observed day
type StationsResponse struct {
	Stations []models.Station `json:"stations"`
	LastDate string           `json:"last_date,omitempty"`
}

// DashboardResponse combines the prediction and the weather for one station and day.
// A failed weather lookup leaves Weather empty and fills WeatherError.
type DashboardResponse struct {
	Prediction   *models.StationPrediction `json:"prediction"`
	Weather      *models.WeatherForecast   `json:"weather,omitempty"`
	WeatherError string                    `json:"weather_error,omitempty"`
}

// ListStations handles GET /api/stations
func (h *TrafficHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	response := StationsResponse{Stations: h.predictions.Stations().List()}
	if last := h.predictions.LastDate(); !last.IsZero() {
		response.LastDate = last.Format(dateLayout)
	}
	h.sendJSON(w, response, http.StatusOK)
}

// GetPrediction handles GET /api/stations/{id}/prediction
func (h *TrafficHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stationID := mux.Vars(r)["id"]

	date, err := h.resolveDate(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	prediction, err := h.predictions.StationForecast(ctx, stationID, date)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to compute prediction")
		return
	}

	h.sendJSON(w, prediction, http.StatusOK)
}

// GetWeather handles GET /api/stations/{id}/weather
func (h *TrafficHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stationID := mux.Vars(r)["id"]

	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if date.IsZero() {
		date = h.now().UTC().AddDate(0, 0, 1)
	}

	weather, err := h.weather.StationForecast(ctx, stationID, noon(date))
	if err != nil {
		h.handleServiceError(w, r, err, "failed to retrieve weather forecast")
		return
	}

	h.sendJSON(w, weather, http.StatusOK)
}

// GetDashboard handles GET /api/stations/{id}/dashboard. The prediction and the
// weather are fetched concurrently; only a failed prediction fails the request.
func (h *TrafficHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stationID := mux.Vars(r)["id"]

	date, err := h.resolveDate(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	if date.IsZero() {
		if last := h.predictions.LastDate(); !last.IsZero() {
			date = last.AddDate(0, 0, 1)
		}
	}

	var (
		response   DashboardResponse
		weatherErr error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prediction, err := h.predictions.StationForecast(gCtx, stationID, date)
		if err != nil {
			return err
		}
		response.Prediction = prediction
		return nil
	})
	g.Go(func() error {
		// weather is optional on the dashboard and never fails the group
		response.Weather, weatherErr = h.weather.StationForecast(gCtx, stationID, noon(date))
		return nil
	})

	if err := g.Wait(); err != nil {
		h.handleServiceError(w, r, err, "failed to build dashboard")
		return
	}

	if weatherErr != nil {
		h.logger.Warn(logging.WithStationID(ctx, stationID), "[DASHBOARD_WEATHER_UNAVAILABLE] Serving dashboard without weather", logging.Fields{
			"error": weatherErr.Error(),
		})
		response.Weather = nil
		response.WeatherError = "weather forecast unavailable"
	}

	h.sendJSON(w, response, http.StatusOK)
}

// GetObservations handles GET /api/stations/{id}/observations
func (h *TrafficHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stationID := mux.Vars(r)["id"]

	if _, err := h.predictions.Stations().Get(stationID); err != nil {
		h.handleServiceError(w, r, err, "unknown station")
		return
	}

	startDateStr := r.URL.Query().Get("start_date")
	endDateStr := r.URL.Query().Get("end_date")
	pageStr := r.URL.Query().Get("page")
	limitStr := r.URL.Query().Get("limit")

	// Default pagination
	page := 1
	limit := 100

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	if page-1 > maxOffset/limit {
		h.sendError(w, r, "page out of range", http.StatusBadRequest)
		return
	}

	filter := repository.ObservationFilter{
		StationID: &stationID,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	if startDateStr != "" {
		startDate, err := time.Parse(dateLayout, startDateStr)
		if err != nil {
			h.sendError(w, r, "invalid start_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.StartDate = &startDate
	}

	if endDateStr != "" {
		endDate, err := time.Parse(dateLayout, endDateStr)
		if err != nil {
			h.sendError(w, r, "invalid end_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		// end_date is inclusive; the filter bound is exclusive
		endDate = endDate.AddDate(0, 0, 1)
		filter.EndDate = &endDate
	}

	observations, total, err := h.predictions.Observations(ctx, filter)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to retrieve observations")
		return
	}

	response := PaginatedResponse{
		Data:       observations,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.sendJSON(w, response, http.StatusOK)
}

// GetCrossValidation handles GET /api/stations/{id}/crossval. Without start and
// end the last four weeks of cutoffs that still have a full horizon are used.
func (h *TrafficHandler) GetCrossValidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stationID := mux.Vars(r)["id"]
	query := r.URL.Query()

	horizon := h.options.Horizon
	if s := query.Get("horizon"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 366 {
			h.sendError(w, r, "invalid horizon, expected integer between 1 and 366", http.StatusBadRequest)
			return
		}
		horizon = v
	}

	step := 7
	if s := query.Get("step"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			h.sendError(w, r, "invalid step, expected positive integer", http.StatusBadRequest)
			return
		}
		step = v
	}

	end, err := parseDate(query.Get("end"))
	if err != nil {
		h.sendError(w, r, "invalid end, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	start, err := parseDate(query.Get("start"))
	if err != nil {
		h.sendError(w, r, "invalid start, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	start, end, err = h.predictions.CutoffRange(stationID, horizon, 28, start, end)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to load station series")
		return
	}

	result, err := h.predictions.CrossValidate(ctx, stationID, horizon, start, end, step)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to cross-validate")
		return
	}

	h.sendJSON(w, result, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *TrafficHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if last := h.predictions.LastDate(); !last.IsZero() {
		status["last_date"] = last.Format(dateLayout)
	} else {
		status["status"] = "loading"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{
		"status": status["status"],
	})
	h.sendJSON(w, status, code)
}

// resolveDate reads the date query parameter, falling back to the configured default
func (h *TrafficHandler) resolveDate(r *http.Request) (time.Time, error) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		return time.Time{}, err
	}
	if date.IsZero() {
		return h.options.DefaultDate, nil
	}
	return date, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errors.New("invalid date format, expected YYYY-MM-DD")
	}
	return date, nil
}

func noon(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)
}

// handleServiceError maps service errors onto HTTP status codes
func (h *TrafficHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var (
		notFound   *models.NotFoundError
		validation *models.ValidationError
		gap        *models.GapError
		upstream   *models.UpstreamError
	)

	status, errorType := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.As(err, &notFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.As(err, &validation), errors.Is(err, models.ErrInvalidHorizon):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.As(err, &gap), errors.Is(err, models.ErrInsufficientHistory), errors.Is(err, models.ErrInsufficientActuals):
		status, errorType = http.StatusUnprocessableEntity, "forecast_error"
	case errors.As(err, &upstream):
		status, errorType = http.StatusBadGateway, "upstream_error"
		if upstream.IsTransient() {
			status = http.StatusServiceUnavailable
		}
	case errors.Is(err, services.ErrNotLoaded):
		status, errorType = http.StatusServiceUnavailable, "not_loaded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, errorType = http.StatusServiceUnavailable, "cancelled"
	}

	h.metrics.RecordAPIError(errorType, routeTemplate(r))
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"path":       r.URL.Path,
			"error_type": errorType,
		}, err)
	}

	if status != http.StatusInternalServerError {
		message = message + ": " + err.Error()
	}
	h.sendError(w, r, message, status)
}

// sendJSON sends a JSON response
func (h *TrafficHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *TrafficHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all traffic API routes
func (h *TrafficHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stations", h.ListStations).Methods("GET")
	api.HandleFunc("/stations/{id}/prediction", h.GetPrediction).Methods("GET")
	api.HandleFunc("/stations/{id}/weather", h.GetWeather).Methods("GET")
	api.HandleFunc("/stations/{id}/dashboard", h.GetDashboard).Methods("GET")
	api.HandleFunc("/stations/{id}/observations", h.GetObservations).Methods("GET")
	api.HandleFunc("/stations/{id}/crossval", h.GetCrossValidation).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
