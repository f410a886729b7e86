package handlers

import (
	"github.com/gorilla/mux"

	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

// NewRouter wires the dashboard page, the API, and the API docs behind the
// request id, recovery and metrics middleware
func NewRouter(h *TrafficHandler, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware, RecoveryMiddleware(logger), MetricsMiddleware(metricsCollector))

	router.HandleFunc("/", h.Dashboard).Methods("GET")
	h.RegisterRoutes(router)
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")

	return router
}
