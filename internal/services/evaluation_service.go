package services

import (
	"context"
	"time"

	"traffic-platform/internal/forecast"
	"traffic-platform/internal/models"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

// EvaluationService cross-validates the baseline for every loaded station
type EvaluationService struct {
	predictions *PredictionService
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// StationEvaluation is the outcome of evaluating one station
type StationEvaluation struct {
	StationID string
	Result    *models.CrossValidationResult
	Err       error
}

// NewEvaluationService creates a new evaluation service
func NewEvaluationService(predictions *PredictionService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *EvaluationService {
	return &EvaluationService{
		predictions: predictions,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// EvaluateAll cross-validates every station over the last window days of
// cutoffs, one cutoff every step days. A failing station is logged and
// reported in its evaluation without stopping the others.
func (s *EvaluationService) EvaluateAll(ctx context.Context, horizon, window, step int) ([]StationEvaluation, error) {
	startTime := time.Now()

	snap, err := s.predictions.current()
	if err != nil {
		return nil, err
	}

	run := s.logger.With(logging.Fields{
		"horizon": horizon,
		"window":  window,
		"step":    step,
	})
	run.Info(ctx, "[EVAL_START] Starting baseline evaluation", logging.Fields{
		"stations": len(snap.daily),
		"stage":    "INITIALIZATION",
	})

	var evaluations []StationEvaluation
	failed := 0
	for _, id := range forecast.StationIDs(snap.daily) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		first, last, err := s.predictions.CutoffRange(id, horizon, window, time.Time{}, time.Time{})
		var result *models.CrossValidationResult
		if err == nil {
			result, err = s.predictions.CrossValidate(ctx, id, horizon, first, last, step)
		}
		evaluations = append(evaluations, StationEvaluation{StationID: id, Result: result, Err: err})
		if err != nil {
			failed++
			run.Warn(logging.WithStationID(ctx, id), "[EVAL_STATION_ERROR] Station evaluation failed", logging.Fields{
				"error": err.Error(),
			})
		}
	}

	run.Info(ctx, "[EVAL_COMPLETE] Baseline evaluation completed", logging.Fields{
		"stations":         len(evaluations),
		"failed":           failed,
		"duration_seconds": time.Since(startTime).Seconds(),
		"stage":            "COMPLETE",
	})

	return evaluations, nil
}
