package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"traffic-platform/internal/models"
	"traffic-platform/internal/repository"
	"traffic-platform/internal/storage"
	"traffic-platform/internal/wrangling"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

// IngestionService merges counter exports into the combined series and
// optionally loads it into Postgres
type IngestionService struct {
	repo    repository.TrafficRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	TotalFiles   int
	TotalRecords int
	Observations int
	Stations     int
	OutputPath   string
	Duration     time.Duration
}

// FileSummary describes one counter export without persisting anything
type FileSummary struct {
	Path     string
	Records  int
	Stations []string
	First    time.Time
	Last     time.Time
	Err      error
}

// NewIngestionService creates a new ingestion service. repo may be nil when
// only the file artifact is produced.
func NewIngestionService(repo repository.TrafficRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// DiscoverFiles returns the files in dir matching pattern in lexical order,
// which for yearly exports is chronological order
func DiscoverFiles(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching %s found in %s", pattern, dir)
	}
	sort.Strings(files)
	return files, nil
}

func ingestionErrorType(err error) string {
	var (
		perr *models.ParseError
		oerr *models.OverlapError
		verr *models.ValidationError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &perr):
		return "parse_error"
	case errors.As(err, &oerr):
		return "overlap_error"
	case errors.As(err, &verr):
		return "validation_error"
	default:
		return "io_error"
	}
}

// MergeFiles combines the files in order and writes the combined series to
// outPath. Any failing file aborts the merge before anything is written.
func (s *IngestionService) MergeFiles(ctx context.Context, paths []string, outPath string) (*IngestionResult, []models.Observation, error) {
	timer := s.metrics.NewTimer(s.metrics.IngestionDuration)

	s.logger.Info(ctx, "[MERGE_START] Starting merge of counter exports", logging.Fields{
		"file_count":  len(paths),
		"output_path": outPath,
		"stage":       "INITIALIZATION",
	})

	result := &IngestionResult{TotalFiles: len(paths), OutputPath: outPath}

	observations, err := wrangling.Merge(ctx, paths, func(path string, fragment *wrangling.Fragment, err error) {
		file := s.logger.With(logging.Fields{
			"file_path": path,
			"stage":     "FILE_PROCESSING",
		})
		if err != nil {
			file.Error(ctx, "[MERGE_FILE_ERROR] Merge aborted, nothing written", logging.Fields{}, err)
			return
		}

		s.metrics.IngestionFilesTotal.Inc()
		result.TotalRecords += fragment.Records
		file.Info(ctx, "[MERGE_FILE] File processed", logging.Fields{
			"records":      fragment.Records,
			"observations": len(fragment.Observations),
		})
	})
	if err != nil {
		s.metrics.RecordIngestionError(ingestionErrorType(err))
		return nil, nil, err
	}

	if err := storage.WriteCombined(outPath, observations); err != nil {
		s.metrics.RecordIngestionError("write_error")
		s.logger.Error(ctx, "[MERGE_WRITE_ERROR] Failed to write combined series", logging.Fields{
			"output_path": outPath,
		}, err)
		return nil, nil, err
	}

	result.Observations = len(observations)
	result.Stations = countStations(observations)
	result.Duration = timer.ObserveDuration()

	s.logger.Info(ctx, "[MERGE_COMPLETE] Combined series written", logging.Fields{
		"total_files":      result.TotalFiles,
		"total_records":    result.TotalRecords,
		"observations":     result.Observations,
		"stations":         result.Stations,
		"output_path":      outPath,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, observations, nil
}

// LoadIntoDatabase upserts stations and observations in batches of batchSize.
// Each batch commits on its own. A failed load leaves the earlier batches in
// place and the error says how many were committed; rerunning the load
// upserts over them.
func (s *IngestionService) LoadIntoDatabase(ctx context.Context, stations []models.Station, observations []models.Observation, batchSize int) error {
	if s.repo == nil {
		return fmt.Errorf("no database repository configured")
	}
	if batchSize < 1 {
		return &models.ValidationError{Field: "batch_size", Value: fmt.Sprint(batchSize), Message: "batch size must be positive"}
	}

	for i := range stations {
		if err := s.repo.CreateStation(ctx, &stations[i]); err != nil {
			s.metrics.RecordIngestionError("db_error")
			return err
		}
	}

	for start := 0; start < len(observations); start += batchSize {
		end := min(start+batchSize, len(observations))
		if err := s.repo.CreateObservationsBatch(ctx, observations[start:end]); err != nil {
			s.metrics.RecordIngestionError("db_error")
			s.logger.Error(ctx, "[DB_LOAD_ERROR] Batch insert failed", logging.Fields{
				"batch_start": start,
				"batch_end":   end,
				"committed":   start,
			}, err)
			return fmt.Errorf("batch %d-%d failed with %d of %d observations committed: %w", start, end, start, len(observations), err)
		}
	}

	s.logger.Info(ctx, "[DB_LOAD_COMPLETE] Combined series loaded into database", logging.Fields{
		"stations":     len(stations),
		"observations": len(observations),
		"batch_size":   batchSize,
	})

	return nil
}

// InspectFiles extracts every file independently and reports what it holds.
// A failing file is reported in its summary and does not stop the others.
func (s *IngestionService) InspectFiles(ctx context.Context, paths []string) ([]FileSummary, error) {
	summaries := make([]FileSummary, 0, len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		summary := FileSummary{Path: path}
		fragment, err := wrangling.ReadFragment(path)
		if err != nil {
			summary.Err = err
			s.logger.Warn(ctx, "[INSPECT_FILE_ERROR] File cannot be merged", logging.Fields{
				"file_path": path,
				"error":     err.Error(),
			})
			summaries = append(summaries, summary)
			continue
		}

		summary.Records = fragment.Records
		seen := make(map[string]bool)
		for i, obs := range fragment.Observations {
			if !seen[obs.StationID] {
				seen[obs.StationID] = true
				summary.Stations = append(summary.Stations, obs.StationID)
			}
			if i == 0 || obs.Timestamp.Before(summary.First) {
				summary.First = obs.Timestamp
			}
			if obs.Timestamp.After(summary.Last) {
				summary.Last = obs.Timestamp
			}
		}
		sort.Strings(summary.Stations)
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func countStations(observations []models.Observation) int {
	seen := make(map[string]struct{})
	for _, obs := range observations {
		seen[obs.StationID] = struct{}{}
	}
	return len(seen)
}
