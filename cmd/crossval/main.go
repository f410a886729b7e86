package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"traffic-platform/internal/config"
	"traffic-platform/internal/models"
	"traffic-platform/internal/report"
	"traffic-platform/internal/services"
	"traffic-platform/internal/stations"
	"traffic-platform/internal/storage"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

const dateLayout = "2006-01-02"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	combined := flag.String("combined", cfg.Data.CombinedPath, "Combined series file")
	stationID := flag.String("station", "all", "Station id, or all")
	horizon := flag.Int("horizon", cfg.Forecast.Horizon, "Forecast horizon in days")
	startStr := flag.String("start", "", "First cutoff date (YYYY-MM-DD); default: window days before -end")
	endStr := flag.String("end", "", "Last cutoff date (YYYY-MM-DD); default: last day with a full horizon")
	step := flag.Int("step", 7, "Days between cutoffs")
	window := flag.Int("window", 28, "Days of cutoffs when -start is not given")
	interpolate := flag.Bool("interpolate", cfg.Forecast.Interpolate, "Fill missing days before forecasting")
	outDir := flag.String("out-dir", "reports", "Directory for predictions.csv and metrics.csv")
	xlsx := flag.Bool("xlsx", false, "Also write crossval.xlsx")
	flag.Parse()

	logger := logging.NewStructuredLogger("traffic-crossval", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx := context.Background()

	start, err := parseOptionalDate(*startStr)
	if err != nil {
		logger.Fatal(ctx, "[CV_ERROR] Invalid -start", logging.Fields{"start": *startStr}, err)
	}
	end, err := parseOptionalDate(*endStr)
	if err != nil {
		logger.Fatal(ctx, "[CV_ERROR] Invalid -end", logging.Fields{"end": *endStr}, err)
	}

	logger.Info(ctx, "[CV_START] Starting baseline cross-validation", logging.Fields{
		"combined":    *combined,
		"station":     *stationID,
		"horizon":     *horizon,
		"start":       *startStr,
		"end":         *endStr,
		"step":        *step,
		"interpolate": *interpolate,
	})

	metricsCollector := metrics.NewCollector("traffic_crossval")

	directory := loadDirectory(ctx, logger, cfg.Data.StationsPath)

	predictions := services.NewPredictionService(
		storage.NewFileSource(*combined),
		directory,
		services.PredictionOptions{Interpolate: *interpolate},
		logger,
		metricsCollector,
	)
	if err := predictions.Reload(ctx, "cli"); err != nil {
		logger.Fatal(ctx, "[CV_ERROR] Failed to load combined series", logging.Fields{}, err)
	}

	ids := []string{*stationID}
	if *stationID == "all" {
		ids = predictions.StationIDs()
	}

	var (
		results []*models.CrossValidationResult
		failed  int
	)
	for _, id := range ids {
		first, last, err := predictions.CutoffRange(id, *horizon, *window, start, end)
		if err == nil {
			var result *models.CrossValidationResult
			result, err = predictions.CrossValidate(ctx, id, *horizon, first, last, *step)
			if err == nil {
				results = append(results, result)
				continue
			}
		}
		failed++
		fmt.Fprintf(os.Stderr, "station %s: %v\n", id, err)
	}

	if len(results) == 0 {
		logger.Fatal(ctx, "[CV_ERROR] No station could be evaluated", logging.Fields{"stations": len(ids)}, fmt.Errorf("%d of %d stations failed", failed, len(ids)))
	}

	predictionsPath, metricsPath, err := report.WriteCSV(*outDir, results)
	if err != nil {
		logger.Fatal(ctx, "[CV_ERROR] Failed to write CSV reports", logging.Fields{}, err)
	}
	written := []string{predictionsPath, metricsPath}

	if *xlsx {
		path := filepath.Join(*outDir, "crossval.xlsx")
		if err := report.WriteXLSX(path, results); err != nil {
			logger.Fatal(ctx, "[CV_ERROR] Failed to write workbook", logging.Fields{}, err)
		}
		written = append(written, path)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("CROSS-VALIDATION (horizon %d days)\n", *horizon)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%-12s %8s %14s %10s\n", "STATION", "CUTOFFS", "MEAN RMSE", "MEAN MAPE")
	for _, result := range results {
		fmt.Printf("%-12s %8d %14.1f %9.1f%%\n", result.StationID, len(result.Metrics), result.MeanRMSE, result.MeanMAPE*100)
	}
	if failed > 0 {
		fmt.Printf("\n%d station(s) skipped, see errors above\n", failed)
	}
	fmt.Printf("\nReports: %s\n", strings.Join(written, ", "))

	logger.Info(ctx, "[CV_COMPLETE] Cross-validation completed", logging.Fields{
		"stations": len(results),
		"failed":   failed,
		"out_dir":  *outDir,
	})
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// loadDirectory reads the station table. Cross-validation only needs the
// series, so a missing table is logged and replaced by an empty directory.
func loadDirectory(ctx context.Context, logger *logging.StructuredLogger, path string) *stations.Directory {
	directory, err := stations.Load(path)
	if err != nil {
		logger.Warn(ctx, "[STATIONS_UNAVAILABLE] Continuing without station aliases", logging.Fields{
			"stations_path": path,
			"error":         err.Error(),
		})
		return stations.NewDirectory(nil)
	}
	return directory
}
