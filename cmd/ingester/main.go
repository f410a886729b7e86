package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"traffic-platform/internal/config"
	"traffic-platform/internal/models"
	"traffic-platform/internal/repository"
	"traffic-platform/internal/services"
	"traffic-platform/internal/stations"
	"traffic-platform/pkg/database"
	"traffic-platform/pkg/logging"
	"traffic-platform/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Parse command-line flags
	dataDir := flag.String("data-dir", cfg.Data.RawDir, "Directory containing yearly counter exports")
	pattern := flag.String("pattern", cfg.Data.Pattern, "Glob pattern selecting the export files")
	outPath := flag.String("out", cfg.Data.CombinedPath, "Combined series output file (.csv, .csv.gz or .csv.zst)")
	loadDB := flag.Bool("db", false, "Also load the combined series into Postgres")
	batchSize := flag.Int("batch-size", 1000, "Number of observations per database batch")
	stationsPath := flag.String("stations", cfg.Data.StationsPath, "Station coordinates CSV loaded with -db")
	flag.Parse()

	logger := logging.NewStructuredLogger("traffic-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting counter export merge", logging.Fields{
		"version":    "1.0.0",
		"data_dir":   *dataDir,
		"pattern":    *pattern,
		"out":        *outPath,
		"load_db":    *loadDB,
		"batch_size": *batchSize,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("traffic_ingester")

	files, err := services.DiscoverFiles(*dataDir, *pattern)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] No input files", logging.Fields{}, err)
	}

	var repo repository.TrafficRepository
	if *loadDB {
		db, err := database.NewPostgresDB(cfg.Database.PostgresConfig(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()
		repo = repository.NewTrafficRepository(db, logger, metricsCollector)
	}

	ingestionService := services.NewIngestionService(repo, logger, metricsCollector)

	result, observations, err := ingestionService.MergeFiles(ctx, files, *outPath)
	if err != nil {
		reportMergeError(err)
		logger.Fatal(ctx, "[INGESTION_ERROR] Merge failed, nothing written", logging.Fields{}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("MERGE COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Files:              %d\n", result.TotalFiles)
	fmt.Printf("Hourly Records:     %d\n", result.TotalRecords)
	fmt.Printf("Observations:       %d\n", result.Observations)
	fmt.Printf("Stations:           %d\n", result.Stations)
	fmt.Printf("Output:             %s\n", result.OutputPath)
	fmt.Printf("Duration:           %v\n", result.Duration)

	if *loadDB {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("LOADING DATABASE")
		fmt.Println(strings.Repeat("=", 80))

		stationList := stationsFor(ctx, logger, *stationsPath, observations)
		if err := ingestionService.LoadIntoDatabase(ctx, stationList, observations, *batchSize); err != nil {
			logger.Fatal(ctx, "[DB_LOAD_ERROR] Database load failed", logging.Fields{}, err)
		}
		fmt.Printf("Loaded %d stations and %d observations\n", len(stationList), len(observations))
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"total_files":      result.TotalFiles,
		"observations":     result.Observations,
		"duration_seconds": result.Duration.Seconds(),
	})
}

// stationsFor returns the directory entries of the merged stations. Stations
// missing from the coordinates file are stored without location.
func stationsFor(ctx context.Context, logger *logging.StructuredLogger, path string, observations []models.Observation) []models.Station {
	directory, err := stations.Load(path)
	if err != nil {
		logger.Warn(ctx, "[STATIONS_UNAVAILABLE] Loading stations without coordinates", logging.Fields{
			"stations_path": path,
			"error":         err.Error(),
		})
		directory = stations.NewDirectory(nil)
	}

	var list []models.Station
	seen := make(map[string]bool)
	for _, obs := range observations {
		if seen[obs.StationID] {
			continue
		}
		seen[obs.StationID] = true

		station, err := directory.Get(obs.StationID)
		if err != nil {
			station = models.Station{StationID: obs.StationID}
		}
		list = append(list, station)
	}
	return list
}

func reportMergeError(err error) {
	var (
		perr    *models.ParseError
		overlap *models.OverlapError
	)
	switch {
	case errors.As(err, &perr):
		fmt.Fprintf(os.Stderr, "Parse error in %s line %d: %s\n  %s\n", perr.Path, perr.Line, perr.Reason, perr.Text)
	case errors.As(err, &overlap):
		fmt.Fprintf(os.Stderr, "Files overlap: %v\n", overlap)
	default:
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
	}
}
